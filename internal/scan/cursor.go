// Package scan implements the resumable pairwise sweep shared by the meeting
// and reinforcement engines.
//
// A sweep bounds the outer index of each pair (i, j) to a batch window
// [Row, Row+MaxAgentsPerBatch) while j ranges over (i, n), so every agent is
// eventually compared with everyone after it across successive invocations.
// MaxPairChecks caps the work of a single invocation; when it runs out the
// cursor remembers the exact (Row, Col) and the next invocation resumes there.
package scan

// Budget bounds a sweep.
type Budget struct {
	Interval          uint64 `json:"interval"`             // minimum ticks between invocations
	MaxAgentsPerBatch int    `json:"max_agents_per_batch"` // width of the outer window
	MaxPairChecks     int    `json:"max_pair_checks"`      // pair visits per invocation
}

// Cursor is the persistent iterator state of one scanner.
type Cursor struct {
	Row         int    `json:"row"`
	Col         int    `json:"col"` // 0 means "start at Row+1"
	LastRunTick uint64 `json:"last_run_tick"`
	Primed      bool   `json:"primed"` // false until the first run
}

// Stats describes one sweep.
type Stats struct {
	Checks    int  `json:"checks"`
	Rows      int  `json:"rows"`      // outer rows fully completed
	Exhausted bool `json:"exhausted"` // stopped on MaxPairChecks
	Wrapped   bool `json:"wrapped"`   // cursor returned to row 0
}

// Due reports whether enough ticks have passed since the last run.
func (c *Cursor) Due(tick, interval uint64) bool {
	if !c.Primed {
		return true
	}
	if tick < c.LastRunTick {
		// The host rewound underneath us; treat it as due.
		return true
	}
	return tick-c.LastRunTick >= interval
}

// MarkRun records tick as the latest invocation.
func (c *Cursor) MarkRun(tick uint64) {
	c.LastRunTick = tick
	c.Primed = true
}

// Sweep visits pairs over a population of n in lexicographic (i, j) order and
// advances the cursor. visit is called exactly once per counted pair check.
func (c *Cursor) Sweep(n int, b Budget, visit func(i, j int)) Stats {
	var st Stats
	if n < 2 {
		c.Row, c.Col = 0, 0
		return st
	}
	if c.Row >= n {
		c.Row, c.Col = 0, 0
	}
	batch := b.MaxAgentsPerBatch
	if batch <= 0 {
		batch = 1
	}
	end := c.Row + batch
	if end > n {
		end = n
	}

	for i := c.Row; i < end; i++ {
		j := i + 1
		if i == c.Row && c.Col > j {
			j = c.Col
		}
		for ; j < n; j++ {
			if st.Checks >= b.MaxPairChecks {
				c.Row, c.Col = i, j
				st.Exhausted = true
				return st
			}
			st.Checks++
			visit(i, j)
		}
		st.Rows++
	}

	c.Row, c.Col = end, 0
	if c.Row >= n {
		c.Row = 0
		st.Wrapped = true
	}
	return st
}
