package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct{ i, j int }

func collect(c *Cursor, n int, b Budget) ([]pair, Stats) {
	var out []pair
	st := c.Sweep(n, b, func(i, j int) { out = append(out, pair{i, j}) })
	return out, st
}

func TestSweepVisitsLexicographicOrder(t *testing.T) {
	var c Cursor
	pairs, st := collect(&c, 4, Budget{MaxAgentsPerBatch: 10, MaxPairChecks: 100})

	assert.Equal(t, []pair{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}, pairs)
	assert.Equal(t, 6, st.Checks)
	assert.Equal(t, 4, st.Rows)
	assert.True(t, st.Wrapped)
	assert.False(t, st.Exhausted)
	assert.Equal(t, 0, c.Row)
}

func TestSweepBatchesOuterIndex(t *testing.T) {
	var c Cursor
	b := Budget{MaxAgentsPerBatch: 2, MaxPairChecks: 100}

	first, st := collect(&c, 5, b)
	assert.Equal(t, []pair{{0, 1}, {0, 2}, {0, 3}, {0, 4}, {1, 2}, {1, 3}, {1, 4}}, first)
	assert.False(t, st.Wrapped)
	assert.Equal(t, 2, c.Row)

	second, _ := collect(&c, 5, b)
	assert.Equal(t, []pair{{2, 3}, {2, 4}, {3, 4}}, second)

	third, st := collect(&c, 5, b)
	assert.Empty(t, third)
	assert.True(t, st.Wrapped)
	assert.Equal(t, 0, c.Row)
}

func TestSweepRespectsPairBudgetAndResumes(t *testing.T) {
	const n = 30
	b := Budget{MaxAgentsPerBatch: 5, MaxPairChecks: 7}
	var c Cursor
	seen := make(map[pair]int)

	for round := 0; round < 200; round++ {
		pairs, st := collect(&c, n, b)
		require.LessOrEqual(t, st.Checks, b.MaxPairChecks)
		for _, p := range pairs {
			seen[p]++
		}
		if st.Wrapped {
			break
		}
	}

	// One full sweep touches every pair exactly once, even though every
	// invocation ran out of budget mid-row.
	assert.Len(t, seen, n*(n-1)/2)
	for p, count := range seen {
		assert.Equal(t, 1, count, "pair %v", p)
	}
}

func TestSweepResetsWhenPopulationShrinks(t *testing.T) {
	c := Cursor{Row: 40, Col: 45}
	pairs, _ := collect(&c, 3, Budget{MaxAgentsPerBatch: 10, MaxPairChecks: 10})
	assert.Equal(t, []pair{{0, 1}, {0, 2}, {1, 2}}, pairs)
}

func TestSweepTinyPopulation(t *testing.T) {
	c := Cursor{Row: 3}
	pairs, st := collect(&c, 1, Budget{MaxAgentsPerBatch: 10, MaxPairChecks: 10})
	assert.Empty(t, pairs)
	assert.Zero(t, st.Checks)
	assert.Equal(t, 0, c.Row)
}

func TestDue(t *testing.T) {
	var c Cursor
	assert.True(t, c.Due(0, 30))
	c.MarkRun(100)
	assert.False(t, c.Due(110, 30))
	assert.True(t, c.Due(130, 30))
	assert.True(t, c.Due(50, 30), "rewound clock is due")
}
