// Package reinforce nudges existing relations upward when agents are seen
// cooperating.
package reinforce

import (
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/requests"
	"github.com/nidhogg/nuka-bonds/internal/scan"
	"github.com/nidhogg/nuka-bonds/internal/world"
)

// Config holds the reinforcement tunables. Zero fields take the defaults.
type Config struct {
	Distance          float64 `json:"distance" yaml:"distance"`
	Interval          uint64  `json:"interval" yaml:"interval"`
	MaxAgentsPerBatch int     `json:"max_agents_per_batch" yaml:"max_agents_per_batch"`
	MaxPairChecks     int     `json:"max_pair_checks" yaml:"max_pair_checks"`
	Delta             int     `json:"delta" yaml:"delta"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Distance:          10,
		Interval:          30,
		MaxAgentsPerBatch: 50,
		MaxPairChecks:     500,
		Delta:             1,
	}
}

// WithDefaults fills every unset field.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Distance <= 0 {
		c.Distance = d.Distance
	}
	if c.Interval == 0 {
		c.Interval = d.Interval
	}
	if c.MaxAgentsPerBatch <= 0 {
		c.MaxAgentsPerBatch = d.MaxAgentsPerBatch
	}
	if c.MaxPairChecks <= 0 {
		c.MaxPairChecks = d.MaxPairChecks
	}
	if c.Delta == 0 {
		c.Delta = d.Delta
	}
	return c
}

// Predicate decides whether a nearby pair is interacting.
type Predicate func(a, b world.Agent) bool

// SameCooperativeActivity accepts pairs doing the same cooperative activity.
func SameCooperativeActivity(a, b world.Agent) bool {
	return a.Activity == b.Activity && a.Activity.Cooperative()
}

// Stats describes one invocation.
type Stats struct {
	Ran        bool `json:"ran"`
	Population int  `json:"population"`
	scan.Stats
	Reinforced int `json:"reinforced"`
	Distant    int `json:"distant"`
	Unrelated  int `json:"unrelated"`
	Fresh      int `json:"fresh"`
	Rejected   int `json:"rejected"`
}

// Engine is the amortized cooperation scanner.
type Engine struct {
	cfg       Config
	ledger    *relation.Ledger
	processor *requests.Processor
	accept    Predicate
	cursor    scan.Cursor
	logger    *zap.Logger
}

// NewEngine creates a reinforcement engine. A nil predicate means
// SameCooperativeActivity.
func NewEngine(cfg Config, ledger *relation.Ledger, processor *requests.Processor, accept Predicate, logger *zap.Logger) *Engine {
	if accept == nil {
		accept = SameCooperativeActivity
	}
	return &Engine{
		cfg:       cfg.WithDefaults(),
		ledger:    ledger,
		processor: processor,
		accept:    accept,
		logger:    logger,
	}
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Cursor() scan.Cursor { return e.cursor }

func (e *Engine) RestoreCursor(c scan.Cursor) { e.cursor = c }

// Run performs one rate-limited, budgeted sweep.
func (e *Engine) Run(tick uint64, pop world.Population) Stats {
	var st Stats
	if !e.cursor.Due(tick, e.cfg.Interval) {
		return st
	}
	e.cursor.MarkRun(tick)
	st.Ran = true

	snap := world.TakeSnapshot(pop)
	st.Population = len(snap)
	maxSq := e.cfg.Distance * e.cfg.Distance
	budget := scan.Budget{
		Interval:          e.cfg.Interval,
		MaxAgentsPerBatch: e.cfg.MaxAgentsPerBatch,
		MaxPairChecks:     e.cfg.MaxPairChecks,
	}

	st.Stats = e.cursor.Sweep(len(snap), budget, func(i, j int) {
		a, b := snap[i], snap[j]
		if world.DistanceSq(a.Pos, b.Pos) > maxSq {
			st.Distant++
			return
		}
		ab, okA := e.ledger.Get(a.Handle, b.Handle)
		ba, okB := e.ledger.Get(b.Handle, a.Handle)
		if !okA || !okB {
			st.Unrelated++
			return
		}
		if ab.FirstMetTick == tick || ba.FirstMetTick == tick {
			// Met this very tick; leave the pair to the meeting stage.
			st.Fresh++
			return
		}
		if !e.accept(a, b) {
			st.Rejected++
			return
		}
		e.processor.Apply(requests.Modify{Source: a.Handle, Target: b.Handle, Delta: e.cfg.Delta, Shared: true}, tick)
		e.processor.Apply(requests.Modify{Source: b.Handle, Target: a.Handle, Delta: e.cfg.Delta, Shared: true}, tick)
		st.Reinforced++
		e.logger.Debug("relation reinforced",
			zap.Stringer("a", a.Handle),
			zap.Stringer("b", b.Handle),
			zap.String("activity", string(a.Activity)),
			zap.Uint64("tick", tick))
	})
	return st
}
