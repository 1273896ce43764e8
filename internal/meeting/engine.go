// Package meeting detects first contact between agents and seeds their
// relation from the scorer.
package meeting

import (
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/scan"
	"github.com/nidhogg/nuka-bonds/internal/scorer"
	"github.com/nidhogg/nuka-bonds/internal/world"
)

// Config holds the meeting tunables. Zero fields take the defaults.
type Config struct {
	Distance          float64                 `json:"distance" yaml:"distance"`
	Interval          uint64                  `json:"interval" yaml:"interval"`
	MaxAgentsPerBatch int                     `json:"max_agents_per_batch" yaml:"max_agents_per_batch"`
	MaxPairChecks     int                     `json:"max_pair_checks" yaml:"max_pair_checks"`
	Context           relation.MeetingContext `json:"context" yaml:"context"`
}

// Documented defaults.
const (
	DefaultDistance          = 10.0
	DefaultInterval          = 30
	DefaultMaxAgentsPerBatch = 50
	DefaultMaxPairChecks     = 500
)

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Distance:          DefaultDistance,
		Interval:          DefaultInterval,
		MaxAgentsPerBatch: DefaultMaxAgentsPerBatch,
		MaxPairChecks:     DefaultMaxPairChecks,
		Context:           relation.ContextVillageNeighbor,
	}
}

// WithDefaults fills every unset field.
func (c Config) WithDefaults() Config {
	if c.Distance <= 0 {
		c.Distance = DefaultDistance
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.MaxAgentsPerBatch <= 0 {
		c.MaxAgentsPerBatch = DefaultMaxAgentsPerBatch
	}
	if c.MaxPairChecks <= 0 {
		c.MaxPairChecks = DefaultMaxPairChecks
	}
	return c
}

// Budget converts the config to scan limits.
func (c Config) Budget() scan.Budget {
	return scan.Budget{
		Interval:          c.Interval,
		MaxAgentsPerBatch: c.MaxAgentsPerBatch,
		MaxPairChecks:     c.MaxPairChecks,
	}
}

// ContextFunc picks the meeting context for a pair.
type ContextFunc func(a, b world.Agent) relation.MeetingContext

// ActivityContext derives the context from what both agents were doing when
// they met, falling back to fallback.
func ActivityContext(fallback relation.MeetingContext) ContextFunc {
	return func(a, b world.Agent) relation.MeetingContext {
		if a.Activity != b.Activity {
			return fallback
		}
		switch a.Activity {
		case world.ActivityWork:
			return relation.ContextWorkplace
		case world.ActivitySocial, world.ActivityWorship:
			return relation.ContextFestival
		case world.ActivityPatrol:
			return relation.ContextCombatAlly
		}
		return fallback
	}
}

// Stats describes one invocation.
type Stats struct {
	Ran        bool `json:"ran"`
	Population int  `json:"population"`
	scan.Stats
	Created int `json:"created"`
	Distant int `json:"distant"`
	Known   int `json:"known"`
	Stale   int `json:"stale"`
}

// Engine is the amortized first-contact scanner.
type Engine struct {
	cfg       Config
	ledger    *relation.Ledger
	scorer    *scorer.Scorer
	contextFn ContextFunc
	cursor    scan.Cursor
	logger    *zap.Logger
}

// NewEngine creates a meeting engine.
func NewEngine(cfg Config, ledger *relation.Ledger, sc *scorer.Scorer, logger *zap.Logger) *Engine {
	cfg = cfg.WithDefaults()
	return &Engine{
		cfg:    cfg,
		ledger: ledger,
		scorer: sc,
		logger: logger,
	}
}

// SetContextFunc overrides how a pair's meeting context is chosen.
func (e *Engine) SetContextFunc(fn ContextFunc) { e.contextFn = fn }

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Cursor returns the persistent scan state.
func (e *Engine) Cursor() scan.Cursor { return e.cursor }

// RestoreCursor replaces the scan state, e.g. after loading a save.
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

	st.Stats = e.cursor.Sweep(len(snap), e.cfg.Budget(), func(i, j int) {
		a, b := snap[i], snap[j]
		if world.DistanceSq(a.Pos, b.Pos) > maxSq {
			st.Distant++
			return
		}
		if e.ledger.Has(a.Handle, b.Handle) || e.ledger.Has(b.Handle, a.Handle) {
			st.Known++
			return
		}
		if !e.ledger.Live(a.Handle) || !e.ledger.Live(b.Handle) {
			st.Stale++
			return
		}
		ctx := e.cfg.Context
		if e.contextFn != nil {
			ctx = e.contextFn(a, b)
		}
		seed := scorer.Seed(a.Handle, b.Handle, tick)
		value := int(e.scorer.Score(a.Traits, b.Traits, ctx, relation.KinNone, seed))

		if !e.ledger.Add(a.Handle, b.Handle, value, ctx, tick, relation.KinNone) ||
			!e.ledger.Add(b.Handle, a.Handle, value, ctx, tick, relation.KinNone) {
			st.Stale++
			return
		}
		st.Created++
		e.logger.Debug("agents met",
			zap.Stringer("a", a.Handle),
			zap.Stringer("b", b.Handle),
			zap.Int("value", value),
			zap.Stringer("context", ctx),
			zap.Uint64("tick", tick))
	})
	return st
}
