// Package society runs the relation pipeline once per simulation tick.
package society

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/meeting"
	"github.com/nidhogg/nuka-bonds/internal/reinforce"
	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/requests"
	"github.com/nidhogg/nuka-bonds/internal/scan"
	"github.com/nidhogg/nuka-bonds/internal/scorer"
	"github.com/nidhogg/nuka-bonds/internal/world"
)

// Config wires the engine's tunables.
type Config struct {
	Meeting   meeting.Config   `json:"meeting" yaml:"meeting"`
	Reinforce reinforce.Config `json:"reinforce" yaml:"reinforce"`
	Tables    *scorer.Tables   `json:"-" yaml:"-"` // nil uses scorer.DefaultTables

	// ActivityContexts derives the meeting context from shared activity
	// instead of always using Meeting.Context.
	ActivityContexts bool `json:"activity_contexts" yaml:"activity_contexts"`
}

// State is the scanner state that must survive a save/load.
type State struct {
	Tick      uint64      `json:"tick"`
	Meeting   scan.Cursor `json:"meeting"`
	Reinforce scan.Cursor `json:"reinforce"`
}

// Summary describes one processed tick.
type Summary struct {
	Tick      uint64          `json:"tick"`
	Meeting   meeting.Stats   `json:"meeting"`
	Requests  requests.Result `json:"requests"`
	Reinforce reinforce.Stats `json:"reinforce"`
}

// Engine owns the ledger and runs meeting detection, request processing and
// reinforcement, in that order, on every recorded tick.
type Engine struct {
	ledger    *relation.Ledger
	scorer    *scorer.Scorer
	queue     *requests.Queue
	processor *requests.Processor
	meeting   *meeting.Engine
	reinforce *reinforce.Engine
	pop       world.Population

	mu       sync.Mutex
	lastTick uint64
	last     Summary
	logger   *zap.Logger
}

// New builds the pipeline over pop. The ledger rejects handles pop no longer
// considers alive.
func New(cfg Config, pop world.Population, logger *zap.Logger) *Engine {
	tables := scorer.DefaultTables()
	if cfg.Tables != nil {
		tables = *cfg.Tables
	}
	sc := scorer.New(tables)
	ledger := relation.NewLedger(relation.WithLiveness(pop.Alive))
	queue := requests.NewQueue()
	proc := requests.NewProcessor(ledger, sc, queue, pop, logger.Named("requests"))

	meet := meeting.NewEngine(cfg.Meeting, ledger, sc, logger.Named("meeting"))
	if cfg.ActivityContexts {
		meet.SetContextFunc(meeting.ActivityContext(meet.Config().Context))
	}

	return &Engine{
		ledger:    ledger,
		scorer:    sc,
		queue:     queue,
		processor: proc,
		meeting:   meet,
		reinforce: reinforce.NewEngine(cfg.Reinforce, ledger, proc, nil, logger.Named("reinforce")),
		pop:       pop,
		logger:    logger,
	}
}

func (e *Engine) Ledger() *relation.Ledger { return e.ledger }

func (e *Engine) Scorer() *scorer.Scorer { return e.scorer }

// Queue is where collaborators enqueue creation, modification and flag
// requests.
func (e *Engine) Queue() *requests.Queue { return e.queue }

// OnTick implements world.TickListener.
func (e *Engine) OnTick(info world.TickInfo) {
	switch {
	case info.Paused:
		skippedTicks.WithLabelValues("paused").Inc()
		return
	case !info.Recording:
		skippedTicks.WithLabelValues("replay").Inc()
		return
	}
	e.Step(info.Tick)
}

// Step runs the three stages for tick unconditionally.
func (e *Engine) Step(tick uint64) Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	sum := Summary{Tick: tick}

	start := time.Now()
	sum.Meeting = e.meeting.Run(tick, e.pop)
	stageDuration.WithLabelValues("meeting").Observe(time.Since(start).Seconds())

	start = time.Now()
	sum.Requests = e.processor.Drain(tick)
	stageDuration.WithLabelValues("requests").Observe(time.Since(start).Seconds())

	start = time.Now()
	sum.Reinforce = e.reinforce.Run(tick, e.pop)
	stageDuration.WithLabelValues("reinforce").Observe(time.Since(start).Seconds())

	e.record(sum)
	e.lastTick = tick
	e.last = sum
	return sum
}

func (e *Engine) record(sum Summary) {
	pairChecks.WithLabelValues("meeting").Add(float64(sum.Meeting.Checks))
	pairChecks.WithLabelValues("reinforce").Add(float64(sum.Reinforce.Checks))
	if sum.Meeting.Wrapped {
		scanSweeps.WithLabelValues("meeting").Inc()
	}
	if sum.Reinforce.Wrapped {
		scanSweeps.WithLabelValues("reinforce").Inc()
	}
	relationsCreated.WithLabelValues("meeting").Add(float64(sum.Meeting.Created))
	relationsCreated.WithLabelValues("request").Add(float64(sum.Requests.Created))
	requestsProcessed.WithLabelValues("applied").Add(float64(sum.Requests.Applied()))
	requestsProcessed.WithLabelValues("dropped").Add(float64(sum.Requests.Dropped()))
	reinforcements.Add(float64(sum.Reinforce.Reinforced))
	ledgerSize.Set(float64(e.ledger.Len()))

	if sum.Meeting.Ran || sum.Reinforce.Ran || sum.Requests.Applied() > 0 {
		e.logger.Debug("relations updated",
			zap.Uint64("tick", sum.Tick),
			zap.Int("met", sum.Meeting.Created),
			zap.Int("meeting_checks", sum.Meeting.Checks),
			zap.Int("requests_applied", sum.Requests.Applied()),
			zap.Int("requests_dropped", sum.Requests.Dropped()),
			zap.Int("reinforced", sum.Reinforce.Reinforced),
			zap.Int("reinforce_checks", sum.Reinforce.Checks))
	}
}

// LastSummary returns the most recent processed tick.
func (e *Engine) LastSummary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// State captures the scanner cursors.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Tick:      e.lastTick,
		Meeting:   e.meeting.Cursor(),
		Reinforce: e.reinforce.Cursor(),
	}
}

// Restore reinstates cursors captured by State.
func (e *Engine) Restore(s State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restoreLocked(s)
}

func (e *Engine) restoreLocked(s State) {
	e.lastTick = s.Tick
	e.meeting.RestoreCursor(s.Meeting)
	e.reinforce.RestoreCursor(s.Reinforce)
}
