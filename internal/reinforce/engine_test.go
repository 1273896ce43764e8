package reinforce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/requests"
	"github.com/nidhogg/nuka-bonds/internal/scorer"
	"github.com/nidhogg/nuka-bonds/internal/world"
)

type fixture struct {
	reg    *world.Registry
	ledger *relation.Ledger
	engine *Engine
}

func newFixture(cfg Config, accept Predicate) *fixture {
	reg := world.NewRegistry()
	ledger := relation.NewLedger(relation.WithLiveness(reg.Alive))
	proc := requests.NewProcessor(ledger, scorer.New(scorer.DefaultTables()), requests.NewQueue(), reg, zap.NewNop())
	return &fixture{
		reg:    reg,
		ledger: ledger,
		engine: NewEngine(cfg, ledger, proc, accept, zap.NewNop()),
	}
}

func (f *fixture) pair(gap float64, activity world.ActivityType) (relation.Handle, relation.Handle) {
	a := f.reg.Spawn(world.Vec3{}, scorer.Traits{})
	b := f.reg.Spawn(world.Vec3{X: gap}, scorer.Traits{})
	f.reg.SetActivity(a, activity)
	f.reg.SetActivity(b, activity)
	return a, b
}

func TestDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 1, cfg.Delta)
}

func TestCooperatingPairIsReinforcedBothWays(t *testing.T) {
	f := newFixture(Config{Interval: 1}, nil)
	a, b := f.pair(3, world.ActivityWork)
	f.ledger.Add(a, b, 10, relation.ContextWorkplace, 0, relation.KinNone)
	f.ledger.Add(b, a, 12, relation.ContextWorkplace, 0, relation.KinNone)

	st := f.engine.Run(5, f.reg)
	require.Equal(t, 1, st.Reinforced)

	ab, _ := f.ledger.Get(a, b)
	ba, _ := f.ledger.Get(b, a)
	assert.Equal(t, int8(11), ab.Value)
	assert.Equal(t, int8(13), ba.Value)
	assert.Equal(t, uint32(1), ab.SharedExperiences)
	assert.Equal(t, uint32(1), ba.PositiveInteractions)
	assert.Equal(t, uint64(5), ba.LastInteractionTick)
}

func TestNoRelationNoReinforcement(t *testing.T) {
	f := newFixture(Config{Interval: 1}, nil)
	a, b := f.pair(3, world.ActivityWork)
	f.ledger.Add(a, b, 10, relation.ContextWorkplace, 0, relation.KinNone)

	st := f.engine.Run(1, f.reg)
	assert.Equal(t, 1, st.Unrelated)
	assert.Zero(t, st.Reinforced)
	assert.False(t, f.ledger.Has(b, a), "reinforcement must never create a relation")
	v, _ := f.ledger.Value(a, b)
	assert.Equal(t, int8(10), v)
}

func TestPredicateAndDistanceFilter(t *testing.T) {
	f := newFixture(Config{Interval: 1}, nil)
	a, b := f.pair(3, world.ActivityRest)
	c, d := f.pair(50, world.ActivityWork)
	for _, p := range [][2]relation.Handle{{a, b}, {c, d}} {
		f.ledger.Add(p[0], p[1], 0, relation.ContextVillageNeighbor, 0, relation.KinNone)
		f.ledger.Add(p[1], p[0], 0, relation.ContextVillageNeighbor, 0, relation.KinNone)
	}

	st := f.engine.Run(1, f.reg)
	assert.Zero(t, st.Reinforced)
	assert.Equal(t, 1, st.Rejected)
	assert.Positive(t, st.Distant)
}

func TestCustomPredicateAndDelta(t *testing.T) {
	always := func(a, b world.Agent) bool { return true }
	f := newFixture(Config{Interval: 10, Delta: 4}, always)
	a, b := f.pair(1, world.ActivityIdle)
	f.ledger.Add(a, b, 98, relation.ContextFestival, 0, relation.KinNone)
	f.ledger.Add(b, a, 98, relation.ContextFestival, 0, relation.KinNone)

	f.engine.Run(10, f.reg)
	f.engine.Run(15, f.reg) // rate limited
	f.engine.Run(20, f.reg)

	ab, _ := f.ledger.Get(a, b)
	assert.Equal(t, int8(100), ab.Value)
	assert.Equal(t, relation.TierDevoted, ab.Tier)
	assert.Equal(t, uint32(2), ab.SharedExperiences)
}

func TestSkipsPairsMetThisTick(t *testing.T) {
	f := newFixture(Config{Interval: 1}, nil)
	a, b := f.pair(1, world.ActivitySocial)
	f.ledger.Add(a, b, 0, relation.ContextFestival, 4, relation.KinNone)
	f.ledger.Add(b, a, 0, relation.ContextFestival, 4, relation.KinNone)

	st := f.engine.Run(4, f.reg)
	assert.Equal(t, 1, st.Fresh)
	assert.Zero(t, st.Reinforced)

	st = f.engine.Run(5, f.reg)
	assert.Equal(t, 1, st.Reinforced)
}

func TestBudgetRespected(t *testing.T) {
	f := newFixture(Config{Interval: 1, MaxPairChecks: 6, MaxAgentsPerBatch: 3}, nil)
	for i := 0; i < 10; i++ {
		f.reg.Spawn(world.Vec3{X: float64(i)}, scorer.Traits{})
	}
	for tick := uint64(1); tick <= 20; tick++ {
		st := f.engine.Run(tick, f.reg)
		assert.LessOrEqual(t, st.Checks, 6)
	}
}
