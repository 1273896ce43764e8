package society

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/meeting"
	"github.com/nidhogg/nuka-bonds/internal/reinforce"
	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/requests"
	"github.com/nidhogg/nuka-bonds/internal/scorer"
	"github.com/nidhogg/nuka-bonds/internal/world"
)

func fastConfig() Config {
	return Config{
		Meeting:   meeting.Config{Interval: 1},
		Reinforce: reinforce.Config{Interval: 1},
	}
}

func TestPausedAndReplayTicksAreSkipped(t *testing.T) {
	reg := world.NewRegistry()
	a := reg.Spawn(world.Vec3{}, scorer.Traits{})
	b := reg.Spawn(world.Vec3{X: 2}, scorer.Traits{})
	eng := New(fastConfig(), reg, zap.NewNop())

	eng.OnTick(world.TickInfo{Tick: 1, Paused: true, Recording: true})
	eng.OnTick(world.TickInfo{Tick: 2, Recording: false})
	assert.Zero(t, eng.Ledger().Len())

	eng.OnTick(world.TickInfo{Tick: 3, Recording: true})
	assert.True(t, eng.Ledger().Has(a, b))
	assert.True(t, eng.Ledger().Has(b, a))
	assert.Equal(t, uint64(3), eng.LastSummary().Tick)
}

func TestStageOrder(t *testing.T) {
	reg := world.NewRegistry()
	a := reg.Spawn(world.Vec3{}, scorer.Traits{})
	b := reg.Spawn(world.Vec3{X: 2}, scorer.Traits{})
	reg.SetActivity(a, world.ActivityWork)
	reg.SetActivity(b, world.ActivityWork)
	eng := New(fastConfig(), reg, zap.NewNop())

	// The meeting stage creates the pair before the queued modification is
	// drained, so it lands in the same tick.
	eng.Queue().EnqueueModify(requests.Modify{Source: a, Target: b, Delta: -3})
	sum := eng.Step(1)
	require.Equal(t, 1, sum.Meeting.Created)
	assert.Equal(t, 1, sum.Requests.Modified)
	assert.Equal(t, 1, sum.Reinforce.Fresh)
	assert.Zero(t, sum.Reinforce.Reinforced)

	ab, _ := eng.Ledger().Get(a, b)
	ba, _ := eng.Ledger().Get(b, a)
	assert.Equal(t, int8(relation.Clamp(int(ba.Value)-3)), ab.Value)

	sum = eng.Step(2)
	assert.Zero(t, sum.Meeting.Created)
	assert.Equal(t, 1, sum.Reinforce.Reinforced)
	ba2, _ := eng.Ledger().Get(b, a)
	assert.Equal(t, uint32(1), ba2.SharedExperiences)
}

func TestStateRestoreReplaysIdentically(t *testing.T) {
	build := func() (*world.Registry, *Engine) {
		reg := world.NewRegistry()
		for i := 0; i < 25; i++ {
			reg.Spawn(world.Vec3{X: float64(i % 5), Y: float64(i / 5)}, scorer.Traits{
				Moral: float64(i*17%200 - 100),
				Order: float64(i*31%200 - 100),
			})
		}
		cfg := Config{
			Meeting:   meeting.Config{Interval: 2, MaxPairChecks: 30, MaxAgentsPerBatch: 4},
			Reinforce: reinforce.Config{Interval: 3, MaxPairChecks: 30, MaxAgentsPerBatch: 4},
		}
		return reg, New(cfg, reg, zap.NewNop())
	}

	_, full := build()
	for tick := uint64(1); tick <= 60; tick++ {
		full.Step(tick)
	}

	_, first := build()
	for tick := uint64(1); tick <= 30; tick++ {
		first.Step(tick)
	}
	state := first.State()
	records := first.Ledger().Export()
	assert.Equal(t, uint64(30), state.Tick)

	_, resumed := build()
	resumed.Ledger().Import(records)
	resumed.Restore(state)
	for tick := uint64(31); tick <= 60; tick++ {
		resumed.Step(tick)
	}

	assert.Equal(t, full.Ledger().Export(), resumed.Ledger().Export())
	assert.Equal(t, full.State(), resumed.State())
}

func TestCustomTables(t *testing.T) {
	reg := world.NewRegistry()
	a := reg.Spawn(world.Vec3{}, scorer.Traits{})
	b := reg.Spawn(world.Vec3{X: 1}, scorer.Traits{})
	cfg := fastConfig()
	tables := scorer.DefaultTables()
	tables.ContextOffsets[relation.ContextVillageNeighbor] = 90
	cfg.Tables = &tables
	eng := New(cfg, reg, zap.NewNop())
	assert.Equal(t, 90.0, eng.Scorer().ContextOffset(relation.ContextVillageNeighbor))
	assert.Equal(t, 10.0, eng.Scorer().ContextOffset(relation.ContextWorkplace))

	eng.Step(1)
	v, ok := eng.Ledger().Value(a, b)
	require.True(t, ok)
	assert.GreaterOrEqual(t, v, int8(80))
}

func TestModifyForDespawnedAgentIsDropped(t *testing.T) {
	reg := world.NewRegistry()
	a := reg.Spawn(world.Vec3{}, scorer.Traits{})
	b := reg.Spawn(world.Vec3{X: 2}, scorer.Traits{})
	eng := New(fastConfig(), reg, zap.NewNop())

	eng.Step(1)
	before, ok := eng.Ledger().Get(a, b)
	require.True(t, ok)

	require.True(t, reg.Despawn(b))
	eng.Queue().EnqueueModify(requests.Modify{Source: a, Target: b, Delta: 50})
	sum := eng.Step(2)
	assert.Zero(t, sum.Requests.Modified)
	assert.Equal(t, 1, sum.Requests.ModifyDropped)

	after, _ := eng.Ledger().Get(a, b)
	assert.Equal(t, before.Value, after.Value)
}

func TestResumeIsSerializedWithStep(t *testing.T) {
	reg := world.NewRegistry()
	for i := 0; i < 10; i++ {
		reg.Spawn(world.Vec3{X: float64(i)}, scorer.Traits{Moral: float64(i * 10)})
	}
	eng := New(fastConfig(), reg, zap.NewNop())
	for tick := uint64(1); tick <= 5; tick++ {
		eng.Step(tick)
	}
	snap := eng.Snapshot()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for tick := uint64(6); tick <= 50; tick++ {
			eng.Step(tick)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			eng.Resume(snap)
		}
	}()
	wg.Wait()

	// Every snapshot taken afterwards is internally consistent.
	got := eng.Snapshot()
	for _, rec := range got.Records {
		assert.Equal(t, relation.TierFor(int(rec.Value)), rec.Tier)
	}
	assert.GreaterOrEqual(t, got.State.Tick, snap.State.Tick)
}
