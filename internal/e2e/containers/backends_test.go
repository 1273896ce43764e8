//go:build e2e

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/bus"
	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/requests"
	"github.com/nidhogg/nuka-bonds/internal/sandbox"
	"github.com/nidhogg/nuka-bonds/internal/society"
	"github.com/nidhogg/nuka-bonds/internal/world"
)

// newWorld builds a sandbox population and an engine over it.
func newWorld(t *testing.T) (*society.Engine, *sandbox.Sandbox) {
	t.Helper()
	reg := world.NewRegistry()
	sched := world.NewScheduleManager(zap.NewNop())
	sb := sandbox.Generate(sandbox.Config{Seed: 21, Population: 60, Settlements: 3, WorldSize: 90}, reg, sched, zap.NewNop())
	return society.New(society.Config{}, reg, testLogger), sb
}

func runTicks(e *society.Engine, from, to uint64) {
	for tick := from; tick <= to; tick++ {
		e.Step(tick)
	}
}

func TestPostgresSaveLoadResume(t *testing.T) {
	ctx := context.Background()
	engine, _ := newWorld(t)
	runTicks(engine, 1, 90)
	require.Positive(t, engine.Ledger().Len(), "sandbox produced no meetings")

	snap := engine.Snapshot()
	require.NoError(t, testPGStore.Save(ctx, snap))

	loaded, ok, err := testPGStore.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.State, loaded.State)
	assert.Equal(t, snap.Records, loaded.Records)

	// A resumed engine continues exactly like the original.
	resumed, _ := newWorld(t)
	resumed.Resume(loaded)
	runTicks(engine, 91, 150)
	runTicks(resumed, 91, 150)
	assert.Equal(t, engine.Ledger().Export(), resumed.Ledger().Export())
	assert.Equal(t, engine.State(), resumed.State())
}

func TestPostgresMeta(t *testing.T) {
	ctx := context.Background()
	type seedMeta struct {
		Seed int64 `json:"seed"`
	}
	require.NoError(t, testPGStore.SaveMeta(ctx, "sandbox", seedMeta{Seed: 21}))

	var got seedMeta
	ok, err := testPGStore.GetMeta(ctx, "sandbox", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(21), got.Seed)

	ok, err = testPGStore.GetMeta(ctx, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGraphSyncAndQuery(t *testing.T) {
	ctx := context.Background()
	a := relation.Handle{Index: 1}
	b := relation.Handle{Index: 2}
	c := relation.Handle{Index: 3}

	ledger := relation.NewLedger()
	ledger.Add(a, b, 40, relation.ContextWorkplace, 1, relation.KinNone)
	ledger.Add(b, a, 35, relation.ContextWorkplace, 1, relation.KinNone)
	ledger.Add(a, c, -60, relation.ContextCombatOpposing, 2, relation.KinCousin)
	ledger.Add(c, a, -55, relation.ContextCombatOpposing, 2, relation.KinCousin)

	require.NoError(t, testGraph.Sync(ctx, ledger.Export(), 10))

	edges, err := testGraph.Relations(ctx, a)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, b, edges[0].To)
	assert.Equal(t, 40, edges[0].Value)
	assert.Equal(t, "friendly", edges[0].Tier)
	assert.Equal(t, c, edges[1].To)
	assert.Equal(t, "hostile", edges[1].Tier)
	assert.Equal(t, "cousin", edges[1].Kinship)

	// Edges absent from the next sync are pruned.
	only := []relation.Record{}
	for _, rec := range ledger.Export() {
		if rec.Owner != c && rec.Other != c {
			only = append(only, rec)
		}
	}
	require.NoError(t, testGraph.Sync(ctx, only, 20))
	edges, err = testGraph.Relations(ctx, a)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, b, edges[0].To)
}

func TestRedisBusIntoEngine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, sb := newWorld(t)
	agents := sb.Agents()
	b, err := bus.New(testRedisURL, "bonds:e2e", testLogger)
	require.NoError(t, err)
	defer b.Close()

	done := make(chan error, 1)
	go func() { done <- b.Pump(ctx, engine.Queue()) }()

	_, err = b.PublishCreate(ctx, requests.Create{
		A:       agents[0],
		B:       agents[len(agents)-1],
		Context: relation.ContextFestival,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return engine.Queue().Len() == 1 }, 10*time.Second, 50*time.Millisecond)

	engine.Step(1)
	_, ok := engine.Ledger().Get(agents[0], agents[len(agents)-1])
	assert.True(t, ok)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("pump did not stop")
	}
}
