package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/requests"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := NewWithClient(rdb, "bonds:test", zap.NewNop())
	t.Cleanup(func() { b.Close() })
	return b, mr
}

var (
	ann = relation.Handle{Index: 1}
	ben = relation.Handle{Index: 2, Generation: 3}
)

func TestPublishAndPumpOnce(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBus(t)

	id, err := b.PublishModify(ctx, requests.Modify{Source: ann, Target: ben, Delta: -7})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	_, err = b.PublishCreate(ctx, requests.Create{A: ann, B: ben, Kinship: relation.KinSpouse})
	require.NoError(t, err)
	yes := true
	_, err = b.PublishFlag(ctx, requests.Flag{Source: ann, Target: ben, Romantic: &yes})
	require.NoError(t, err)

	q := requests.NewQueue()
	n, err := b.PumpOnce(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	batch := q.Drain()
	require.Len(t, batch.Modifies, 1)
	require.Len(t, batch.Creates, 1)
	require.Len(t, batch.Flags, 1)
	assert.Equal(t, -7, batch.Modifies[0].Delta)
	assert.Equal(t, ben, batch.Modifies[0].Target)
	assert.Equal(t, relation.KinSpouse, batch.Creates[0].Kinship)
	assert.True(t, *batch.Flags[0].Romantic)

	// Acknowledged entries are not delivered again.
	n, err = b.PumpOnce(ctx, q)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublishRejectsInvalid(t *testing.T) {
	b, _ := newTestBus(t)
	_, err := b.Publish(context.Background(), &Envelope{Kind: KindModify})
	assert.Error(t, err)
	_, err = b.PublishModify(context.Background(), requests.Modify{Source: ann, Target: ann, Delta: 1})
	assert.ErrorIs(t, err, requests.ErrSelfRelation)
}

func TestPumpDropsGarbage(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestBus(t)
	_, err := mr.XAdd("bonds:test", "*", []string{"data", "{not json"})
	require.NoError(t, err)
	_, err = mr.XAdd("bonds:test", "*", []string{"other", "x"})
	require.NoError(t, err)
	_, err = b.PublishModify(ctx, requests.Modify{Source: ann, Target: ben, Delta: 2})
	require.NoError(t, err)

	q := requests.NewQueue()
	n, err := b.PumpOnce(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, q.Len())
}

func TestPumpUntilCancelled(t *testing.T) {
	b, _ := newTestBus(t)
	q := requests.NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Pump(ctx, q) }()

	_, err := b.PublishModify(context.Background(), requests.Modify{Source: ann, Target: ben, Delta: 1})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pump did not stop after cancel")
	}
}

func TestEnvelopeJSONUsesReadableHandles(t *testing.T) {
	env := Envelope{Kind: KindModify, Modify: &requests.Modify{Source: ann, Target: ben, Delta: 1}}
	require.NoError(t, env.Validate())
	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"target":"2:3"`)
}
