// Package bus carries relation requests from external producers into the
// engine's queue over a Redis stream.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/requests"
)

// Kind tags the request carried by an Envelope.
type Kind string

const (
	KindCreate Kind = "create"
	KindModify Kind = "modify"
	KindFlag   Kind = "flag"
)

// Envelope is the wire form of one request.
type Envelope struct {
	ID        string           `json:"id"`
	Kind      Kind             `json:"kind"`
	Create    *requests.Create `json:"create,omitempty"`
	Modify    *requests.Modify `json:"modify,omitempty"`
	Flag      *requests.Flag   `json:"flag,omitempty"`
	Source    string           `json:"source,omitempty"` // producing subsystem, informational
	Timestamp time.Time        `json:"timestamp"`
}

// Validate checks that the envelope carries exactly the payload its kind names.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindCreate:
		if e.Create == nil {
			return errors.New("create envelope without payload")
		}
		return e.Create.Validate()
	case KindModify:
		if e.Modify == nil {
			return errors.New("modify envelope without payload")
		}
		return e.Modify.Validate()
	case KindFlag:
		if e.Flag == nil {
			return errors.New("flag envelope without payload")
		}
		return e.Flag.Validate()
	}
	return fmt.Errorf("unknown envelope kind %q", e.Kind)
}

// Enqueue hands the payload to q.
func (e *Envelope) Enqueue(q *requests.Queue) {
	switch e.Kind {
	case KindCreate:
		q.EnqueueCreate(*e.Create)
	case KindModify:
		q.EnqueueModify(*e.Modify)
	case KindFlag:
		q.EnqueueFlag(*e.Flag)
	}
}

const (
	defaultGroup    = "bonds"
	defaultConsumer = "engine"
	readCount       = 64
)

// Bus publishes and consumes request envelopes on a Redis stream.
type Bus struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
	logger   *zap.Logger
}

// New connects to Redis and returns a bus on stream.
func New(redisURL, stream string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(rdb, stream, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client, stream string, logger *zap.Logger) *Bus {
	return &Bus{
		rdb:      rdb,
		stream:   stream,
		group:    defaultGroup,
		consumer: defaultConsumer,
		logger:   logger,
	}
}

// Publish validates env, stamps it and appends it to the stream. It returns
// the envelope ID.
func (b *Bus) Publish(ctx context.Context, env *Envelope) (string, error) {
	if err := env.Validate(); err != nil {
		return "", fmt.Errorf("publish: %w", err)
	}
	if env.ID == "" {
		env.ID = uuid.New().String()
	}
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", b.stream, err)
	}

	b.logger.Debug("published request",
		zap.String("id", env.ID),
		zap.String("kind", string(env.Kind)))
	return env.ID, nil
}

func (b *Bus) PublishCreate(ctx context.Context, c requests.Create) (string, error) {
	return b.Publish(ctx, &Envelope{Kind: KindCreate, Create: &c})
}

func (b *Bus) PublishModify(ctx context.Context, m requests.Modify) (string, error) {
	return b.Publish(ctx, &Envelope{Kind: KindModify, Modify: &m})
}

func (b *Bus) PublishFlag(ctx context.Context, f requests.Flag) (string, error) {
	return b.Publish(ctx, &Envelope{Kind: KindFlag, Flag: &f})
}

// ensureGroup creates the consumer group, reading from the start of the
// stream so nothing published before the first pump is lost.
func (b *Bus) ensureGroup(ctx context.Context) error {
	err := b.rdb.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s: %w", b.group, err)
	}
	return nil
}

// Pump moves envelopes from the stream into q until ctx is cancelled.
func (b *Bus) Pump(ctx context.Context, q *requests.Queue) error {
	if err := b.ensureGroup(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := b.read(ctx, q, 2*time.Second); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("request stream read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// PumpOnce moves whatever is pending without blocking and returns how many
// envelopes were enqueued.
func (b *Bus) PumpOnce(ctx context.Context, q *requests.Queue) (int, error) {
	if err := b.ensureGroup(ctx); err != nil {
		return 0, err
	}
	return b.read(ctx, q, -1)
}

func (b *Bus) read(ctx context.Context, q *requests.Queue, block time.Duration) (int, error) {
	results, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{b.stream, ">"},
		Count:    readCount,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, r := range results {
		for _, msg := range r.Messages {
			if env, ok := b.decode(msg); ok {
				env.Enqueue(q)
				n++
			}
			if err := b.rdb.XAck(ctx, b.stream, b.group, msg.ID).Err(); err != nil {
				return n, fmt.Errorf("ack %s: %w", msg.ID, err)
			}
		}
	}
	return n, nil
}

func (b *Bus) decode(msg redis.XMessage) (*Envelope, bool) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		b.logger.Warn("dropping stream entry without data", zap.String("entry", msg.ID))
		return nil, false
	}
	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		b.logger.Warn("dropping undecodable request", zap.String("entry", msg.ID), zap.Error(err))
		return nil, false
	}
	if err := env.Validate(); err != nil {
		b.logger.Warn("dropping invalid request", zap.String("id", env.ID), zap.Error(err))
		return nil, false
	}
	return &env, true
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
