// Package requests carries the ephemeral commands other subsystems use to
// create or change relations, and the processor that applies them.
package requests

import (
	"errors"
	"sync"

	"github.com/nidhogg/nuka-bonds/internal/relation"
)

// ErrSelfRelation is returned when a request names the same agent twice.
var ErrSelfRelation = errors.New("source and target are the same agent")

// Create asks for a relation between A and B, scored the same way as a
// meeting but with a caller-chosen context and kinship.
type Create struct {
	A       relation.Handle         `json:"a"`
	B       relation.Handle         `json:"b"`
	Context relation.MeetingContext `json:"context"`
	Kinship relation.Kinship        `json:"kinship"`
}

// Validate rejects malformed creation requests.
func (c Create) Validate() error {
	if c.A == c.B {
		return ErrSelfRelation
	}
	return nil
}

// Modify shifts Source's value toward Target by Delta.
type Modify struct {
	Source relation.Handle `json:"source"`
	Target relation.Handle `json:"target"`
	Delta  int             `json:"delta"`
	Shared bool            `json:"shared,omitempty"` // also counts a shared experience
}

// Validate rejects malformed modification requests.
func (m Modify) Validate() error {
	if m.Source == m.Target {
		return ErrSelfRelation
	}
	return nil
}

// Flag updates the collaborator-owned bond flags. Nil leaves a flag as is.
type Flag struct {
	Source       relation.Handle `json:"source"`
	Target       relation.Handle `json:"target"`
	Romantic     *bool           `json:"romantic,omitempty"`
	Professional *bool           `json:"professional,omitempty"`
}

// Validate rejects malformed flag requests.
func (f Flag) Validate() error {
	if f.Source == f.Target {
		return ErrSelfRelation
	}
	if f.Romantic == nil && f.Professional == nil {
		return errors.New("flag request changes nothing")
	}
	return nil
}

// Batch is everything drained from a Queue at once.
type Batch struct {
	Creates  []Create `json:"creates,omitempty"`
	Modifies []Modify `json:"modifies,omitempty"`
	Flags    []Flag   `json:"flags,omitempty"`
}

// Len returns the number of requests in the batch.
func (b Batch) Len() int {
	return len(b.Creates) + len(b.Modifies) + len(b.Flags)
}

// Queue is a FIFO of pending requests. Producers may enqueue from any
// goroutine; the tick pipeline drains it.
type Queue struct {
	batch Batch
	mu    sync.Mutex
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) EnqueueCreate(c Create) {
	q.mu.Lock()
	q.batch.Creates = append(q.batch.Creates, c)
	q.mu.Unlock()
}

func (q *Queue) EnqueueModify(m Modify) {
	q.mu.Lock()
	q.batch.Modifies = append(q.batch.Modifies, m)
	q.mu.Unlock()
}

func (q *Queue) EnqueueFlag(f Flag) {
	q.mu.Lock()
	q.batch.Flags = append(q.batch.Flags, f)
	q.mu.Unlock()
}

// Enqueue appends a whole batch, preserving its order.
func (q *Queue) Enqueue(b Batch) {
	q.mu.Lock()
	q.batch.Creates = append(q.batch.Creates, b.Creates...)
	q.batch.Modifies = append(q.batch.Modifies, b.Modifies...)
	q.batch.Flags = append(q.batch.Flags, b.Flags...)
	q.mu.Unlock()
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.batch.Len()
}

// Drain returns and clears everything pending.
func (q *Queue) Drain() Batch {
	q.mu.Lock()
	defer q.mu.Unlock()
	b := q.batch
	q.batch = Batch{}
	return b
}
