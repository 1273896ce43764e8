// Package relation holds the sparse per-agent relation ledger.
package relation

import (
	"sort"
	"sync"
)

// LivenessFunc reports whether a handle still refers to a live agent.
type LivenessFunc func(Handle) bool

// Ledger stores each agent's relations as a small ordered list.
//
// Writes come from the tick pipeline only; the lock exists so read-only
// queries (HTTP, graph sync) can run while the clock is ticking.
type Ledger struct {
	lists map[Handle][]Relation // owner -> relations, insertion order
	alive LivenessFunc
	mu    sync.RWMutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLiveness makes writes no-ops for handles the host no longer knows.
func WithLiveness(fn LivenessFunc) Option {
	return func(l *Ledger) { l.alive = fn }
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{lists: make(map[Handle][]Relation)}
	for _, o := range opts {
		o(l)
	}
	return l
}

// find returns the index of other in owner's list or -1 (caller holds lock).
func (l *Ledger) find(owner, other Handle) int {
	for i := range l.lists[owner] {
		if l.lists[owner][i].Other == other {
			return i
		}
	}
	return -1
}

// Has reports whether owner has a record of other.
func (l *Ledger) Has(owner, other Handle) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.find(owner, other) >= 0
}

// Value returns owner's value toward other, if a record exists.
func (l *Ledger) Value(owner, other Handle) (int8, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.find(owner, other); i >= 0 {
		return l.lists[owner][i].Value, true
	}
	return 0, false
}

// Get returns a copy of owner's record of other.
func (l *Ledger) Get(owner, other Handle) (Relation, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.find(owner, other); i >= 0 {
		return l.lists[owner][i], true
	}
	return Relation{}, false
}

// Relations returns a copy of owner's list in insertion order.
func (l *Ledger) Relations(owner Handle) []Relation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	src := l.lists[owner]
	out := make([]Relation, len(src))
	copy(out, src)
	return out
}

// Live reports whether h passes the liveness check. Without a check every
// handle is live.
func (l *Ledger) Live(h Handle) bool {
	return l.alive == nil || l.alive(h)
}

// Add records owner's first impression of other. It returns false without
// changing anything when the record already exists, when owner == other, or
// when either handle is stale.
func (l *Ledger) Add(owner, other Handle, value int, ctx MeetingContext, tick uint64, kin Kinship) bool {
	if owner == other || !l.Live(owner) || !l.Live(other) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.find(owner, other) >= 0 {
		return false
	}
	v := Clamp(value)
	l.lists[owner] = append(l.lists[owner], Relation{
		Other:               other,
		Value:               int8(v),
		Tier:                TierFor(v),
		FirstMetTick:        tick,
		LastInteractionTick: tick,
		Context:             ctx,
		Kinship:             kin,
	})
	return true
}

// maxDelta is the widest shift that can matter between MinValue and MaxValue.
const maxDelta = MaxValue - MinValue

// Modify applies delta to owner's value toward other, clamping the result and
// re-deriving the tier. It returns false if there is no such record or either
// handle is stale.
func (l *Ledger) Modify(owner, other Handle, delta int, tick uint64) bool {
	if !l.Live(owner) || !l.Live(other) {
		return false
	}
	delta = max(min(delta, maxDelta), -maxDelta)
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.find(owner, other)
	if i < 0 {
		return false
	}
	r := &l.lists[owner][i]
	v := Clamp(int(r.Value) + delta)
	r.Value = int8(v)
	r.Tier = TierFor(v)
	r.LastInteractionTick = tick
	switch {
	case delta > 0:
		r.PositiveInteractions++
	case delta < 0:
		r.NegativeInteractions++
	}
	return true
}

// MarkShared counts one shared experience on owner's record of other.
func (l *Ledger) MarkShared(owner, other Handle, tick uint64) bool {
	if !l.Live(owner) || !l.Live(other) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.find(owner, other)
	if i < 0 {
		return false
	}
	r := &l.lists[owner][i]
	r.SharedExperiences++
	r.LastInteractionTick = tick
	return true
}

// SetBonds updates the collaborator-owned romantic/professional flags. Nil
// leaves a flag unchanged. Stale handles are ignored.
func (l *Ledger) SetBonds(owner, other Handle, romantic, professional *bool) bool {
	if !l.Live(owner) || !l.Live(other) {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.find(owner, other)
	if i < 0 {
		return false
	}
	r := &l.lists[owner][i]
	if romantic != nil {
		r.IsRomantic = *romantic
	}
	if professional != nil {
		r.IsProfessional = *professional
	}
	return true
}

// Owners returns every handle that owns at least one record, sorted.
func (l *Ledger) Owners() []Handle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ownersLocked()
}

func (l *Ledger) ownersLocked() []Handle {
	out := make([]Handle, 0, len(l.lists))
	for h, list := range l.lists {
		if len(list) > 0 {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// Len returns the total number of records.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, list := range l.lists {
		n += len(list)
	}
	return n
}

// Export flattens the ledger in a stable order: owners ascending, each
// owner's records in insertion order.
func (l *Ledger) Export() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	owners := l.ownersLocked()
	out := make([]Record, 0, len(owners))
	for _, o := range owners {
		for _, r := range l.lists[o] {
			out = append(out, Record{Owner: o, Relation: r})
		}
	}
	return out
}

// Import replaces the ledger contents with records, in the given order.
// Values are clamped and tiers re-derived; a repeated (owner, other) pair keeps
// the first occurrence.
func (l *Ledger) Import(records []Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lists = make(map[Handle][]Relation)
	for _, rec := range records {
		if rec.Owner == rec.Other || l.find(rec.Owner, rec.Other) >= 0 {
			continue
		}
		r := rec.Relation
		v := Clamp(int(r.Value))
		r.Value = int8(v)
		r.Tier = TierFor(v)
		l.lists[rec.Owner] = append(l.lists[rec.Owner], r)
	}
}
