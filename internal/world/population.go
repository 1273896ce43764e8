// Package world holds the host-facing side of the relation engine: the tick
// clock, the read-only population view the scanners consume, and the small
// in-memory host used by the sandbox and tests.
package world

import (
	"sort"
	"sync"

	"github.com/nidhogg/nuka-bonds/internal/relation"
	"github.com/nidhogg/nuka-bonds/internal/scorer"
)

// Vec3 is a world-space position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceSq returns the squared distance between two points.
func DistanceSq(a, b Vec3) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return dx*dx + dy*dy + dz*dz
}

// Population is the read-only view of the host's agents.
type Population interface {
	Handles() []relation.Handle
	Position(h relation.Handle) (Vec3, bool)
	Traits(h relation.Handle) (scorer.Traits, bool)
	Activity(h relation.Handle) ActivityType
	Alive(h relation.Handle) bool
}

// Agent is one eligible entry of a Snapshot.
type Agent struct {
	Handle   relation.Handle
	Pos      Vec3
	Traits   scorer.Traits
	Activity ActivityType
}

// Snapshot is a flat, handle-ordered copy of the eligible population.
type Snapshot []Agent

// TakeSnapshot copies every live agent that has both a position and a trait
// profile, sorted by handle so the order never depends on the host.
func TakeSnapshot(p Population) Snapshot {
	handles := p.Handles()
	out := make(Snapshot, 0, len(handles))
	for _, h := range handles {
		if !p.Alive(h) {
			continue
		}
		pos, ok := p.Position(h)
		if !ok {
			continue
		}
		tr, ok := p.Traits(h)
		if !ok {
			continue
		}
		out = append(out, Agent{Handle: h, Pos: pos, Traits: tr, Activity: p.Activity(h)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle.Less(out[j].Handle) })
	return out
}

type slot struct {
	generation uint32
	alive      bool
	hasTraits  bool
	pos        Vec3
	traits     scorer.Traits
	activity   ActivityType
}

// Registry is an in-memory Population. Freed indices are reused with a bumped
// generation.
type Registry struct {
	slots []slot
	free  []uint32
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Spawn adds a live agent.
func (r *Registry) Spawn(pos Vec3, traits scorer.Traits) relation.Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx].generation++
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{})
	}
	s := &r.slots[idx]
	s.alive = true
	s.hasTraits = true
	s.pos = pos
	s.traits = traits
	s.activity = ActivityIdle
	return relation.Handle{Index: idx, Generation: s.generation}
}

// SpawnUntraited adds a live agent with no trait profile; scanners skip it.
func (r *Registry) SpawnUntraited(pos Vec3) relation.Handle {
	h := r.Spawn(pos, scorer.Traits{})
	r.mu.Lock()
	r.slots[h.Index].hasTraits = false
	r.mu.Unlock()
	return h
}

func (r *Registry) get(h relation.Handle) *slot {
	if int(h.Index) >= len(r.slots) {
		return nil
	}
	s := &r.slots[h.Index]
	if !s.alive || s.generation != h.Generation {
		return nil
	}
	return s
}

// Despawn removes an agent. Its handle becomes stale immediately.
func (r *Registry) Despawn(h relation.Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(h)
	if s == nil {
		return false
	}
	s.alive = false
	r.free = append(r.free, h.Index)
	return true
}

// Move sets an agent's position.
func (r *Registry) Move(h relation.Handle, pos Vec3) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(h)
	if s == nil {
		return false
	}
	s.pos = pos
	return true
}

// SetActivity sets what an agent is currently doing.
func (r *Registry) SetActivity(h relation.Handle, a ActivityType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(h)
	if s == nil {
		return false
	}
	s.activity = a
	return true
}

// Handles returns every live handle in index order.
func (r *Registry) Handles() []relation.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]relation.Handle, 0, len(r.slots))
	for i, s := range r.slots {
		if s.alive {
			out = append(out, relation.Handle{Index: uint32(i), Generation: s.generation})
		}
	}
	return out
}

// Len returns the number of live agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots) - len(r.free)
}

func (r *Registry) Alive(h relation.Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.get(h) != nil
}

func (r *Registry) Position(h relation.Handle) (Vec3, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.get(h); s != nil {
		return s.pos, true
	}
	return Vec3{}, false
}

func (r *Registry) Traits(h relation.Handle) (scorer.Traits, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.get(h); s != nil && s.hasTraits {
		return s.traits, true
	}
	return scorer.Traits{}, false
}

func (r *Registry) Activity(h relation.Handle) ActivityType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.get(h); s != nil {
		return s.activity
	}
	return ActivityIdle
}
