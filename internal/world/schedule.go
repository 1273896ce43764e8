package world

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
)

// ActivityType categorizes what an agent is doing.
type ActivityType string

const (
	ActivityIdle    ActivityType = "idle"
	ActivityWork    ActivityType = "work"
	ActivitySocial  ActivityType = "social"
	ActivityRest    ActivityType = "rest"
	ActivityLearn   ActivityType = "learn"
	ActivityPatrol  ActivityType = "patrol"
	ActivityWorship ActivityType = "worship"
)

// Cooperative reports whether two agents doing this together count as a
// shared experience.
func (a ActivityType) Cooperative() bool {
	switch a {
	case ActivityWork, ActivitySocial, ActivityLearn, ActivityPatrol, ActivityWorship:
		return true
	}
	return false
}

// Entry status values.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusDone    = "done"
)

// ScheduleEntry is one planned activity, measured in ticks.
type ScheduleEntry struct {
	ID         string       `json:"id"`
	Type       ActivityType `json:"type"`
	Title      string       `json:"title"`
	StartTick  uint64       `json:"start_tick"`
	Duration   uint64       `json:"duration"`
	RecurEvery uint64       `json:"recur_every,omitempty"` // 0 = runs once
	Status     string       `json:"status"`
}

// Schedule holds all entries for a single agent.
type Schedule struct {
	Agent   relation.Handle `json:"agent"`
	Entries []ScheduleEntry `json:"entries"`
}

// ScheduleManager manages schedules for all agents.
type ScheduleManager struct {
	schedules map[relation.Handle]*Schedule
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewScheduleManager creates a schedule manager.
func NewScheduleManager(logger *zap.Logger) *ScheduleManager {
	return &ScheduleManager{
		schedules: make(map[relation.Handle]*Schedule),
		logger:    logger,
	}
}

// AddEntry adds a schedule entry for an agent and returns its ID.
func (m *ScheduleManager) AddEntry(agent relation.Handle, entry ScheduleEntry) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = StatusPending
	}

	sched, ok := m.schedules[agent]
	if !ok {
		sched = &Schedule{Agent: agent}
		m.schedules[agent] = sched
	}
	sched.Entries = append(sched.Entries, entry)
	return entry.ID
}

// GetSchedule returns a copy of an agent's schedule.
func (m *ScheduleManager) GetSchedule(agent relation.Handle) Schedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.schedules[agent]; ok {
		out := Schedule{Agent: agent, Entries: make([]ScheduleEntry, len(s.Entries))}
		copy(out.Entries, s.Entries)
		return out
	}
	return Schedule{Agent: agent}
}

// Remove drops an agent's schedule, e.g. on despawn.
func (m *ScheduleManager) Remove(agent relation.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, agent)
}

// ActiveEntry returns the currently active entry for an agent, if any.
func (m *ScheduleManager) ActiveEntry(agent relation.Handle) *ScheduleEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sched, ok := m.schedules[agent]
	if !ok {
		return nil
	}
	for i := range sched.Entries {
		if sched.Entries[i].Status == StatusActive {
			e := sched.Entries[i]
			return &e
		}
	}
	return nil
}

// Agents returns every agent with a schedule, in handle order.
func (m *ScheduleManager) Agents() []relation.Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]relation.Handle, 0, len(m.schedules))
	for h := range m.schedules {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// OnTick implements TickListener. Moves entries through pending, active and
// done; recurring entries are re-armed for their next window.
func (m *ScheduleManager) OnTick(info TickInfo) {
	if info.Paused {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for agent, sched := range m.schedules {
		for i := range sched.Entries {
			e := &sched.Entries[i]
			end := e.StartTick + e.Duration

			switch e.Status {
			case StatusPending:
				if info.Tick >= end {
					// Missed window.
					e.Status = StatusDone
				} else if info.Tick >= e.StartTick {
					e.Status = StatusActive
					m.logger.Debug("schedule entry activated",
						zap.Stringer("agent", agent),
						zap.String("title", e.Title))
				}
			case StatusActive:
				if info.Tick >= end {
					e.Status = StatusDone
					m.logger.Debug("schedule entry completed",
						zap.Stringer("agent", agent),
						zap.String("title", e.Title))
				}
			}
			if e.Status == StatusDone && e.RecurEvery > 0 {
				for e.StartTick+e.Duration <= info.Tick {
					e.StartTick += e.RecurEvery
				}
				e.Status = StatusPending
				if info.Tick >= e.StartTick {
					e.Status = StatusActive
				}
			}
		}
	}
}
