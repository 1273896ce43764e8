package world

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-bonds/internal/relation"
)

// ActivitySink receives derived activities, typically the Registry.
type ActivitySink interface {
	SetActivity(h relation.Handle, a ActivityType) bool
}

// StateManager derives each scheduled agent's current activity from its
// active schedule entry and pushes changes to a sink.
type StateManager struct {
	states   map[relation.Handle]ActivityType
	schedule *ScheduleManager
	sink     ActivitySink
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewStateManager creates a state manager linked to a schedule manager.
func NewStateManager(schedule *ScheduleManager, sink ActivitySink, logger *zap.Logger) *StateManager {
	return &StateManager{
		states:   make(map[relation.Handle]ActivityType),
		schedule: schedule,
		sink:     sink,
		logger:   logger,
	}
}

// GetState returns the last derived activity of an agent.
func (m *StateManager) GetState(agent relation.Handle) ActivityType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.states[agent]; ok {
		return s
	}
	return ActivityIdle
}

// OnTick implements TickListener. Must be registered after the ScheduleManager.
func (m *StateManager) OnTick(info TickInfo) {
	if info.Paused {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, agent := range m.schedule.Agents() {
		next := ActivityIdle
		if entry := m.schedule.ActiveEntry(agent); entry != nil {
			next = entry.Type
		}
		prev, seen := m.states[agent]
		if seen && next == prev {
			continue
		}
		m.states[agent] = next
		if m.sink != nil && !m.sink.SetActivity(agent, next) {
			// Agent is gone; forget it.
			delete(m.states, agent)
			m.schedule.Remove(agent)
			continue
		}
		m.logger.Debug("agent activity changed",
			zap.Stringer("agent", agent),
			zap.String("from", string(prev)),
			zap.String("to", string(next)))
	}
}
