package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HeartbeatFunc is called when a heartbeat fires.
type HeartbeatFunc func(ctx context.Context, info TickInfo) error

// Heartbeat is a TickListener that fires a callback every N unpaused ticks.
// It backs the autosave and the graph mirror.
type Heartbeat struct {
	name     string
	every    uint64
	timeout  time.Duration
	lastBeat uint64
	primed   bool
	beatFn   HeartbeatFunc
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewHeartbeat creates a heartbeat listener.
func NewHeartbeat(name string, every uint64, timeout time.Duration, beatFn HeartbeatFunc, logger *zap.Logger) *Heartbeat {
	return &Heartbeat{
		name:    name,
		every:   every,
		timeout: timeout,
		beatFn:  beatFn,
		logger:  logger,
	}
}

// FireNow runs the callback immediately, bypassing the interval check.
func (h *Heartbeat) FireNow(info TickInfo) error {
	h.mu.Lock()
	h.lastBeat = info.Tick
	h.primed = true
	h.mu.Unlock()
	return h.fire(info)
}

// OnTick implements TickListener.
func (h *Heartbeat) OnTick(info TickInfo) {
	if info.Paused || h.every == 0 {
		return
	}
	h.mu.Lock()
	if !h.primed {
		h.lastBeat = info.Tick
		h.primed = true
		h.mu.Unlock()
		return
	}
	if info.Tick-h.lastBeat < h.every {
		h.mu.Unlock()
		return
	}
	h.lastBeat = info.Tick
	h.mu.Unlock()

	if err := h.fire(info); err != nil {
		h.logger.Warn("heartbeat failed",
			zap.String("heartbeat", h.name),
			zap.Uint64("tick", info.Tick),
			zap.Error(err))
	}
}

func (h *Heartbeat) fire(info TickInfo) error {
	timeout := h.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := h.beatFn(ctx, info); err != nil {
		return err
	}
	h.logger.Debug("heartbeat fired",
		zap.String("heartbeat", h.name),
		zap.Uint64("tick", info.Tick))
	return nil
}
