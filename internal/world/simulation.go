package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickInfo is what every listener sees for one tick.
type TickInfo struct {
	Tick      uint64 `json:"tick"`
	Paused    bool   `json:"paused"`
	Recording bool   `json:"recording"` // false while replaying recorded history
}

// TickListener receives clock ticks.
type TickListener interface {
	OnTick(info TickInfo)
}

// TickFunc adapts a function to TickListener.
type TickFunc func(info TickInfo)

func (f TickFunc) OnTick(info TickInfo) { f(info) }

// Clock drives the simulation in discrete ticks. The tick counter only moves
// forward while unpaused; listeners still hear paused ticks so they can
// decide for themselves what to skip.
type Clock struct {
	tick      uint64
	paused    bool
	recording bool
	speed     float64 // ticks per interval multiplier, 1.0 = nominal
	interval  time.Duration
	listeners []TickListener
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *zap.Logger
}

// NewClock creates a clock in record mode, starting at tick 0.
func NewClock(interval time.Duration, logger *zap.Logger) *Clock {
	return &Clock{
		speed:     1.0,
		interval:  interval,
		recording: true,
		logger:    logger,
	}
}

// AddListener registers a tick listener. Listeners run in registration order.
func (c *Clock) AddListener(l TickListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Info returns the current tick and flags.
func (c *Clock) Info() TickInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return TickInfo{Tick: c.tick, Paused: c.paused, Recording: c.recording}
}

// SetTick restores the counter, e.g. after loading a save.
func (c *Clock) SetTick(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = tick
}

// SetPaused toggles the pause flag.
func (c *Clock) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = paused
	c.logger.Info("clock pause changed", zap.Bool("paused", paused), zap.Uint64("tick", c.tick))
}

// SetRecording switches between record (true) and replay (false) mode.
func (c *Clock) SetRecording(recording bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = recording
	c.logger.Info("clock mode changed", zap.Bool("recording", recording), zap.Uint64("tick", c.tick))
}

// SetSpeed changes how many ticks run per interval.
func (c *Clock) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = speed
}

// Step advances one tick (unless paused) and notifies listeners synchronously.
func (c *Clock) Step() TickInfo {
	c.mu.Lock()
	if !c.paused {
		c.tick++
	}
	info := TickInfo{Tick: c.tick, Paused: c.paused, Recording: c.recording}
	listeners := make([]TickListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnTick(info)
	}
	return info
}

// Start begins the real-time tick loop in a background goroutine.
func (c *Clock) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.loop(ctx)
	c.logger.Info("world clock started",
		zap.Duration("interval", c.interval),
		zap.Float64("speed", c.speed))
}

// Stop halts the tick loop and waits for the in-flight tick to finish.
func (c *Clock) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
		c.logger.Info("world clock stopped", zap.Uint64("tick", c.Info().Tick))
	}
}

func (c *Clock) loop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	var carry float64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			speed := c.speed
			c.mu.RUnlock()

			carry += speed
			for carry >= 1 {
				carry--
				c.Step()
			}
		}
	}
}
