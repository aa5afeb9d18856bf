// Package gate holds the two time-based gates of the pipeline: the debug line
// throttle and the alert cooldown.
package gate

import (
	"sync"
	"time"
)

// DefaultThrottleInterval is the minimum spacing between raw debug lines
const DefaultThrottleInterval = 250 * time.Millisecond

// Throttle lets at most one emission through per interval
type Throttle struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time // zero until the first emission
}

// NewThrottle creates a throttle; a non-positive interval selects DefaultThrottleInterval
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &Throttle{interval: interval}
}

// Interval returns the configured interval
func (t *Throttle) Interval() time.Duration {
	return t.interval
}

// ShouldEmit reports whether an emission at now is allowed and records it if so
func (t *Throttle) ShouldEmit(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return false
	}
	t.last = now
	return true
}

// Cooldown enforces a minimum time between alerts, globally across all devices
type Cooldown struct {
	mu    sync.Mutex
	last  time.Time
	fired bool
}

// TryFire reports whether an alert may fire at now. On success the fire time is recorded.
// The first call always succeeds.
func (c *Cooldown) TryFire(now time.Time, cooldown time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fired && now.Sub(c.last) < cooldown {
		return false
	}
	c.last = now
	c.fired = true
	return true
}

// LastFire returns the last successful fire time, if any
func (c *Cooldown) LastFire() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.fired
}

// Reset forgets the last fire time
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = time.Time{}
	c.fired = false
}
