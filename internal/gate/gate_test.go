package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestThrottle(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	th := NewThrottle(0)
	assert.Equal(t, DefaultThrottleInterval, th.Interval())

	assert.True(t, th.ShouldEmit(start), "first emission always passes")
	assert.False(t, th.ShouldEmit(start.Add(100*time.Millisecond)))
	assert.False(t, th.ShouldEmit(start.Add(249*time.Millisecond)))
	assert.True(t, th.ShouldEmit(start.Add(250*time.Millisecond)))

	// suppressed calls do not move the window
	assert.False(t, th.ShouldEmit(start.Add(400*time.Millisecond)))
	assert.True(t, th.ShouldEmit(start.Add(500*time.Millisecond)))
}

func TestThrottle_CustomInterval(t *testing.T) {
	start := time.Unix(0, 0)
	th := NewThrottle(time.Second)

	assert.True(t, th.ShouldEmit(start))
	assert.False(t, th.ShouldEmit(start.Add(999*time.Millisecond)))
	assert.True(t, th.ShouldEmit(start.Add(time.Second)))
}

func TestCooldown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var c Cooldown

	_, fired := c.LastFire()
	assert.False(t, fired)

	assert.True(t, c.TryFire(start, 10*time.Second))
	assert.False(t, c.TryFire(start.Add(9*time.Second), 10*time.Second))
	assert.True(t, c.TryFire(start.Add(10*time.Second), 10*time.Second))

	last, fired := c.LastFire()
	assert.True(t, fired)
	assert.Equal(t, start.Add(10*time.Second), last)

	// a shorter cooldown applies to the next attempt immediately
	assert.True(t, c.TryFire(start.Add(11*time.Second), time.Second))

	c.Reset()
	assert.True(t, c.TryFire(start, time.Hour))
}

func TestCooldown_ZeroAlwaysFires(t *testing.T) {
	now := time.Unix(100, 0)
	var c Cooldown
	assert.True(t, c.TryFire(now, 0))
	assert.True(t, c.TryFire(now, 0))
}
