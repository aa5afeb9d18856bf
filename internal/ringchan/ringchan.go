// Package ringchan provides a bounded channel that overwrites its oldest element
// instead of blocking the producer.
package ringchan

import "sync/atomic"

// Channel wraps a buffered channel with drop-oldest semantics.
//
// Producers call Send from any goroutine (typically a radio callback) and never
// block; consumers range over C() like a normal channel.
//
//	events := ringchan.New[detect.Event](64)
//	session.AddDetectionListener(func(ev detect.Event) { events.Send(ev) })
//	for ev := range events.C() { ... }
type Channel[T any] struct {
	ch      chan T
	closed  atomic.Bool
	metrics Metrics
}

// New creates a Channel with the given capacity
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Channel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
//
// Reads via C() are not counted in Metrics.Received.
func (c *Channel[T]) C() <-chan T {
	return c.ch
}

// Send inserts v, discarding the oldest element when full.
// It reports whether an element was dropped. Sending after Close is a no-op.
func (c *Channel[T]) Send(v T) (dropped bool) {
	if c.closed.Load() {
		return false
	}
	for {
		select {
		case c.ch <- v:
			atomic.AddInt64(&c.metrics.Sent, 1)
			return dropped
		default:
		}
		select {
		case <-c.ch: // drop oldest
			atomic.AddInt64(&c.metrics.Overwritten, 1)
			dropped = true
		default:
		}
	}
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (c *Channel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-c.ch:
		if ok {
			atomic.AddInt64(&c.metrics.Received, 1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (c *Channel[T]) Len() int {
	return len(c.ch)
}

// Cap returns the channel capacity.
func (c *Channel[T]) Cap() int {
	return cap(c.ch)
}

// Close closes the underlying channel. It is safe to call more than once, but
// must not race with Send: unsubscribe producers first.
func (c *Channel[T]) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.ch)
	}
}

// Metrics returns a snapshot of the counters
func (c *Channel[T]) Metrics() Metrics {
	return Metrics{
		Sent:        atomic.LoadInt64(&c.metrics.Sent),
		Received:    atomic.LoadInt64(&c.metrics.Received),
		Overwritten: atomic.LoadInt64(&c.metrics.Overwritten),
	}
}

// Metrics counts channel traffic. All fields are updated atomically.
type Metrics struct {
	Sent        int64
	Received    int64
	Overwritten int64
}
