// Package listeners provides a subscriber set with snapshot fan-out.
package listeners

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Handle identifies one subscription. The zero Handle is never issued.
type Handle uint64

// Registry holds callbacks in registration order.
//
// Dispatch works on a snapshot taken under a read lock, so listeners may add or
// remove subscriptions (including their own) while being called; such changes
// apply to the next dispatch only.
type Registry[T any] struct {
	name   string
	logger *logrus.Logger

	mu        sync.RWMutex
	listeners *orderedmap.OrderedMap[Handle, func(T)]
	next      atomic.Uint64
}

// New creates an empty registry. name is used in log fields.
func New[T any](name string, logger *logrus.Logger) *Registry[T] {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry[T]{
		name:      name,
		logger:    logger,
		listeners: orderedmap.New[Handle, func(T)](),
	}
}

// Add subscribes fn and returns its handle. A nil fn is ignored and yields the zero Handle.
func (r *Registry[T]) Add(fn func(T)) Handle {
	if fn == nil {
		return 0
	}
	h := Handle(r.next.Add(1))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners.Set(h, fn)
	return h
}

// Remove unsubscribes h; unknown handles are ignored
func (r *Registry[T]) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners.Delete(h)
}

// Len returns the number of subscribers
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listeners.Len()
}

// Clear removes all subscribers
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = orderedmap.New[Handle, func(T)]()
}

func (r *Registry[T]) snapshot() []func(T) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]func(T), 0, r.listeners.Len())
	for pair := r.listeners.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Dispatch calls every subscriber present at call time, in registration order.
// A panicking subscriber is logged and skipped.
func (r *Registry[T]) Dispatch(v T) {
	for _, fn := range r.snapshot() {
		r.call(fn, v)
	}
}

func (r *Registry[T]) call(fn func(T), v T) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logrus.Fields{
				"registry": r.name,
				"panic":    rec,
			}).Error("Listener panic recovered")
		}
	}()
	fn(v)
}
