// Package debounce coalesces a rapid sequence of signals into a single
// trailing invocation after a quiet period. It is used to throttle outbound
// typing indicators so that a burst of keystrokes produces one wire event
// instead of one per key.
package debounce

import (
	"sync"
	"time"
)

// Debouncer schedules at most one pending invocation of its handler. Each
// Call cancels any previously scheduled invocation and schedules a new one
// after the configured delay, so only the last value within a delay window
// reaches the handler.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64 // invalidates callbacks from superseded timers
}

// New creates a Debouncer that invokes fn with the most recent value after
// delay has elapsed without further calls. A non-positive delay makes Call
// invoke fn synchronously.
func New[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Call cancels the pending invocation, if any, and schedules fn(v) after the
// delay. It is safe for concurrent use; the pending-timer handle has a
// single owner behind the mutex.
func (d *Debouncer[T]) Call(v T) {
	if d.delay <= 0 {
		d.fn(v)
		return
	}

	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		// A timer that loses the Stop race still reaches here; the
		// generation check keeps the superseded value from firing.
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn(v)
	})
	d.mu.Unlock()
}

// Stop cancels the pending invocation, if any. The handler is not called.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.mu.Unlock()
}
