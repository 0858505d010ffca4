// Package debounce delays a call until input has been quiet for a fixed
// interval. Each Debouncer owns its timer; there is no shared state between
// instances.
package debounce

import (
	"context"
	"sync"
	"time"
)

// DefaultDelay is the quiet interval used when New is given a non-positive
// delay.
const DefaultDelay = 400 * time.Millisecond

// Debouncer runs at most one pending call. Each Trigger replaces the pending
// call and restarts the delay.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64
	closed  bool
}

func New(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay}
}

// Delay returns the configured quiet interval.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Trigger cancels any pending call and schedules fn to run after the delay.
// It is a no-op once the Debouncer has been closed by Run.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.cancelLocked()
	d.pending = fn
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen) })
}

// Flush runs the pending call immediately on the calling goroutine. It
// reports whether there was a call to run, and is a no-op once closed.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	fn := d.pending
	d.cancelLocked()
	d.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Stop cancels the pending call without running it. It reports whether a
// call was cancelled.
func (d *Debouncer) Stop() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	had := d.pending != nil
	d.cancelLocked()
	return had
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Run blocks until ctx is done, then cancels the pending call and closes the
// Debouncer so later Triggers are ignored.
func (d *Debouncer) Run(ctx context.Context) {
	<-ctx.Done()
	d.mu.Lock()
	d.cancelLocked()
	d.closed = true
	d.mu.Unlock()
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.pending
	d.pending = nil
	d.timer = nil
	d.gen++
	d.mu.Unlock()
	fn()
}

// cancelLocked drops the pending call. A timer that already fired but has
// not yet taken the lock sees a newer generation and does nothing.
func (d *Debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
	d.gen++
}
