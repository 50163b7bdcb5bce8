package dispatch

import (
	"sync"
	"time"
)

// Timers is a timer callback context. Callbacks of every Timer created from
// the same Timers run one at a time.
type Timers struct {
	mu    sync.Mutex
	clock Clock
}

// NewTimers creates a timer context on the given clock.
func NewTimers(clock Clock) *Timers {
	return &Timers{clock: clock}
}

// Clock returns the clock the timers are armed on.
func (ts *Timers) Clock() Clock {
	return ts.clock
}

// Timer is a restartable one-shot timer. Start on an armed timer replaces
// the pending expiration instead of adding a second one.
type Timer struct {
	ts   *Timers
	name string
	fn   func()

	mu    sync.Mutex
	gen   uint64
	armed bool
	stop  Stopper
}

// NewTimer creates an unarmed timer that calls fn in the timer context.
func (ts *Timers) NewTimer(name string, fn func()) *Timer {
	return &Timer{ts: ts, name: name, fn: fn}
}

// Name returns the timer's name.
func (t *Timer) Name() string {
	return t.name
}

// Start arms the timer to fire after d, cancelling any pending expiration.
func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		t.stop.Stop()
	}
	t.gen++
	gen := t.gen
	t.armed = true
	t.stop = t.ts.clock.AfterFunc(d, func() { t.ts.fire(t, gen) })
}

// Stop disarms the timer. An expiration already racing to run is dropped.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		t.stop.Stop()
		t.stop = nil
	}
	t.gen++
	t.armed = false
}

// Active reports whether the timer is armed.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (ts *Timers) fire(t *Timer, gen uint64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	t.mu.Lock()
	if !t.armed || t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.armed = false
	t.stop = nil
	t.mu.Unlock()

	t.fn()
}
