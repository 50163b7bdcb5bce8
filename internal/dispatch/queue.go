package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned by Post when the queue holds its capacity of
// one-off items.
var ErrQueueFull = errors.New("dispatch: queue full")

// DefaultCapacity bounds the one-off items a Queue accepts.
const DefaultCapacity = 16

type item struct {
	work *Work
	fn   func()
	name string
}

// Queue runs work items in submission order on a single worker.
type Queue struct {
	logger   *slog.Logger
	capacity int

	mu     sync.Mutex
	items  []item
	posted int
	wake   chan struct{}
}

// NewQueue creates a queue accepting up to capacity posted closures. Work
// items never count against the capacity since each has a single slot.
func NewQueue(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		logger:   logger.With("component", "dispatch"),
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Work is a payload-free deferred action with a single pending slot.
type Work struct {
	q       *Queue
	name    string
	fn      func()
	pending bool
}

// NewWork creates a work item that runs fn on the queue's worker.
func (q *Queue) NewWork(name string, fn func()) *Work {
	return &Work{q: q, name: name, fn: fn}
}

// Name returns the work item's name.
func (w *Work) Name() string {
	return w.name
}

// Submit queues the item unless it is already pending. It reports whether
// the item was queued.
func (w *Work) Submit() bool {
	q := w.q
	q.mu.Lock()
	if w.pending {
		q.mu.Unlock()
		return false
	}
	w.pending = true
	q.items = append(q.items, item{work: w, name: w.name})
	q.mu.Unlock()
	q.signal()
	return true
}

// Cancel removes a pending item. It reports whether one was removed; an item
// already running is not affected.
func (w *Work) Cancel() bool {
	q := w.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if !w.pending {
		return false
	}
	for i, it := range q.items {
		if it.work == w {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	w.pending = false
	return true
}

// Pending reports whether the item is queued and not yet started.
func (w *Work) Pending() bool {
	w.q.mu.Lock()
	defer w.q.mu.Unlock()
	return w.pending
}

// Post queues a one-off closure, typically carrying a payload such as an
// inbound network command.
func (q *Queue) Post(name string, fn func()) error {
	q.mu.Lock()
	if q.posted >= q.capacity {
		q.mu.Unlock()
		return fmt.Errorf("%w: dropping %s", ErrQueueFull, name)
	}
	q.posted++
	q.items = append(q.items, item{fn: fn, name: name})
	q.mu.Unlock()
	q.signal()
	return nil
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop removes the head item and clears its pending flag so it can be
// resubmitted while it runs.
func (q *Queue) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	q.items = q.items[1:]
	if it.work != nil {
		it.work.pending = false
	} else {
		q.posted--
	}
	return it, true
}

func (q *Queue) exec(it item) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("work item panicked", "item", it.name, "panic", r)
		}
	}()
	start := time.Now()
	if it.work != nil {
		it.work.fn()
	} else {
		it.fn()
	}
	q.logger.Debug("work item done", "item", it.name, "took", time.Since(start))
}

// RunPending runs queued items until the queue is empty, including items
// submitted while draining. It returns the number of items run.
func (q *Queue) RunPending() int {
	n := 0
	for {
		it, ok := q.pop()
		if !ok {
			return n
		}
		q.exec(it)
		n++
	}
}

// Run executes items as they arrive until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("worker started")
	for {
		q.RunPending()
		select {
		case <-ctx.Done():
			q.logger.Info("worker stopped", "queued", q.Len())
			return ctx.Err()
		case <-q.wake:
		}
	}
}

// DelayedWork is a Work item submitted when its timer expires.
type DelayedWork struct {
	work  *Work
	timer *Timer
}

// NewDelayedWork creates a work item whose Schedule arms a timer in ts.
func (q *Queue) NewDelayedWork(ts *Timers, name string, fn func()) *DelayedWork {
	w := q.NewWork(name, fn)
	return &DelayedWork{
		work:  w,
		timer: ts.NewTimer(name, func() { w.Submit() }),
	}
}

// Schedule submits the work after delay. A non-positive delay submits it
// immediately. Scheduling again replaces the pending delay.
func (d *DelayedWork) Schedule(delay time.Duration) {
	if delay <= 0 {
		d.timer.Stop()
		d.work.Submit()
		return
	}
	d.timer.Start(delay)
}

// Cancel stops the timer and removes the work if it is queued. A run already
// in progress completes.
func (d *DelayedWork) Cancel() {
	d.timer.Stop()
	d.work.Cancel()
}

// Pending reports whether the work is waiting on its timer or the queue.
func (d *DelayedWork) Pending() bool {
	return d.timer.Active() || d.work.Pending()
}
