package adc

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sweeney/relay-sensor/internal/dispatch"
)

// DefaultInterval is the time between periodic readings.
const DefaultInterval = 60 * time.Second

// Periodic takes a reading on the worker every interval while enabled.
type Periodic struct {
	sampler  *Sampler
	interval time.Duration
	consume  func(mv int32)
	onError  func(error)
	logger   *slog.Logger

	work    *dispatch.DelayedWork
	enabled atomic.Bool
}

// NewPeriodic creates a stopped Periodic. consume is called on the worker
// with every successful reading; onError, if non-nil, with every failure.
func NewPeriodic(s *Sampler, queue *dispatch.Queue, timers *dispatch.Timers, interval time.Duration, consume func(int32), onError func(error), logger *slog.Logger) *Periodic {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Periodic{
		sampler:  s,
		interval: interval,
		consume:  consume,
		onError:  onError,
		logger:   logger.With("component", "adc"),
	}
	p.work = queue.NewDelayedWork(timers, "adc-periodic", p.run)
	return p
}

// Start enables periodic reading and schedules the first reading
// immediately. Calling Start while enabled does nothing.
func (p *Periodic) Start() {
	if !p.enabled.CompareAndSwap(false, true) {
		return
	}
	p.logger.Info("periodic sampling started", "interval", p.interval)
	p.work.Schedule(0)
}

// Stop disables periodic reading and cancels the pending one. A reading in
// progress completes but does not reschedule.
func (p *Periodic) Stop() {
	p.enabled.Store(false)
	p.work.Cancel()
	p.logger.Info("periodic sampling stopped")
}

// Enabled reports whether periodic reading is on.
func (p *Periodic) Enabled() bool {
	return p.enabled.Load()
}

// Interval returns the time between readings.
func (p *Periodic) Interval() time.Duration {
	return p.interval
}

func (p *Periodic) run() {
	if !p.enabled.Load() {
		return
	}
	mv, err := p.sampler.ReadVoltage()
	if err != nil {
		p.logger.Warn("voltage reading failed", "err", err)
		if p.onError != nil {
			p.onError(err)
		}
	} else if p.consume != nil {
		p.consume(mv)
	}

	if p.enabled.Load() {
		p.work.Schedule(p.interval)
	}
}
