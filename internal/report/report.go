// Package report decides when a changed measurement is worth sending.
//
// A Reporter compares each new value against the last reported one and
// emits only when the difference reaches a threshold and the device is on
// the network.
package report

import (
	"fmt"
	"log/slog"
)

// Outcome is the result of one Update.
type Outcome string

const (
	// OutcomeUnchanged means the change was below the threshold.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeSuppressed means the threshold was crossed while not joined.
	OutcomeSuppressed Outcome = "suppressed"
	// OutcomeSent means a report was emitted.
	OutcomeSent Outcome = "sent"
	// OutcomeFailed means a report was attempted and the emitter failed.
	OutcomeFailed Outcome = "failed"
)

// Policy selects when the last-reported value moves.
type Policy string

const (
	// UpdateOnCrossing moves the last-reported value on every threshold
	// crossing, whether or not a report could be sent.
	UpdateOnCrossing Policy = "on-crossing"
	// UpdateOnEmit moves the last-reported value only when a report is
	// attempted.
	UpdateOnEmit Policy = "on-emit"
)

// ParsePolicy converts a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", UpdateOnCrossing:
		return UpdateOnCrossing, nil
	case UpdateOnEmit:
		return UpdateOnEmit, nil
	}
	return "", fmt.Errorf("report: unknown policy %q", s)
}

// Emitter sends a report carrying value.
type Emitter func(value int32) error

// Config describes one reportable attribute.
type Config struct {
	Name      string
	Threshold int32
	Policy    Policy
}

// Reporter tracks one reportable attribute. It is not safe for concurrent
// use; updates happen on the worker.
type Reporter struct {
	cfg    Config
	joined func() bool
	emit   Emitter
	logger *slog.Logger

	current int32
	last    int32
}

// New creates a Reporter whose last-reported value starts at zero.
func New(cfg Config, joined func() bool, emit Emitter, logger *slog.Logger) *Reporter {
	if cfg.Policy == "" {
		cfg.Policy = UpdateOnCrossing
	}
	return &Reporter{
		cfg:    cfg,
		joined: joined,
		emit:   emit,
		logger: logger.With("component", "report", "attribute", cfg.Name),
	}
}

// Update records v and emits at most one report.
func (r *Reporter) Update(v int32) Outcome {
	r.current = v
	if abs(v-r.last) < r.cfg.Threshold {
		return OutcomeUnchanged
	}

	if r.cfg.Policy == UpdateOnCrossing {
		r.last = v
	}
	if !r.joined() {
		r.logger.Debug("report suppressed, not joined", "value", v)
		return OutcomeSuppressed
	}
	if r.cfg.Policy == UpdateOnEmit {
		r.last = v
	}

	if err := r.emit(v); err != nil {
		r.logger.Warn("report failed", "value", v, "err", err)
		return OutcomeFailed
	}
	r.logger.Debug("report sent", "value", v)
	return OutcomeSent
}

// Current returns the most recent value passed to Update.
func (r *Reporter) Current() int32 { return r.current }

// Last returns the last-reported value.
func (r *Reporter) Last() int32 { return r.last }

// Name returns the attribute name.
func (r *Reporter) Name() string { return r.cfg.Name }

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
