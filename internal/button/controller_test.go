package button

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sweeney/relay-sensor/internal/dispatch"
)

type harness struct {
	clock   *dispatch.FakeClock
	queue   *dispatch.Queue
	ctrl    *Controller
	pressed bool
	readErr error
	events  []Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		clock: dispatch.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		queue: dispatch.NewQueue(8, logger),
	}
	level := func() (bool, error) {
		if h.readErr != nil {
			return false, h.readErr
		}
		return h.pressed, nil
	}
	handler := HandlerFunc(func(e Event) { h.events = append(h.events, e) })
	h.ctrl = New(Config{}, dispatch.NewTimers(h.clock), h.queue, level, handler, logger)
	return h
}

// edge sets the line level and raises an edge.
func (h *harness) edge(pressed bool) {
	h.pressed = pressed
	h.ctrl.HandleEdge()
}

// advance moves time forward and drains the worker.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.queue.RunPending()
}

func (h *harness) count(e Event) int {
	n := 0
	for _, got := range h.events {
		if got == e {
			n++
		}
	}
	return n
}

func TestInitialState(t *testing.T) {
	h := newHarness(t)
	if h.ctrl.State() != StateIdle {
		t.Errorf("initial state: got %s, want IDLE", h.ctrl.State())
	}
}

func TestEdgeAloneDoesNotChangeState(t *testing.T) {
	h := newHarness(t)
	h.edge(true)
	h.advance(29 * time.Millisecond)
	if h.ctrl.State() != StateIdle {
		t.Errorf("state before debounce expiry: got %s", h.ctrl.State())
	}
	h.advance(time.Millisecond)
	if h.ctrl.State() != StatePressed {
		t.Errorf("state after debounce expiry: got %s, want PRESSED", h.ctrl.State())
	}
}

func TestBounceCollapsesToSettledLevel(t *testing.T) {
	tests := []struct {
		name  string
		edges []bool
		want  State
	}{
		{"settles pressed", []bool{true, false, true, false, true}, StatePressed},
		{"settles released", []bool{true, false, true, false}, StateIdle},
		{"single edge", []bool{true}, StatePressed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			reads := 0
			inner := h.ctrl.level
			h.ctrl.level = func() (bool, error) {
				reads++
				return inner()
			}

			for _, lvl := range tt.edges {
				h.edge(lvl)
				h.advance(2 * time.Millisecond)
			}
			h.advance(30 * time.Millisecond)

			if reads != 1 {
				t.Errorf("level sampled %d times, want 1", reads)
			}
			if h.ctrl.State() != tt.want {
				t.Errorf("state: got %s, want %s", h.ctrl.State(), tt.want)
			}
			if len(h.events) != 0 {
				t.Errorf("unexpected events: %v", h.events)
			}
		})
	}
}

func TestShortPress(t *testing.T) {
	h := newHarness(t)
	h.edge(true)
	h.advance(30 * time.Millisecond)
	h.advance(4900 * time.Millisecond)
	h.edge(false)
	h.advance(30 * time.Millisecond)

	if h.count(EventShortPress) != 1 || h.count(EventLongPress) != 0 {
		t.Errorf("events: got %v, want [SHORT_PRESS]", h.events)
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("state: got %s, want IDLE", h.ctrl.State())
	}

	// The cancelled long-press timer must never fire later.
	h.advance(10 * time.Second)
	if h.count(EventLongPress) != 0 {
		t.Errorf("long press emitted after release: %v", h.events)
	}
}

func TestShortPressJustBeforeTimeout(t *testing.T) {
	h := newHarness(t)
	h.edge(true)
	h.advance(30 * time.Millisecond) // pressed at t=30ms, long press due at 5030ms
	h.advance(4960 * time.Millisecond)
	h.edge(false) // released at 4990ms, settles at 5020ms
	h.advance(time.Second)

	if len(h.events) != 1 || h.events[0] != EventShortPress {
		t.Errorf("events: got %v, want [SHORT_PRESS]", h.events)
	}
}

func TestLongPress(t *testing.T) {
	h := newHarness(t)
	h.edge(true)
	h.advance(30 * time.Millisecond)
	h.advance(5000 * time.Millisecond)

	if h.ctrl.State() != StateLongPress {
		t.Fatalf("state: got %s, want LONG_PRESS", h.ctrl.State())
	}
	if len(h.events) != 1 || h.events[0] != EventLongPress {
		t.Fatalf("events: got %v, want [LONG_PRESS]", h.events)
	}

	h.advance(3 * time.Second)
	h.edge(false)
	h.advance(30 * time.Millisecond)

	if h.ctrl.State() != StateIdle {
		t.Errorf("state after release: got %s, want IDLE", h.ctrl.State())
	}
	if len(h.events) != 1 {
		t.Errorf("release after long press emitted: %v", h.events)
	}
}

func TestReleaseRacingLongPressTimer(t *testing.T) {
	h := newHarness(t)
	h.edge(true)
	h.advance(30 * time.Millisecond) // long press due at 5030ms
	h.advance(4980 * time.Millisecond)
	h.edge(false) // settles at 5040ms, after the long press fired
	h.advance(time.Second)

	if h.count(EventLongPress) != 1 || h.count(EventShortPress) != 0 {
		t.Errorf("events: got %v, want [LONG_PRESS]", h.events)
	}
	if h.ctrl.State() != StateIdle {
		t.Errorf("state: got %s, want IDLE", h.ctrl.State())
	}
}

func TestBounceDuringHoldDoesNotRestartLongPress(t *testing.T) {
	h := newHarness(t)
	h.edge(true)
	h.advance(30 * time.Millisecond)

	// Chatter that settles pressed again leaves the long-press timer alone.
	h.advance(2 * time.Second)
	h.edge(false)
	h.advance(time.Millisecond)
	h.edge(true)
	h.advance(30 * time.Millisecond)

	h.advance(2970 * time.Millisecond)
	if h.count(EventLongPress) != 1 {
		t.Errorf("events: got %v, want one LONG_PRESS", h.events)
	}
}

func TestReleaseWhileIdleIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.edge(false)
	h.advance(time.Second)
	if h.ctrl.State() != StateIdle || len(h.events) != 0 {
		t.Errorf("state %s events %v", h.ctrl.State(), h.events)
	}
}

func TestLevelReadErrorKeepsState(t *testing.T) {
	h := newHarness(t)
	h.readErr = errors.New("line busy")
	h.edge(true)
	h.advance(100 * time.Millisecond)
	if h.ctrl.State() != StateIdle {
		t.Errorf("state: got %s, want IDLE", h.ctrl.State())
	}

	h.readErr = nil
	h.edge(true)
	h.advance(30 * time.Millisecond)
	if h.ctrl.State() != StatePressed {
		t.Errorf("state after recovery: got %s, want PRESSED", h.ctrl.State())
	}
}

func TestPendingShortPressIsNotDuplicated(t *testing.T) {
	h := newHarness(t)

	// Two complete gestures before the worker runs share one pending slot.
	for i := 0; i < 2; i++ {
		h.edge(true)
		h.clock.Advance(30 * time.Millisecond)
		h.edge(false)
		h.clock.Advance(30 * time.Millisecond)
	}
	h.queue.RunPending()

	if len(h.events) != 1 {
		t.Errorf("events: got %v, want one SHORT_PRESS", h.events)
	}
	if got := h.ctrl.Counts(); got.ShortPress != 1 {
		t.Errorf("Counts.ShortPress: got %d, want 1", got.ShortPress)
	}
}

func TestEventsRunOnWorker(t *testing.T) {
	h := newHarness(t)
	h.edge(true)
	h.clock.Advance(30 * time.Millisecond)
	h.edge(false)
	h.clock.Advance(30 * time.Millisecond)

	if len(h.events) != 0 {
		t.Fatalf("handler ran in timer context: %v", h.events)
	}
	h.queue.RunPending()
	if len(h.events) != 1 {
		t.Errorf("events after worker drain: %v", h.events)
	}
}
