// Package button turns raw edge events from a push button into debounced
// short-press and long-press events.
//
// Edges only restart a debounce timer. When it expires the settled level is
// sampled and fed to the state machine, so contact bounce never reaches it.
package button

import "time"

// State is the debounced state of the button.
type State string

const (
	StateIdle      State = "IDLE"
	StatePressed   State = "PRESSED"
	StateLongPress State = "LONG_PRESS"
)

// Event is a completed gesture delivered to the Handler.
type Event string

const (
	// EventShortPress is a press released before the long-press timeout.
	EventShortPress Event = "SHORT_PRESS"
	// EventLongPress is a press held for the long-press timeout. It
	// triggers a factory reset.
	EventLongPress Event = "LONG_PRESS"
)

// Handler receives gesture events in worker context.
type Handler interface {
	OnButtonEvent(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

// OnButtonEvent calls f(e).
func (f HandlerFunc) OnButtonEvent(e Event) { f(e) }

// LevelFunc reads the current logical button level (true = pressed).
type LevelFunc func() (bool, error)

// Config holds the button timing.
type Config struct {
	Debounce  time.Duration
	LongPress time.Duration
}

// Defaults used when a Config field is zero.
const (
	DefaultDebounce  = 30 * time.Millisecond
	DefaultLongPress = 5000 * time.Millisecond
)

// EventCounts tracks delivered events since startup.
type EventCounts struct {
	ShortPress int
	LongPress  int
}
