package status

import "time"

// Event is one entry in the recent activity log.
type Event struct {
	Time   time.Time
	Kind   string
	Detail string
}

// eventLog is a fixed-capacity FIFO that keeps the most recent events,
// overwriting the oldest once full. Not safe for concurrent use.
type eventLog struct {
	buf     []Event
	head    int // next write position
	count   int
	dropped int
}

func newEventLog(capacity int) *eventLog {
	return &eventLog{buf: make([]Event, capacity)}
}

func (l *eventLog) push(e Event) {
	if len(l.buf) == 0 {
		return
	}
	l.buf[l.head] = e
	l.head = (l.head + 1) % len(l.buf)
	if l.count == len(l.buf) {
		l.dropped++
		return
	}
	l.count++
}

// list returns the events oldest first.
func (l *eventLog) list() []Event {
	if l.count == 0 {
		return nil
	}
	out := make([]Event, l.count)
	start := (l.head - l.count + len(l.buf)) % len(l.buf)
	for i := range out {
		out[i] = l.buf[(start+i)%len(l.buf)]
	}
	return out
}

func (l *eventLog) len() int {
	return l.count
}
