package mqtt

import "log/slog"

// message is a serialized publish held for replay after reconnection.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a fixed-capacity FIFO of messages published while the broker
// was unreachable. Once full the oldest message is overwritten. Not safe for
// concurrent use.
type outbox struct {
	buf      []message
	head     int // next write position
	count    int
	overflow bool // set once a message is dropped, cleared by drain
	logger   *slog.Logger
}

func newOutbox(capacity int, logger *slog.Logger) *outbox {
	return &outbox{buf: make([]message, capacity), logger: logger}
}

func (o *outbox) push(m message) {
	o.buf[o.head] = m
	o.head = (o.head + 1) % len(o.buf)
	if o.count < len(o.buf) {
		o.count++
		return
	}
	if !o.overflow {
		o.logger.Warn("outbox full, dropping oldest", "capacity", len(o.buf))
		o.overflow = true
	}
}

// drain returns the held messages oldest first and empties the outbox.
func (o *outbox) drain() []message {
	if o.count == 0 {
		return nil
	}
	out := make([]message, o.count)
	start := (o.head - o.count + len(o.buf)) % len(o.buf)
	for i := range out {
		out[i] = o.buf[(start+i)%len(o.buf)]
	}
	o.head, o.count, o.overflow = 0, 0, false
	return out
}

func (o *outbox) len() int {
	return o.count
}
