package button

import (
	"log/slog"
	"sync"

	"github.com/sweeney/relay-sensor/internal/dispatch"
)

// Controller owns the button state machine.
type Controller struct {
	cfg     Config
	level   LevelFunc
	handler Handler
	logger  *slog.Logger

	debounce  *dispatch.Timer
	longPress *dispatch.Timer
	shortWork *dispatch.Work
	resetWork *dispatch.Work

	// state is written only from timer callbacks; mu lets other goroutines
	// read it.
	mu     sync.Mutex
	state  State
	counts EventCounts
}

// New creates a Controller. Timer callbacks run in timers, gesture handling
// runs on queue.
func New(cfg Config, timers *dispatch.Timers, queue *dispatch.Queue, level LevelFunc, handler Handler, logger *slog.Logger) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.LongPress <= 0 {
		cfg.LongPress = DefaultLongPress
	}
	c := &Controller{
		cfg:     cfg,
		level:   level,
		handler: handler,
		logger:  logger.With("component", "button"),
		state:   StateIdle,
	}
	c.debounce = timers.NewTimer("button-debounce", c.onDebounce)
	c.longPress = timers.NewTimer("button-long-press", c.onLongPress)
	c.shortWork = queue.NewWork("button-short-press", c.runShortPress)
	c.resetWork = queue.NewWork("button-factory-reset", c.runLongPress)
	return c
}

// HandleEdge processes one raw edge of either direction. It is safe to call
// from the edge event goroutine: it only restarts the debounce timer.
func (c *Controller) HandleEdge() {
	c.debounce.Start(c.cfg.Debounce)
}

// State returns the current debounced state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counts returns the number of events delivered so far.
func (c *Controller) Counts() EventCounts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) onDebounce() {
	pressed, err := c.level()
	if err != nil {
		c.logger.Warn("read button level", "err", err)
		return
	}

	switch c.State() {
	case StateIdle:
		if pressed {
			c.setState(StatePressed)
			c.longPress.Start(c.cfg.LongPress)
			c.logger.Debug("button pressed")
		}
	case StatePressed:
		if !pressed {
			c.setState(StateIdle)
			c.longPress.Stop()
			c.shortWork.Submit()
			c.logger.Debug("button released")
		}
	case StateLongPress:
		if !pressed {
			c.setState(StateIdle)
			c.logger.Debug("button released after long press")
		}
	}
}

func (c *Controller) onLongPress() {
	if c.State() != StatePressed {
		return
	}
	c.setState(StateLongPress)
	c.resetWork.Submit()
	c.logger.Info("long press detected")
}

func (c *Controller) runShortPress() {
	c.mu.Lock()
	c.counts.ShortPress++
	c.mu.Unlock()
	c.handler.OnButtonEvent(EventShortPress)
}

func (c *Controller) runLongPress() {
	c.mu.Lock()
	c.counts.LongPress++
	c.mu.Unlock()
	c.handler.OnButtonEvent(EventLongPress)
}
