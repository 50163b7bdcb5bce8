package ncp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.bug.st/serial"

	"github.com/sweeney/relay-sensor/internal/network"
	"github.com/sweeney/relay-sensor/internal/zcl"
)

// openTimeout bounds how long Open keeps retrying.
const openTimeout = 30 * time.Second

// Config holds serial port settings.
type Config struct {
	Port        string
	Baud        int
	OpenRetries int
}

// Open opens the serial port, retrying with exponential backoff while the
// co-processor enumerates.
func Open(cfg Config, logger *slog.Logger) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openTimeout
	var port serial.Port
	err := backoff.Retry(func() error {
		p, err := serial.Open(cfg.Port, mode)
		if err != nil {
			logger.Warn("open serial port", "port", cfg.Port, "err", err)
			return err
		}
		port = p
		return nil
	}, backoff.WithMaxRetries(bo, uint64(max(cfg.OpenRetries, 0))))
	if err != nil {
		return nil, fmt.Errorf("ncp: open %s: %w", cfg.Port, err)
	}

	assertModemLines(port, cfg.Port, logger)

	return NewLink(port, logger), nil
}

// modemLines is the part of serial.Port that controls DTR and RTS.
type modemLines interface {
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
}

// assertModemLines raises DTR and RTS for USB CDC ACM co-processor firmware.
// Failures are logged at warn and do not fail Open.
func assertModemLines(port modemLines, name string, logger *slog.Logger) {
	if err := port.SetDTR(true); err != nil {
		logger.Warn("assert DTR", "port", name, "err", err)
	}
	if err := port.SetRTS(true); err != nil {
		logger.Warn("assert RTS", "port", name, "err", err)
	}
}

// Link is a network.Link to a serial co-processor.
type Link struct {
	rw     io.ReadWriteCloser
	logger *slog.Logger
	table  *zcl.Table

	writeMu sync.Mutex
	seq     uint8

	hmu      sync.Mutex
	handlers network.Handlers

	joined    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ network.Link = (*Link)(nil)

// NewLink wraps an open port.
func NewLink(rw io.ReadWriteCloser, logger *slog.Logger) *Link {
	return &Link{
		rw:     rw,
		logger: logger.With("component", "ncp"),
		table:  zcl.NewTable(),
		done:   make(chan struct{}),
	}
}

// Table returns the local attribute table.
func (l *Link) Table() *zcl.Table {
	return l.table
}

// Joined reports the last join status from the co-processor.
func (l *Link) Joined() bool {
	return l.joined.Load()
}

// Start begins reading frames from the co-processor.
func (l *Link) Start(h network.Handlers) error {
	l.hmu.Lock()
	l.handlers = h
	l.hmu.Unlock()
	l.wg.Add(1)
	go l.readLoop()
	return nil
}

func (l *Link) currentHandlers() network.Handlers {
	l.hmu.Lock()
	defer l.hmu.Unlock()
	return l.handlers
}

func (l *Link) readLoop() {
	defer l.wg.Done()
	r := bufio.NewReader(l.rw)
	for {
		f, err := ReadFrame(r)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if errors.Is(err, ErrBadFrame) {
				l.logger.Warn("dropping frame", "err", err)
				continue
			}
			if !errors.Is(err, io.EOF) {
				l.logger.Error("serial read failed", "err", err)
			}
			l.setJoined(false)
			return
		}
		l.handle(f)
	}
}

func (l *Link) handle(f Frame) {
	h := l.currentHandlers()
	switch f.Type {
	case TypeJoinStatus:
		joined, err := ParseJoinStatus(f.Payload)
		if err != nil {
			l.logger.Warn("bad join status", "err", err)
			return
		}
		l.setJoined(joined)
	case TypeZCLIn:
		in, err := ParseZCLIn(f.Payload)
		if err != nil {
			l.logger.Warn("bad inbound zcl frame", "err", err)
			return
		}
		for _, a := range in.Writes {
			if h.OnWriteAttribute != nil {
				h.OnWriteAttribute(a)
			}
		}
		if in.Command != nil && h.OnCommand != nil {
			h.OnCommand(*in.Command)
		}
	case TypeIdentify:
		c, err := ParseIdentify(f.Payload)
		if err != nil {
			l.logger.Warn("bad identify", "err", err)
			return
		}
		if h.OnCommand != nil {
			h.OnCommand(c)
		}
	default:
		l.logger.Debug("ignoring frame", "type", fmt.Sprintf("0x%02X", f.Type))
	}
}

func (l *Link) setJoined(joined bool) {
	if l.joined.Swap(joined) == joined {
		return
	}
	l.logger.Info("join status", "joined", joined)
	if h := l.currentHandlers(); h.OnJoinChange != nil {
		h.OnJoinChange(joined)
	}
}

func (l *Link) write(f Frame) error {
	buf, err := Encode(f)
	if err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if _, err := l.rw.Write(buf); err != nil {
		return fmt.Errorf("ncp: write frame 0x%02X: %w", f.Type, err)
	}
	return nil
}

// SetAttribute updates the co-processor's attribute table when it changed.
func (l *Link) SetAttribute(a zcl.Attribute) error {
	if !l.table.Set(a) {
		return nil
	}
	p, err := SetAttrPayload(a)
	if err != nil {
		return err
	}
	return l.write(Frame{Type: TypeSetAttr, Payload: p})
}

// SendReport asks the co-processor to send r.
func (l *Link) SendReport(r zcl.Report) error {
	if !l.joined.Load() {
		return network.ErrNotJoined
	}
	l.writeMu.Lock()
	l.seq++
	seq := l.seq
	l.writeMu.Unlock()
	p, err := ReportPayload(r, seq)
	if err != nil {
		return err
	}
	return l.write(Frame{Type: TypeReport, Payload: p})
}

// IndicateUserInput asks the co-processor to poll its parent promptly.
func (l *Link) IndicateUserInput() {
	if err := l.write(Frame{Type: TypeUserInput}); err != nil {
		l.logger.Warn("indicate user input", "err", err)
	}
}

// Leave asks the co-processor to leave and restart joining.
func (l *Link) Leave() error {
	if err := l.write(Frame{Type: TypeLeave}); err != nil {
		return err
	}
	l.setJoined(false)
	return nil
}

// Close stops the read loop and closes the port.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.rw.Close()
		l.wg.Wait()
	})
	return err
}
