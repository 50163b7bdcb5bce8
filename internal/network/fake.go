package network

import (
	"sync"

	"github.com/sweeney/relay-sensor/internal/zcl"
)

// FakeLink is a test double that records calls and lets tests raise
// network signals.
type FakeLink struct {
	mu sync.Mutex

	// Recorded calls.
	Attributes []zcl.Attribute
	Reports    []zcl.Report
	UserInputs int
	Leaves     int
	Started    bool
	Closed     bool

	// SetAttributeError and SendReportError, if set, are returned.
	SetAttributeError error
	SendReportError   error

	Table *zcl.Table

	handlers Handlers
}

// NewFakeLink creates an empty FakeLink.
func NewFakeLink() *FakeLink {
	return &FakeLink{Table: zcl.NewTable()}
}

// Start records the handlers.
func (f *FakeLink) Start(h Handlers) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = h
	f.Started = true
	return nil
}

// SetAttribute records a and stores it in Table.
func (f *FakeLink) SetAttribute(a zcl.Attribute) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attributes = append(f.Attributes, a)
	if f.SetAttributeError != nil {
		return f.SetAttributeError
	}
	f.Table.Set(a)
	return nil
}

// SendReport records r.
func (f *FakeLink) SendReport(r zcl.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reports = append(f.Reports, r)
	return f.SendReportError
}

// IndicateUserInput counts the call.
func (f *FakeLink) IndicateUserInput() {
	f.mu.Lock()
	f.UserInputs++
	f.mu.Unlock()
}

// Leave counts the call and signals a join loss.
func (f *FakeLink) Leave() error {
	f.mu.Lock()
	f.Leaves++
	h := f.handlers
	f.mu.Unlock()
	if h.OnJoinChange != nil {
		h.OnJoinChange(false)
	}
	return nil
}

// Close marks the link closed.
func (f *FakeLink) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Join raises a join-change signal.
func (f *FakeLink) Join(joined bool) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnJoinChange != nil {
		h.OnJoinChange(joined)
	}
}

// Write raises an inbound attribute write.
func (f *FakeLink) Write(a zcl.Attribute) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnWriteAttribute != nil {
		h.OnWriteAttribute(a)
	}
}

// Command raises an inbound cluster command.
func (f *FakeLink) Command(c zcl.Command) {
	f.mu.Lock()
	h := f.handlers
	f.mu.Unlock()
	if h.OnCommand != nil {
		h.OnCommand(c)
	}
}

// ReportCount returns the number of recorded reports.
func (f *FakeLink) ReportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Reports)
}

// Reset clears recorded calls.
func (f *FakeLink) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attributes = nil
	f.Reports = nil
	f.UserInputs = 0
	f.Leaves = 0
}
