package gpio

import "sync"

// FakeInput is a test double for a button line. SetLevel and Bounce raise
// edges the way the hardware would.
type FakeInput struct {
	mu sync.Mutex

	level bool

	// OnEdge is called for every raised edge.
	OnEdge func()

	// ReadError, if set, will be returned by Level()
	ReadError error

	// Reads counts calls to Level.
	Reads int

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeInput creates a FakeInput at the inactive level.
func NewFakeInput() *FakeInput {
	return &FakeInput{}
}

// Level returns the current scripted level.
func (f *FakeInput) Level() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.level, nil
}

// SetLevel changes the level and raises an edge if it changed.
func (f *FakeInput) SetLevel(on bool) {
	f.mu.Lock()
	changed := f.level != on
	f.level = on
	cb := f.OnEdge
	f.mu.Unlock()
	if changed && cb != nil {
		cb()
	}
}

// Bounce walks the line through levels, raising an edge at each change.
func (f *FakeInput) Bounce(levels ...bool) {
	for _, l := range levels {
		f.SetLevel(l)
	}
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// FakeOutput records the levels driven on it.
type FakeOutput struct {
	mu sync.Mutex

	// Values holds every level set, in order.
	Values []bool

	// SetError, if set, will be returned by Set() and the level is kept.
	SetError error

	// Closed tracks if Close was called
	Closed bool

	state bool
}

// NewFakeOutput creates a FakeOutput at the inactive level.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the level.
func (f *FakeOutput) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.Values = append(f.Values, on)
	f.state = on
	return nil
}

// State returns the last level set.
func (f *FakeOutput) State() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Sets returns the number of successful Set calls.
func (f *FakeOutput) Sets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Values)
}

// Close marks the output as closed and drives it inactive.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.state = false
	f.mu.Unlock()
	return nil
}
