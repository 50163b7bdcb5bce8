package adc

import "errors"

// FakeSource is a test double returning scripted raw readings.
type FakeSource struct {
	// Readings are returned in order; the last one repeats.
	Readings []FakeReading

	index int

	// Reads counts calls to ReadRaw.
	Reads int
}

// FakeReading is one scripted conversion or failure.
type FakeReading struct {
	Raw int16
	Err error
}

// NewFakeSource returns a source that always reads raw.
func NewFakeSource(raw ...int16) *FakeSource {
	f := &FakeSource{}
	for _, r := range raw {
		f.Readings = append(f.Readings, FakeReading{Raw: r})
	}
	return f
}

// ReadRaw returns the next scripted reading.
func (f *FakeSource) ReadRaw() (int16, error) {
	f.Reads++
	if len(f.Readings) == 0 {
		return 0, errors.New("no readings configured")
	}
	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return r.Raw, r.Err
}

// Set replaces the script with readings and rewinds.
func (f *FakeSource) Set(readings ...FakeReading) {
	f.Readings = readings
	f.index = 0
}
