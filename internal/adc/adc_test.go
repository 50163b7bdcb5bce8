package adc

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/relay-sensor/internal/dispatch"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSampler(src Source, oversample int) (*Sampler, *[]time.Duration) {
	s := NewSampler(src, Config{Oversample: oversample}, discardLogger())
	var sleeps []time.Duration
	s.Sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	s.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return s, &sleeps
}

func TestCalibrationMillivolts(t *testing.T) {
	tests := []struct {
		raw  int16
		want int32
	}{
		{0, 0},
		{842, 3700},
		{2048, 9000},
		{4095, 17995},
	}
	for _, tt := range tests {
		if got := DefaultCalibration.Millivolts(tt.raw); got != tt.want {
			t.Errorf("Millivolts(%d): got %d, want %d", tt.raw, got, tt.want)
		}
	}
}

func TestCalibrationValidate(t *testing.T) {
	if err := DefaultCalibration.Validate(); err != nil {
		t.Errorf("default calibration invalid: %v", err)
	}
	bad := DefaultCalibration
	bad.GainDen = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero gain")
	}
	bad = DefaultCalibration
	bad.ResolutionBits = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero resolution")
	}
}

func TestReadVoltageAverages(t *testing.T) {
	src := NewFakeSource(840, 842, 844, 846)
	s, sleeps := newTestSampler(src, 4)

	mv, err := s.ReadVoltage()
	if err != nil {
		t.Fatalf("ReadVoltage: %v", err)
	}
	if mv != 3700 {
		t.Errorf("mv: got %d, want 3700", mv)
	}
	if src.Reads != 4 {
		t.Errorf("reads: got %d, want 4", src.Reads)
	}
	if len(*sleeps) != 3 {
		t.Errorf("settle delays: got %d, want 3 (none after last read)", len(*sleeps))
	}
	for _, d := range *sleeps {
		if d != DefaultSettle {
			t.Errorf("settle delay: got %v, want %v", d, DefaultSettle)
		}
	}

	m, ok := s.Last()
	if !ok {
		t.Fatal("expected stored measurement")
	}
	if m.RawAverage != 843 || m.Samples != 4 || m.Millivolts != 3700 {
		t.Errorf("measurement: %+v", m)
	}
}

func TestReadVoltageTruncatesAverage(t *testing.T) {
	s, _ := newTestSampler(NewFakeSource(1, 2), 2)
	if _, err := s.ReadVoltage(); err != nil {
		t.Fatal(err)
	}
	if m, _ := s.Last(); m.RawAverage != 1 {
		t.Errorf("raw average: got %d, want 1", m.RawAverage)
	}
}

func TestReadVoltageDropsFailedSamples(t *testing.T) {
	src := &FakeSource{}
	bad := errors.New("conversion timeout")
	src.Set(
		FakeReading{Raw: 842},
		FakeReading{Err: bad},
		FakeReading{Raw: 842},
		FakeReading{Err: bad},
	)
	s, _ := newTestSampler(src, 4)

	mv, err := s.ReadVoltage()
	if err != nil {
		t.Fatalf("ReadVoltage: %v", err)
	}
	if mv != 3700 {
		t.Errorf("mv: got %d, want 3700", mv)
	}
	if src.Reads != 4 {
		t.Errorf("failed samples must not be retried: reads=%d", src.Reads)
	}
	if m, _ := s.Last(); m.Samples != 2 {
		t.Errorf("samples: got %d, want 2", m.Samples)
	}
}

func TestReadVoltageAllFailed(t *testing.T) {
	src := NewFakeSource(842)
	s, _ := newTestSampler(src, 4)
	if _, err := s.ReadVoltage(); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Last()

	src.Set(FakeReading{Err: errors.New("not ready")})
	_, err := s.ReadVoltage()
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}

	after, ok := s.Last()
	if !ok || after != before {
		t.Errorf("stored measurement changed: before %+v after %+v", before, after)
	}
}

func TestReadVoltageAllFailedFirstRead(t *testing.T) {
	src := &FakeSource{}
	src.Set(FakeReading{Err: errors.New("not ready")})
	s, _ := newTestSampler(src, 3)
	if _, err := s.ReadVoltage(); !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
	if _, ok := s.Last(); ok {
		t.Error("expected no stored measurement")
	}
}

func TestIIOSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in_voltage1_raw")
	if err := os.WriteFile(path, []byte("842\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenIIO(dir, 1)
	if err != nil {
		t.Fatalf("OpenIIO: %v", err)
	}
	raw, err := src.ReadRaw()
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	if raw != 842 {
		t.Errorf("raw: got %d, want 842", raw)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := src.ReadRaw(); err == nil {
		t.Error("expected parse error")
	}
	if err := os.WriteFile(path, []byte("70000"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := src.ReadRaw(); err == nil {
		t.Error("expected range error")
	}
}

func TestOpenIIOMissingChannel(t *testing.T) {
	if _, err := OpenIIO(t.TempDir(), 0); err == nil {
		t.Error("expected error for missing channel")
	}
}

type periodicHarness struct {
	clock    *dispatch.FakeClock
	queue    *dispatch.Queue
	src      *FakeSource
	periodic *Periodic
	readings []int32
	errs     []error
}

func newPeriodicHarness(t *testing.T) *periodicHarness {
	t.Helper()
	h := &periodicHarness{
		clock: dispatch.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		queue: dispatch.NewQueue(4, discardLogger()),
		src:   NewFakeSource(842),
	}
	s, _ := newTestSampler(h.src, 2)
	h.periodic = NewPeriodic(s, h.queue, dispatch.NewTimers(h.clock), 10*time.Second,
		func(mv int32) { h.readings = append(h.readings, mv) },
		func(err error) { h.errs = append(h.errs, err) },
		discardLogger())
	return h
}

func (h *periodicHarness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.queue.RunPending()
}

func TestPeriodicFirstReadingImmediate(t *testing.T) {
	h := newPeriodicHarness(t)
	h.periodic.Start()
	h.queue.RunPending()
	if len(h.readings) != 1 || h.readings[0] != 3700 {
		t.Fatalf("readings: got %v, want [3700]", h.readings)
	}

	h.advance(9 * time.Second)
	if len(h.readings) != 1 {
		t.Errorf("reading before interval elapsed")
	}
	h.advance(time.Second)
	h.advance(10 * time.Second)
	if len(h.readings) != 3 {
		t.Errorf("readings after two intervals: got %d, want 3", len(h.readings))
	}
}

func TestPeriodicStartIdempotent(t *testing.T) {
	h := newPeriodicHarness(t)
	h.periodic.Start()
	h.periodic.Start()
	h.queue.RunPending()
	h.periodic.Start()
	h.advance(10 * time.Second)
	if len(h.readings) != 2 {
		t.Errorf("readings: got %d, want 2", len(h.readings))
	}
}

func TestPeriodicStop(t *testing.T) {
	h := newPeriodicHarness(t)
	h.periodic.Start()
	h.queue.RunPending()
	h.periodic.Stop()
	if h.periodic.Enabled() {
		t.Error("expected disabled after Stop")
	}
	h.advance(time.Minute)
	if len(h.readings) != 1 {
		t.Errorf("readings after stop: got %d, want 1", len(h.readings))
	}
	if h.clock.Pending() != 0 {
		t.Errorf("timers still armed: %d", h.clock.Pending())
	}

	h.periodic.Start()
	h.queue.RunPending()
	if len(h.readings) != 2 {
		t.Errorf("restart did not read immediately: %d", len(h.readings))
	}
}

func TestPeriodicStopDuringReadingFinishesWithoutReschedule(t *testing.T) {
	h := newPeriodicHarness(t)
	h.periodic.consume = func(mv int32) {
		h.readings = append(h.readings, mv)
		h.periodic.Stop()
	}
	h.periodic.Start()
	h.queue.RunPending()
	if len(h.readings) != 1 {
		t.Fatalf("in-flight reading not delivered: %v", h.readings)
	}
	h.advance(time.Minute)
	if len(h.readings) != 1 {
		t.Errorf("reading after stop: %v", h.readings)
	}
}

func TestPeriodicContinuesAfterFailure(t *testing.T) {
	h := newPeriodicHarness(t)
	h.src.Set(FakeReading{Err: errors.New("busy")})
	h.periodic.Start()
	h.queue.RunPending()
	if len(h.errs) != 1 || !errors.Is(h.errs[0], ErrIO) {
		t.Fatalf("errors: %v", h.errs)
	}
	if len(h.readings) != 0 {
		t.Errorf("unexpected reading: %v", h.readings)
	}

	h.src.Set(FakeReading{Raw: 842})
	h.advance(10 * time.Second)
	if len(h.readings) != 1 {
		t.Errorf("no reading on next schedule: %v", h.readings)
	}
}
