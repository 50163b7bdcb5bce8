// Package adc reads oversampled, calibrated voltages from an ADC channel.
package adc

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrIO is returned when no oversample attempt produced a reading.
var ErrIO = errors.New("adc: i/o failure")

// Source reads one raw conversion from an ADC channel.
type Source interface {
	ReadRaw() (int16, error)
}

// Calibration converts raw conversions to millivolts at the pin, then scales
// by PostMultiplier to undo an external divider.
type Calibration struct {
	ReferenceMV    int32
	GainNum        int32
	GainDen        int32
	ResolutionBits uint
	PostMultiplier int32
}

// DefaultCalibration is a 0.6 V internal reference with 1/6 gain, 12-bit
// resolution, measuring a supply divided by 5.
var DefaultCalibration = Calibration{
	ReferenceMV:    600,
	GainNum:        1,
	GainDen:        6,
	ResolutionBits: 12,
	PostMultiplier: 5,
}

// Validate checks that the calibration can be applied.
func (c Calibration) Validate() error {
	if c.ReferenceMV <= 0 {
		return fmt.Errorf("adc: reference_mv must be positive, got %d", c.ReferenceMV)
	}
	if c.GainNum <= 0 || c.GainDen <= 0 {
		return fmt.Errorf("adc: gain %d/%d must be positive", c.GainNum, c.GainDen)
	}
	if c.ResolutionBits == 0 || c.ResolutionBits > 24 {
		return fmt.Errorf("adc: resolution_bits %d out of range", c.ResolutionBits)
	}
	if c.PostMultiplier <= 0 {
		return fmt.Errorf("adc: post_multiplier must be positive, got %d", c.PostMultiplier)
	}
	return nil
}

// Millivolts converts a raw conversion into the calibrated voltage.
func (c Calibration) Millivolts(raw int16) int32 {
	fullScale := int64(c.ReferenceMV) * int64(c.GainDen) / int64(c.GainNum)
	mv := (int64(raw) * fullScale) >> c.ResolutionBits
	return int32(mv * int64(c.PostMultiplier))
}

// Measurement is the result of one oversampled read.
type Measurement struct {
	Millivolts int32
	RawAverage int16
	Samples    int
	Time       time.Time
}

// Config controls oversampling.
type Config struct {
	Oversample  int
	Settle      time.Duration
	Calibration Calibration
}

// Defaults used when a Config field is zero.
const (
	DefaultOversample = 8
	DefaultSettle     = 100 * time.Microsecond
)

// Sampler takes oversampled readings from a Source. It is not safe for
// concurrent use; readings are taken on the worker.
type Sampler struct {
	src    Source
	cfg    Config
	logger *slog.Logger

	// Sleep and Now are replaceable for tests.
	Sleep func(time.Duration)
	Now   func() time.Time

	last    Measurement
	hasLast bool
}

// NewSampler creates a Sampler. A zero Calibration means DefaultCalibration.
func NewSampler(src Source, cfg Config, logger *slog.Logger) *Sampler {
	if cfg.Oversample <= 0 {
		cfg.Oversample = DefaultOversample
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if cfg.Calibration == (Calibration{}) {
		cfg.Calibration = DefaultCalibration
	}
	return &Sampler{
		src:    src,
		cfg:    cfg,
		logger: logger.With("component", "adc"),
		Sleep:  time.Sleep,
		Now:    time.Now,
	}
}

// ReadVoltage takes Oversample raw readings, settling between them, and
// returns the calibrated average. Failed readings are dropped. If all fail,
// the error wraps ErrIO and Last is left unchanged.
func (s *Sampler) ReadVoltage() (int32, error) {
	var sum int64
	ok := 0
	var lastErr error

	for i := 0; i < s.cfg.Oversample; i++ {
		raw, err := s.src.ReadRaw()
		if err != nil {
			lastErr = err
		} else {
			sum += int64(raw)
			ok++
		}
		if i < s.cfg.Oversample-1 {
			s.Sleep(s.cfg.Settle)
		}
	}

	if ok == 0 {
		return 0, fmt.Errorf("%w: all %d samples failed: %v", ErrIO, s.cfg.Oversample, lastErr)
	}

	avg := int16(sum / int64(ok))
	mv := s.cfg.Calibration.Millivolts(avg)
	s.last = Measurement{
		Millivolts: mv,
		RawAverage: avg,
		Samples:    ok,
		Time:       s.Now(),
	}
	s.hasLast = true

	s.logger.Debug("voltage sampled", "raw_avg", avg, "samples", ok, "mv", mv)
	return mv, nil
}

// Last returns the most recent successful measurement.
func (s *Sampler) Last() (Measurement, bool) {
	return s.last, s.hasLast
}
