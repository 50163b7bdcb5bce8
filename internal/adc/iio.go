package adc

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIOSource reads raw conversions from a Linux Industrial I/O channel via
// sysfs (in_voltageN_raw).
type IIOSource struct {
	path string
}

// OpenIIO checks that the channel exists and is readable.
func OpenIIO(device string, channel int) (*IIOSource, error) {
	path := filepath.Join(device, fmt.Sprintf("in_voltage%d_raw", channel))
	s := &IIOSource{path: path}
	if _, err := s.ReadRaw(); err != nil {
		return nil, fmt.Errorf("open iio channel: %w", err)
	}
	return s, nil
}

// Path returns the sysfs attribute being read.
func (s *IIOSource) Path() string {
	return s.path
}

// ReadRaw reads one conversion.
func (s *IIOSource) ReadRaw() (int16, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if v < math.MinInt16 || v > math.MaxInt16 {
		return 0, fmt.Errorf("%s: value %d out of range", s.path, v)
	}
	return int16(v), nil
}
