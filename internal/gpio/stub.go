//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealInput is not available on non-Linux platforms.
type RealInput struct{}

// NewRealInput returns an error on non-Linux platforms.
func NewRealInput(chip string, offset int, activeLow bool, onEdge func()) (*RealInput, error) {
	return nil, errUnsupported
}

// Level is not implemented on non-Linux platforms.
func (r *RealInput) Level() (bool, error) { return false, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (r *RealInput) Close() error { return nil }

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chip string, offset int) (*RealOutput, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (r *RealOutput) Set(on bool) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (r *RealOutput) Close() error { return nil }
