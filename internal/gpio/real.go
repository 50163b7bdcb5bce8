//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealInput reads a button line and reports its edges.
type RealInput struct {
	line   *gpiocdev.Line
	offset int
}

// NewRealInput requests offset on chip as an input watching both edges.
// onEdge runs on the gpiocdev event goroutine for every edge and must only
// hand off. An active-low button gets a pull-up, otherwise a pull-down.
func NewRealInput(chip string, offset int, activeLow bool, onEdge func()) (*RealInput, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(DefaultConsumer),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { onEdge() }),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}

	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input %s:%d: %w", chip, offset, err)
	}
	return &RealInput{line: line, offset: offset}, nil
}

// Level returns the logical level of the line.
func (r *RealInput) Level() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read input %d: %w", r.offset, err)
	}
	return v == 1, nil
}

// Close releases the line.
func (r *RealInput) Close() error {
	if err := r.line.Close(); err != nil {
		return fmt.Errorf("close input %d: %w", r.offset, err)
	}
	return nil
}

// RealOutput drives a relay or LED line.
type RealOutput struct {
	line   *gpiocdev.Line
	offset int
}

// NewRealOutput requests offset on chip as an output, initially inactive.
func NewRealOutput(chip string, offset int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(0),
		gpiocdev.WithConsumer(DefaultConsumer))
	if err != nil {
		return nil, fmt.Errorf("request output %s:%d: %w", chip, offset, err)
	}
	return &RealOutput{line: line, offset: offset}, nil
}

// Set drives the line.
func (r *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("set output %d: %w", r.offset, err)
	}
	return nil
}

// Close drives the line low and returns it to an input with pull-down,
// matching the boot default, before releasing it.
func (r *RealOutput) Close() error {
	var errs []error
	if err := r.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("reset output %d: %w", r.offset, err))
	}
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure output %d: %w", r.offset, err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output %d: %w", r.offset, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
