// Package gpio provides the button input and the relay and LED outputs with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Input is an edge-reporting digital input.
type Input interface {
	// Level returns the logical level (true = active). Active-low wiring is
	// already inverted.
	Level() (bool, error)

	// Close releases the line.
	Close() error
}

// Output is a digital output.
type Output interface {
	// Set drives the logical level (true = active).
	Set(on bool) error

	// Close releases the line.
	Close() error
}

// Default line offsets on gpiochip0 (BCM numbering).
const (
	DefaultChip     = "gpiochip0"
	DefaultButton   = 17
	DefaultRelay    = 27
	DefaultLED      = 22
	DefaultLight    = 23
	DefaultConsumer = "relay-sensor"
)
