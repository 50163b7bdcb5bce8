// Package network defines the link between the device and the mesh network
// stack. Implementations live in internal/mqtt (bridge) and internal/ncp
// (serial co-processor).
package network

import (
	"errors"

	"github.com/sweeney/relay-sensor/internal/zcl"
)

// ErrNotJoined is returned when a frame needs the network and the device is
// not on it.
var ErrNotJoined = errors.New("network: not joined")

// Handlers receives signals from the network stack. Callbacks run on the
// link's own goroutine and must not block.
type Handlers struct {
	OnJoinChange     func(joined bool)
	OnWriteAttribute func(a zcl.Attribute)
	OnCommand        func(c zcl.Command)
}

// Link is the device's view of the network stack.
type Link interface {
	// Start connects and begins delivering signals to h.
	Start(h Handlers) error

	// SetAttribute updates the local attribute table the network reads.
	// It never sends a frame while the device is not joined.
	SetAttribute(a zcl.Attribute) error

	// SendReport sends an attribute report frame.
	SendReport(r zcl.Report) error

	// IndicateUserInput tells the stack the user interacted with the
	// device, so a sleepy end device polls its parent promptly.
	IndicateUserInput()

	// Leave leaves the network and restarts joining (factory reset).
	Leave() error

	// Close disconnects.
	Close() error
}
