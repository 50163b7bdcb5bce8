package device

import "fmt"

// Profile describes what the board can do with its LED.
type Profile struct {
	Name string
	// SupportsIdentifyBlink blinks the LED while the coordinator asks the
	// device to identify itself.
	SupportsIdentifyBlink bool
	// JoinLED lights the LED while joined.
	JoinLED bool
}

// Known hardware profiles.
var (
	ProfileDev      = Profile{Name: "dev", SupportsIdentifyBlink: true, JoinLED: true}
	ProfileLowPower = Profile{Name: "low-power"}
)

// ProfileByName returns the profile called name.
func ProfileByName(name string) (Profile, error) {
	switch name {
	case ProfileDev.Name:
		return ProfileDev, nil
	case ProfileLowPower.Name:
		return ProfileLowPower, nil
	}
	return Profile{}, fmt.Errorf("device: unknown profile %q (want dev or low-power)", name)
}
