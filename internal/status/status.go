// Package status provides a thread-safe status tracker for the relay-sensor
// daemon. It is read by the HTTP handlers and the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/relay-sensor/internal/button"
	"github.com/sweeney/relay-sensor/internal/report"
)

// NetworkInfo contains host network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Profile          string
	DebounceMs       int64
	LongPressMs      int64
	SampleIntervalMs int64
	HeartbeatMs      int64
	Transport        string
	Broker           string
	SerialPort       string
	HTTPAddr         string
}

// Counts tracks device activity since startup.
type Counts struct {
	ShortPress        int
	LongPress         int
	RelayChanges      int
	ReportsSent       int
	ReportsSuppressed int
	ReportsFailed     int
	SampleFailures    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	BootID         string
	Relay          bool
	Button         button.State
	Joined         bool
	HasVoltage     bool
	VoltageMV      int32
	BatteryPercent uint8
	SampledAt      time.Time
	SamplingOn     bool
	LinkConnected  bool
	Counts         Counts
	Events         []Event
	StartTime      time.Time
	Now            time.Time
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. It implements
// device.Observer.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	events *eventLog

	buttonState func() button.State

	// Now is replaceable for tests.
	Now func() time.Time
}

// DefaultEventLog is the number of recent events kept.
const DefaultEventLog = 32

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    newBootID(),
			Button:    button.StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
		events: newEventLog(DefaultEventLog),
		Now:    time.Now,
	}
}

func newBootID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SetButtonSource sets the function queried for the button state on every
// snapshot.
func (t *Tracker) SetButtonSource(fn func() button.State) {
	t.mu.Lock()
	t.buttonState = fn
	t.mu.Unlock()
}

// SetSampling records whether periodic sampling is running.
func (t *Tracker) SetSampling(on bool) {
	t.mu.Lock()
	t.snap.SamplingOn = on
	t.mu.Unlock()
}

// SetLinkConnected records whether the network link is up.
func (t *Tracker) SetLinkConnected(connected bool) {
	t.mu.Lock()
	t.snap.LinkConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the host network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// RelayChanged records a relay change.
func (t *Tracker) RelayChanged(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Relay == on {
		return
	}
	t.snap.Relay = on
	t.snap.Counts.RelayChanges++
	t.record("relay", onOff(on))
}

// JoinChanged records a network join change.
func (t *Tracker) JoinChanged(joined bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Joined = joined
	if joined {
		t.record("network", "joined")
	} else {
		t.record("network", "left")
	}
}

// ButtonPressed records a button gesture.
func (t *Tracker) ButtonPressed(e button.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch e {
	case button.EventShortPress:
		t.snap.Counts.ShortPress++
	case button.EventLongPress:
		t.snap.Counts.LongPress++
	}
	t.record("button", string(e))
}

// VoltageMeasured records a voltage reading.
func (t *Tracker) VoltageMeasured(mv int32, batteryPercent uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.HasVoltage = true
	t.snap.VoltageMV = mv
	t.snap.BatteryPercent = batteryPercent
	t.snap.SampledAt = t.Now()
}

// VoltageFailed records a failed reading.
func (t *Tracker) VoltageFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Counts.SampleFailures++
	t.record("adc", err.Error())
}

// ReportDone records the outcome of a threshold crossing.
func (t *Tracker) ReportDone(attribute string, outcome report.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch outcome {
	case report.OutcomeSent:
		t.snap.Counts.ReportsSent++
	case report.OutcomeSuppressed:
		t.snap.Counts.ReportsSuppressed++
	case report.OutcomeFailed:
		t.snap.Counts.ReportsFailed++
	}
	t.record("report", attribute+" "+string(outcome))
}

// record appends to the event log. Caller holds t.mu.
func (t *Tracker) record(kind, detail string) {
	t.events.push(Event{Time: t.Now(), Kind: kind, Detail: detail})
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Events = t.events.list()
	fn := t.buttonState
	t.mu.RUnlock()
	if fn != nil {
		s.Button = fn()
	}
	s.Now = t.Now()
	return s
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
