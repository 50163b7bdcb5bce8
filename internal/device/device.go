// Package device holds the logical device state and mediates every
// actuation and attribute update.
//
// All methods except Handlers and Joined run on the dispatch worker.
// Network signals arrive on the link goroutine and are posted to the worker.
package device

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sweeney/relay-sensor/internal/button"
	"github.com/sweeney/relay-sensor/internal/dispatch"
	"github.com/sweeney/relay-sensor/internal/gpio"
	"github.com/sweeney/relay-sensor/internal/network"
	"github.com/sweeney/relay-sensor/internal/report"
	"github.com/sweeney/relay-sensor/internal/zcl"
)

// Config holds endpoint layout and reporting parameters.
type Config struct {
	RelayEndpoint   uint8
	VoltageEndpoint uint8
	BatteryEndpoint uint8
	// LightEndpoint exposes the light output as a second On/Off endpoint.
	// Zero disables it.
	LightEndpoint uint8

	VoltageThresholdCV int32
	BatteryEnabled     bool
	BatteryThresholdMV int32
	EmptyMV            int32
	FullMV             int32
	Policy             report.Policy

	Profile       Profile
	IdentifyBlink time.Duration
}

// Defaults used when a Config field is zero.
const (
	DefaultRelayEndpoint      uint8 = 1
	DefaultVoltageEndpoint    uint8 = 2
	DefaultVoltageThresholdCV int32 = 5
	DefaultBatteryThresholdMV int32 = 100
	DefaultIdentifyBlink            = 100 * time.Millisecond
)

// DefaultLightEndpoint is the light endpoint the daemon config starts with.
const DefaultLightEndpoint uint8 = 3

func (c *Config) applyDefaults() {
	if c.RelayEndpoint == 0 {
		c.RelayEndpoint = DefaultRelayEndpoint
	}
	if c.VoltageEndpoint == 0 {
		c.VoltageEndpoint = DefaultVoltageEndpoint
	}
	if c.BatteryEndpoint == 0 {
		c.BatteryEndpoint = c.RelayEndpoint
	}
	if c.VoltageThresholdCV <= 0 {
		c.VoltageThresholdCV = DefaultVoltageThresholdCV
	}
	if c.BatteryThresholdMV <= 0 {
		c.BatteryThresholdMV = DefaultBatteryThresholdMV
	}
	if c.EmptyMV == 0 && c.FullMV == 0 {
		c.EmptyMV, c.FullMV = report.DefaultEmptyMV, report.DefaultFullMV
	}
	if c.IdentifyBlink <= 0 {
		c.IdentifyBlink = DefaultIdentifyBlink
	}
	if c.Profile.Name == "" {
		c.Profile = ProfileDev
	}
}

// Observer is told about device activity. Calls happen on the worker.
type Observer interface {
	RelayChanged(on bool)
	JoinChanged(joined bool)
	ButtonPressed(e button.Event)
	VoltageMeasured(mv int32, batteryPercent uint8)
	VoltageFailed(err error)
	ReportDone(attribute string, outcome report.Outcome)
}

// Device is the relay switch with its voltage sensor.
type Device struct {
	cfg    Config
	link   network.Link
	relay  gpio.Output
	led    gpio.Output
	light  gpio.Output
	queue  *dispatch.Queue
	clock  dispatch.Clock
	logger *slog.Logger

	observers []Observer
	userCB    func(factoryReset bool)

	relayOn bool
	lightOn bool
	joined  atomic.Bool

	voltage *report.Reporter
	battery *report.Reporter

	blink         *dispatch.DelayedWork
	identifyUntil time.Time
	identifying   bool
	ledOn         bool
}

// New creates a Device. led may be nil when the board has none.
func New(cfg Config, link network.Link, relay, led gpio.Output, queue *dispatch.Queue, timers *dispatch.Timers, logger *slog.Logger) *Device {
	cfg.applyDefaults()
	d := &Device{
		cfg:    cfg,
		link:   link,
		relay:  relay,
		led:    led,
		queue:  queue,
		clock:  timers.Clock(),
		logger: logger.With("component", "device"),
	}
	d.voltage = report.New(report.Config{
		Name:      zcl.AttributeName(zcl.ClusterAnalogInput, zcl.AttrPresentValue),
		Threshold: cfg.VoltageThresholdCV,
		Policy:    cfg.Policy,
	}, d.Joined, d.emitVoltage, logger)
	if cfg.BatteryEnabled {
		d.battery = report.New(report.Config{
			Name:      zcl.AttributeName(zcl.ClusterPowerConfig, zcl.AttrBatteryVoltage),
			Threshold: cfg.BatteryThresholdMV,
			Policy:    cfg.Policy,
		}, d.Joined, d.emitBattery, logger)
	}
	d.blink = queue.NewDelayedWork(timers, "identify-blink", d.runBlink)
	return d
}

// AddObserver registers o for device activity.
func (d *Device) AddObserver(o Observer) {
	d.observers = append(d.observers, o)
}

// SetUserCallback registers a callback run after every button gesture with
// factoryReset set for a long press.
func (d *Device) SetUserCallback(cb func(factoryReset bool)) {
	d.userCB = cb
}

// AttachLight sets the output driven by the light endpoint. Without one the
// endpoint still tracks its attribute.
func (d *Device) AttachLight(out gpio.Output) {
	d.light = out
}

// Config returns the effective configuration.
func (d *Device) Config() Config {
	return d.cfg
}

// Init drives the outputs to their initial state and publishes the relay
// attribute.
func (d *Device) Init() {
	d.SetRelay(false)
	if d.cfg.LightEndpoint != 0 {
		d.SetLight(false)
	}
	d.restoreLED()
	d.logger.Info("device initialised",
		"profile", d.cfg.Profile.Name,
		"relay_endpoint", d.cfg.RelayEndpoint,
		"light_endpoint", d.cfg.LightEndpoint,
		"voltage_endpoint", d.cfg.VoltageEndpoint,
		"battery", d.cfg.BatteryEnabled)
}

// SetRelay updates the relay state, drives the output and mirrors the value
// into the On/Off attribute. Failures are logged and never roll back the
// local state.
func (d *Device) SetRelay(on bool) {
	d.relayOn = on
	if err := d.relay.Set(on); err != nil {
		d.logger.Error("drive relay", "on", on, "err", err)
	}
	attr := zcl.Attribute{
		Endpoint: d.cfg.RelayEndpoint,
		Cluster:  zcl.ClusterOnOff,
		ID:       zcl.AttrOnOff,
		Type:     zcl.TypeBool,
		Value:    on,
	}
	if err := d.link.SetAttribute(attr); err != nil {
		d.logger.Warn("set on/off attribute", "on", on, "err", err)
	}
	for _, o := range d.observers {
		o.RelayChanged(on)
	}
	d.logger.Info("relay set", "on", on)
}

// ToggleRelay inverts the relay state.
func (d *Device) ToggleRelay() {
	d.SetRelay(!d.relayOn)
}

// RelayOn returns the relay state.
func (d *Device) RelayOn() bool {
	return d.relayOn
}

// SetLight drives the light output and mirrors the value into the On/Off
// attribute of the light endpoint.
func (d *Device) SetLight(on bool) {
	d.lightOn = on
	if d.light != nil {
		if err := d.light.Set(on); err != nil {
			d.logger.Error("drive light", "on", on, "err", err)
		}
	}
	attr := zcl.Attribute{
		Endpoint: d.cfg.LightEndpoint,
		Cluster:  zcl.ClusterOnOff,
		ID:       zcl.AttrOnOff,
		Type:     zcl.TypeBool,
		Value:    on,
	}
	if err := d.link.SetAttribute(attr); err != nil {
		d.logger.Warn("set light on/off attribute", "on", on, "err", err)
	}
	d.logger.Info("light set", "on", on)
}

// ToggleLight inverts the light state.
func (d *Device) ToggleLight() {
	d.SetLight(!d.lightOn)
}

// LightOn returns the light state.
func (d *Device) LightOn() bool {
	return d.lightOn
}

// OnButtonEvent handles a debounced gesture.
func (d *Device) OnButtonEvent(e button.Event) {
	for _, o := range d.observers {
		o.ButtonPressed(e)
	}
	switch e {
	case button.EventShortPress:
		d.link.IndicateUserInput()
		d.ToggleRelay()
		if d.userCB != nil {
			d.userCB(false)
		}
	case button.EventLongPress:
		d.logger.Info("factory reset requested")
		if d.userCB != nil {
			d.userCB(true)
		}
		if err := d.link.Leave(); err != nil {
			d.logger.Error("leave network", "err", err)
		}
	}
}

// Joined reports whether the device is on the network. Safe from any
// goroutine.
func (d *Device) Joined() bool {
	return d.joined.Load()
}

// SetNetworkJoined records the join state and updates the join LED.
func (d *Device) SetNetworkJoined(joined bool) {
	if d.joined.Swap(joined) == joined {
		return
	}
	d.logger.Info("network join state changed", "joined", joined)
	for _, o := range d.observers {
		o.JoinChanged(joined)
	}
	if !d.identifying {
		d.restoreLED()
	}
}

// UpdateVoltage feeds a new battery voltage reading to the reporters. The
// local attribute values always track the reading; reports are sent only
// when the change crosses a threshold while joined.
func (d *Device) UpdateVoltage(mv int32) {
	cv := report.Centivolts(mv)
	d.setAttr(d.voltageAttr(cv))
	d.done(d.voltage.Name(), d.voltage.Update(cv))

	pct := report.BatteryPercent(mv, d.cfg.EmptyMV, d.cfg.FullMV)
	if d.battery != nil {
		volt, rem := d.batteryAttrs(mv, pct)
		d.setAttr(volt)
		d.setAttr(rem)
		d.done(d.battery.Name(), d.battery.Update(mv))
	}

	for _, o := range d.observers {
		o.VoltageMeasured(mv, pct)
	}
}

// VoltageFailed records a failed reading.
func (d *Device) VoltageFailed(err error) {
	for _, o := range d.observers {
		o.VoltageFailed(err)
	}
}

func (d *Device) done(name string, out report.Outcome) {
	if out == report.OutcomeUnchanged {
		return
	}
	for _, o := range d.observers {
		o.ReportDone(name, out)
	}
}

func (d *Device) setAttr(a zcl.Attribute) {
	if err := d.link.SetAttribute(a); err != nil {
		d.logger.Warn("set attribute",
			"cluster", zcl.ClusterName(a.Cluster),
			"attribute", zcl.AttributeName(a.Cluster, a.ID),
			"err", err)
	}
}

func (d *Device) voltageAttr(cv int32) zcl.Attribute {
	return zcl.Attribute{
		Endpoint: d.cfg.VoltageEndpoint,
		Cluster:  zcl.ClusterAnalogInput,
		ID:       zcl.AttrPresentValue,
		Type:     zcl.TypeInt16,
		Value:    int16(cv),
	}
}

func (d *Device) batteryAttrs(mv int32, pct uint8) (zcl.Attribute, zcl.Attribute) {
	volt := zcl.Attribute{
		Endpoint: d.cfg.BatteryEndpoint,
		Cluster:  zcl.ClusterPowerConfig,
		ID:       zcl.AttrBatteryVoltage,
		Type:     zcl.TypeUint8,
		Value:    report.BatteryVoltageUnits(mv),
	}
	rem := zcl.Attribute{
		Endpoint: d.cfg.BatteryEndpoint,
		Cluster:  zcl.ClusterPowerConfig,
		ID:       zcl.AttrBatteryPercentageRemaining,
		Type:     zcl.TypeUint8,
		Value:    report.BatteryPercentUnits(pct),
	}
	return volt, rem
}

func (d *Device) emitVoltage(cv int32) error {
	return d.link.SendReport(zcl.ToCoordinator(d.voltageAttr(cv)))
}

func (d *Device) emitBattery(mv int32) error {
	volt, rem := d.batteryAttrs(mv, report.BatteryPercent(mv, d.cfg.EmptyMV, d.cfg.FullMV))
	if err := d.link.SendReport(zcl.ToCoordinator(volt)); err != nil {
		return err
	}
	return d.link.SendReport(zcl.ToCoordinator(rem))
}

// Voltage returns the voltage reporter.
func (d *Device) Voltage() *report.Reporter {
	return d.voltage
}

// Battery returns the battery reporter, or nil when disabled.
func (d *Device) Battery() *report.Reporter {
	return d.battery
}
