// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/relay-sensor/internal/adc"
	"github.com/sweeney/relay-sensor/internal/button"
	"github.com/sweeney/relay-sensor/internal/device"
	"github.com/sweeney/relay-sensor/internal/dispatch"
	"github.com/sweeney/relay-sensor/internal/gpio"
	"github.com/sweeney/relay-sensor/internal/report"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "/etc/relay-sensor/config.yaml"

// Transports understood by network.transport.
const (
	TransportMQTT   = "mqtt"
	TransportSerial = "serial"
)

// Config is the daemon configuration.
type Config struct {
	Profile string  `yaml:"profile"`
	Log     Log     `yaml:"log"`
	Button  Button  `yaml:"button"`
	Relay   Relay   `yaml:"relay"`
	LED     LED     `yaml:"led"`
	Light   Light   `yaml:"light"`
	ADC     ADC     `yaml:"adc"`
	Report  Report  `yaml:"report"`
	Network Network `yaml:"network"`
	MQTT    MQTT    `yaml:"mqtt"`
	Serial  Serial  `yaml:"serial"`
	HTTP    HTTP    `yaml:"http"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Button struct {
	Chip      string        `yaml:"chip"`
	Line      int           `yaml:"line"`
	ActiveLow bool          `yaml:"active_low"`
	Debounce  time.Duration `yaml:"debounce"`
	LongPress time.Duration `yaml:"long_press"`
}

type Relay struct {
	Chip     string `yaml:"chip"`
	Line     int    `yaml:"line"`
	Endpoint uint8  `yaml:"endpoint"`
}

// LED is optional; a negative line means the board has none.
type LED struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
}

// Light is the remotely switched output on its own On/Off endpoint. Endpoint
// 0 removes the endpoint; a negative line keeps the endpoint without an
// output.
type Light struct {
	Chip     string `yaml:"chip"`
	Line     int    `yaml:"line"`
	Endpoint uint8  `yaml:"endpoint"`
}

type ADC struct {
	Device         string        `yaml:"device"`
	Channel        int           `yaml:"channel"`
	Oversample     int           `yaml:"oversample"`
	Settle         time.Duration `yaml:"settle"`
	Interval       time.Duration `yaml:"interval"`
	ReferenceMV    int32         `yaml:"reference_mv"`
	GainNum        int32         `yaml:"gain_num"`
	GainDen        int32         `yaml:"gain_den"`
	ResolutionBits uint          `yaml:"resolution_bits"`
	PostMultiplier int32         `yaml:"post_multiplier"`
}

type Report struct {
	Policy             string  `yaml:"policy"`
	VoltageEndpoint    uint8   `yaml:"voltage_endpoint"`
	VoltageThresholdCV int32   `yaml:"voltage_threshold_cv"`
	Battery            Battery `yaml:"battery"`
}

type Battery struct {
	Enabled     bool  `yaml:"enabled"`
	Endpoint    uint8 `yaml:"endpoint"`
	ThresholdMV int32 `yaml:"threshold_mv"`
	EmptyMV     int32 `yaml:"empty_mv"`
	FullMV      int32 `yaml:"full_mv"`
}

type Network struct {
	Transport     string `yaml:"transport"`
	QueueCapacity int    `yaml:"queue_capacity"`
}

type MQTT struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	BaseTopic      string        `yaml:"base_topic"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ConnectRetries int           `yaml:"connect_retries"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
}

type Serial struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Profile: device.ProfileDev.Name,
		Log:     Log{Level: "info", Format: "text"},
		Button: Button{
			Chip:      gpio.DefaultChip,
			Line:      gpio.DefaultButton,
			ActiveLow: true,
			Debounce:  button.DefaultDebounce,
			LongPress: button.DefaultLongPress,
		},
		Relay: Relay{Chip: gpio.DefaultChip, Line: gpio.DefaultRelay, Endpoint: device.DefaultRelayEndpoint},
		LED:   LED{Chip: gpio.DefaultChip, Line: gpio.DefaultLED},
		Light: Light{Chip: gpio.DefaultChip, Line: gpio.DefaultLight, Endpoint: device.DefaultLightEndpoint},
		ADC: ADC{
			Device:         "/sys/bus/iio/devices/iio:device0",
			Oversample:     adc.DefaultOversample,
			Settle:         adc.DefaultSettle,
			Interval:       adc.DefaultInterval,
			ReferenceMV:    adc.DefaultCalibration.ReferenceMV,
			GainNum:        adc.DefaultCalibration.GainNum,
			GainDen:        adc.DefaultCalibration.GainDen,
			ResolutionBits: adc.DefaultCalibration.ResolutionBits,
			PostMultiplier: adc.DefaultCalibration.PostMultiplier,
		},
		Report: Report{
			Policy:             string(report.UpdateOnCrossing),
			VoltageEndpoint:    device.DefaultVoltageEndpoint,
			VoltageThresholdCV: device.DefaultVoltageThresholdCV,
			Battery: Battery{
				Enabled:     true,
				Endpoint:    device.DefaultRelayEndpoint,
				ThresholdMV: device.DefaultBatteryThresholdMV,
				EmptyMV:     report.DefaultEmptyMV,
				FullMV:      report.DefaultFullMV,
			},
		},
		Network: Network{Transport: TransportMQTT, QueueCapacity: dispatch.DefaultCapacity},
		MQTT: MQTT{
			Broker:         "tcp://localhost:1883",
			ClientID:       "relay-sensor",
			BaseTopic:      "zigbee/relay-sensor",
			ConnectRetries: 5,
			Heartbeat:      15 * time.Minute,
		},
		Serial: Serial{Port: "/dev/ttyACM0", Baud: 115200},
		HTTP:   HTTP{Addr: ":8080"},
	}
}

// Load reads path on top of the defaults and validates the result. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if _, err := device.ProfileByName(c.Profile); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Button.Debounce <= 0 {
		return fmt.Errorf("button.debounce must be positive, got %v", c.Button.Debounce)
	}
	if c.Button.LongPress <= c.Button.Debounce {
		return fmt.Errorf("button.long_press (%v) must exceed button.debounce (%v)", c.Button.LongPress, c.Button.Debounce)
	}
	if c.Relay.Endpoint == 0 || c.Relay.Endpoint > 240 {
		return fmt.Errorf("relay.endpoint must be 1-240, got %d", c.Relay.Endpoint)
	}
	if c.Report.VoltageEndpoint == 0 || c.Report.VoltageEndpoint > 240 {
		return fmt.Errorf("report.voltage_endpoint must be 1-240, got %d", c.Report.VoltageEndpoint)
	}
	if c.Report.VoltageEndpoint == c.Relay.Endpoint {
		return fmt.Errorf("report.voltage_endpoint must differ from relay.endpoint (%d)", c.Relay.Endpoint)
	}
	if ep := c.Light.Endpoint; ep != 0 {
		if ep > 240 {
			return fmt.Errorf("light.endpoint must be 0-240, got %d", ep)
		}
		if ep == c.Relay.Endpoint || ep == c.Report.VoltageEndpoint {
			return fmt.Errorf("light.endpoint (%d) must differ from relay.endpoint and report.voltage_endpoint", ep)
		}
	}
	if _, err := report.ParsePolicy(c.Report.Policy); err != nil {
		return err
	}
	if c.Report.VoltageThresholdCV <= 0 {
		return fmt.Errorf("report.voltage_threshold_cv must be positive, got %d", c.Report.VoltageThresholdCV)
	}
	if b := c.Report.Battery; b.Enabled {
		if b.ThresholdMV <= 0 {
			return fmt.Errorf("report.battery.threshold_mv must be positive, got %d", b.ThresholdMV)
		}
		if b.FullMV <= b.EmptyMV {
			return fmt.Errorf("report.battery.full_mv (%d) must exceed empty_mv (%d)", b.FullMV, b.EmptyMV)
		}
	}
	if c.ADC.Oversample <= 0 {
		return fmt.Errorf("adc.oversample must be positive, got %d", c.ADC.Oversample)
	}
	if c.ADC.Interval < time.Second || c.ADC.Interval > time.Hour {
		return fmt.Errorf("adc.interval must be between 1s and 1h, got %v", c.ADC.Interval)
	}
	if err := c.Calibration().Validate(); err != nil {
		return err
	}
	if c.Network.QueueCapacity <= 0 {
		return fmt.Errorf("network.queue_capacity must be positive, got %d", c.Network.QueueCapacity)
	}
	switch c.Network.Transport {
	case TransportMQTT:
		if c.MQTT.Broker == "" {
			return errors.New("mqtt.broker is required")
		}
		if c.MQTT.BaseTopic == "" {
			return errors.New("mqtt.base_topic is required")
		}
	case TransportSerial:
		if c.Serial.Port == "" {
			return errors.New("serial.port is required")
		}
		if c.Serial.Baud <= 0 {
			return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
		}
	default:
		return fmt.Errorf("network.transport must be mqtt or serial, got %q", c.Network.Transport)
	}
	if c.MQTT.Heartbeat < 0 {
		return fmt.Errorf("mqtt.heartbeat must not be negative, got %v", c.MQTT.Heartbeat)
	}
	return nil
}

// Calibration returns the ADC calibration.
func (c *Config) Calibration() adc.Calibration {
	return adc.Calibration{
		ReferenceMV:    c.ADC.ReferenceMV,
		GainNum:        c.ADC.GainNum,
		GainDen:        c.ADC.GainDen,
		ResolutionBits: c.ADC.ResolutionBits,
		PostMultiplier: c.ADC.PostMultiplier,
	}
}

// Sampler returns the ADC sampler settings.
func (c *Config) Sampler() adc.Config {
	return adc.Config{
		Oversample:  c.ADC.Oversample,
		Settle:      c.ADC.Settle,
		Calibration: c.Calibration(),
	}
}

// ButtonTiming returns the debounce settings.
func (c *Config) ButtonTiming() button.Config {
	return button.Config{Debounce: c.Button.Debounce, LongPress: c.Button.LongPress}
}

// Device returns the device settings. Validate must have passed.
func (c *Config) Device() device.Config {
	profile, _ := device.ProfileByName(c.Profile)
	policy, _ := report.ParsePolicy(c.Report.Policy)
	return device.Config{
		RelayEndpoint:      c.Relay.Endpoint,
		VoltageEndpoint:    c.Report.VoltageEndpoint,
		LightEndpoint:      c.Light.Endpoint,
		BatteryEndpoint:    c.Report.Battery.Endpoint,
		VoltageThresholdCV: c.Report.VoltageThresholdCV,
		BatteryEnabled:     c.Report.Battery.Enabled,
		BatteryThresholdMV: c.Report.Battery.ThresholdMV,
		EmptyMV:            c.Report.Battery.EmptyMV,
		FullMV:             c.Report.Battery.FullMV,
		Policy:             policy,
		Profile:            profile,
	}
}
