// Command relay-sensor runs a relay switch with a battery voltage sensor as a
// Zigbee end device, bridged over MQTT or a serial co-processor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/relay-sensor/internal/adc"
	"github.com/sweeney/relay-sensor/internal/button"
	"github.com/sweeney/relay-sensor/internal/config"
	"github.com/sweeney/relay-sensor/internal/device"
	"github.com/sweeney/relay-sensor/internal/dispatch"
	"github.com/sweeney/relay-sensor/internal/gpio"
	"github.com/sweeney/relay-sensor/internal/metrics"
	"github.com/sweeney/relay-sensor/internal/mqtt"
	"github.com/sweeney/relay-sensor/internal/ncp"
	"github.com/sweeney/relay-sensor/internal/network"
	"github.com/sweeney/relay-sensor/internal/status"
	"github.com/sweeney/relay-sensor/internal/web"
	"github.com/sweeney/relay-sensor/internal/zcl"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	logLevel := flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	profile := flag.String("profile", "", "Override hardware profile (dev, low-power)")
	printState := flag.Bool("print-state", false, "Print button level and one voltage reading and exit")
	embeddedBroker := flag.Bool("embedded-broker", false, "Run an in-process MQTT broker on the configured broker address")

	flag.Parse()

	cfg, err := loadConfig(*configPath, *logLevel, *profile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if *printState {
		err = runPrintState(cfg, os.Stdout, logger)
	} else {
		err = run(cfg, *embeddedBroker, logger)
	}
	if err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies the flag overrides.
func loadConfig(path, logLevel, profile string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if logLevel == "" && profile == "" {
		return cfg, nil
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if profile != "" {
		cfg.Profile = profile
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func runPrintState(cfg config.Config, w io.Writer, logger *slog.Logger) error {
	in, err := gpio.NewRealInput(cfg.Button.Chip, cfg.Button.Line, cfg.Button.ActiveLow, func() {})
	if err != nil {
		return fmt.Errorf("init button: %w", err)
	}
	defer in.Close()

	src, err := adc.OpenIIO(cfg.ADC.Device, cfg.ADC.Channel)
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}
	return printState(w, in, adc.NewSampler(src, cfg.Sampler(), logger))
}

// printState writes the button level and one calibrated voltage reading.
func printState(w io.Writer, in gpio.Input, sampler *adc.Sampler) error {
	pressed, err := in.Level()
	if err != nil {
		return fmt.Errorf("read button: %w", err)
	}
	mv, err := sampler.ReadVoltage()
	if err != nil {
		return fmt.Errorf("read voltage: %w", err)
	}
	fmt.Fprintf(w, "Button: %s, Voltage: %d mV\n", pressedString(pressed), mv)
	return nil
}

func run(cfg config.Config, embeddedBroker bool, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if embeddedBroker {
		if cfg.Network.Transport != config.TransportMQTT {
			return errors.New("-embedded-broker needs network.transport mqtt")
		}
		addr, err := brokerListenAddr(cfg.MQTT.Broker)
		if err != nil {
			return err
		}
		broker, err := mqtt.NewBroker(addr, logger)
		if err != nil {
			return fmt.Errorf("embedded broker: %w", err)
		}
		go func() {
			if err := broker.Serve(); err != nil {
				logger.Error("embedded broker", "err", err)
			}
		}()
		defer broker.Close()
		logger.Info("embedded broker listening", "addr", addr)
	}

	timers := dispatch.NewTimers(dispatch.RealClock())
	queue := dispatch.NewQueue(cfg.Network.QueueCapacity, logger)

	// Outputs
	relay, err := gpio.NewRealOutput(cfg.Relay.Chip, cfg.Relay.Line)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relay.Close()

	var led gpio.Output
	if cfg.LED.Line >= 0 {
		out, err := gpio.NewRealOutput(cfg.LED.Chip, cfg.LED.Line)
		if err != nil {
			return fmt.Errorf("init led: %w", err)
		}
		defer out.Close()
		led = out
	}

	// Status and metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Network link
	var (
		link network.Link
		pub  systemPublisher
	)
	switch cfg.Network.Transport {
	case config.TransportSerial:
		l, err := ncp.Open(ncp.Config{Port: cfg.Serial.Port, Baud: cfg.Serial.Baud, OpenRetries: 5}, logger)
		if err != nil {
			return err
		}
		tracker.SetLinkConnected(true)
		m.SetLinkConnected(true)
		link, pub = l, logPublisher{logger: logger.With("component", "system")}
	default:
		l := mqtt.NewLink(mqtt.Config{
			Broker:         cfg.MQTT.Broker,
			ClientID:       cfg.MQTT.ClientID,
			BaseTopic:      cfg.MQTT.BaseTopic,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			ConnectRetries: cfg.MQTT.ConnectRetries,
		}, logger)
		l.OnConnectionChange = func(connected bool) {
			tracker.SetLinkConnected(connected)
			m.SetLinkConnected(connected)
		}
		link, pub = l, l
	}
	defer link.Close()

	// Device
	dev := device.New(cfg.Device(), link, relay, led, queue, timers, logger)
	if cfg.Light.Endpoint != 0 && cfg.Light.Line >= 0 {
		light, err := gpio.NewRealOutput(cfg.Light.Chip, cfg.Light.Line)
		if err != nil {
			return fmt.Errorf("init light: %w", err)
		}
		defer light.Close()
		dev.AttachLight(light)
	}
	dev.AddObserver(tracker)
	dev.AddObserver(m)
	dev.SetUserCallback(func(factoryReset bool) {
		logger.Debug("user input", "factory_reset", factoryReset)
	})

	// Button
	var line atomic.Pointer[gpio.RealInput]
	ctrl := button.New(cfg.ButtonTiming(), timers, queue, lineLevel(&line), dev, logger)
	tracker.SetButtonSource(ctrl.State)
	in, err := gpio.NewRealInput(cfg.Button.Chip, cfg.Button.Line, cfg.Button.ActiveLow, ctrl.HandleEdge)
	if err != nil {
		return fmt.Errorf("init button: %w", err)
	}
	defer in.Close()
	line.Store(in)

	if err := queue.Post("device-init", dev.Init); err != nil {
		return fmt.Errorf("queue device init: %w", err)
	}
	go func() {
		if err := queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker stopped", "err", err)
		}
	}()

	// Sampling. A missing ADC disables voltage reporting only.
	if src, err := adc.OpenIIO(cfg.ADC.Device, cfg.ADC.Channel); err != nil {
		logger.Warn("adc unavailable, sampling disabled", "device", cfg.ADC.Device, "err", err)
	} else {
		sampler := adc.NewSampler(src, cfg.Sampler(), logger)
		periodic := adc.NewPeriodic(sampler, queue, timers, cfg.ADC.Interval, dev.UpdateVoltage, dev.VoltageFailed, logger)
		periodic.Start()
		defer periodic.Stop()
		tracker.SetSampling(true)
	}

	if err := link.Start(dev.Handlers()); err != nil {
		return fmt.Errorf("start %s link: %w", cfg.Network.Transport, err)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      mqtt.EventStartup,
		BootID:     snap.BootID,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
	}
	if err := pub.PublishSystem(startup); err != nil {
		logger.Warn("publish startup event", "err", err)
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, web.Options{
			Gatherer: reg,
			Relay:    relayFunc(queue, dev.HandleCommand, cfg.Relay.Endpoint),
			Logger:   logger,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
		logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	logger.Info("started",
		"profile", cfg.Profile,
		"transport", cfg.Network.Transport,
		"debounce", cfg.Button.Debounce,
		"long_press", cfg.Button.LongPress,
		"sample_interval", cfg.ADC.Interval,
		"heartbeat", cfg.MQTT.Heartbeat)

	var heartbeat <-chan time.Time
	if cfg.MQTT.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.MQTT.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(pub, tracker, time.Now, heartbeat, sigCh, logger)
}

// systemPublisher receives lifecycle events.
type systemPublisher interface {
	PublishSystem(event mqtt.SystemEvent) error
}

// logPublisher writes system events to the log when the transport has no
// topic for them.
type logPublisher struct {
	logger *slog.Logger
}

func (p logPublisher) PublishSystem(event mqtt.SystemEvent) error {
	p.logger.Info("system event", "event", event.Event, "reason", event.Reason, "boot_id", event.BootID)
	return nil
}

// runLoop publishes heartbeats until a signal arrives, then publishes the
// shutdown event.
func runLoop(pub systemPublisher, tracker *status.Tracker, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal, logger *slog.Logger) error {
	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s)
			reason := signalName(s)
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      mqtt.EventShutdown,
				Reason:     reason,
				BootID:     snap.BootID,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, mqtt.EventShutdown, reason),
			}
			if err := pub.PublishSystem(event); err != nil {
				logger.Warn("publish shutdown event", "err", err)
			}
			return nil

		case <-heartbeat:
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			logger.Info("heartbeat",
				"uptime", snap.Uptime().Round(time.Second),
				"relay", snap.Relay,
				"joined", snap.Joined,
				"short_press", snap.Counts.ShortPress,
				"reports_sent", snap.Counts.ReportsSent)
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      mqtt.EventHeartbeat,
				BootID:     snap.BootID,
				RawPayload: status.FormatStatusEvent(snap, mqtt.EventHeartbeat, ""),
			}
			if err := pub.PublishSystem(event); err != nil {
				logger.Warn("publish heartbeat", "err", err)
			}
		}
	}
}

// relayFunc turns HTTP relay requests into On/Off commands for the relay
// endpoint and posts them to the worker, where they take the same path as
// commands from the network.
func relayFunc(queue *dispatch.Queue, handle func(zcl.Command), endpoint uint8) web.RelayFunc {
	return func(state string) error {
		cmd := zcl.Command{Endpoint: endpoint, Cluster: zcl.ClusterOnOff}
		switch state {
		case "ON":
			cmd.ID = zcl.CmdOn
		case "OFF":
			cmd.ID = zcl.CmdOff
		case "TOGGLE":
			cmd.ID = zcl.CmdToggle
		default:
			return fmt.Errorf("%w: %q", web.ErrBadRelayState, state)
		}
		return queue.Post("http-relay", func() { handle(cmd) })
	}
}

var errInputNotReady = errors.New("button input not ready")

// lineLevel reads the button level once the input has been stored. Edges can
// arrive before NewRealInput returns, so the pointer is loaded on each read.
func lineLevel[T any, PT interface {
	*T
	gpio.Input
}](p *atomic.Pointer[T]) button.LevelFunc {
	return func() (bool, error) {
		in := p.Load()
		if in == nil {
			return false, errInputNotReady
		}
		return PT(in).Level()
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Profile:          cfg.Profile,
		DebounceMs:       cfg.Button.Debounce.Milliseconds(),
		LongPressMs:      cfg.Button.LongPress.Milliseconds(),
		SampleIntervalMs: cfg.ADC.Interval.Milliseconds(),
		HeartbeatMs:      cfg.MQTT.Heartbeat.Milliseconds(),
		Transport:        cfg.Network.Transport,
		Broker:           cfg.MQTT.Broker,
		SerialPort:       cfg.Serial.Port,
		HTTPAddr:         cfg.HTTP.Addr,
	}
}

// brokerListenAddr turns the broker URL into the address the embedded broker
// listens on.
func brokerListenAddr(broker string) (string, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return "", fmt.Errorf("parse broker %q: %w", broker, err)
	}
	if u.Port() == "" {
		return "", fmt.Errorf("broker %q has no port", broker)
	}
	return u.Host, nil
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func pressedString(pressed bool) string {
	if pressed {
		return "PRESSED"
	}
	return "RELEASED"
}
