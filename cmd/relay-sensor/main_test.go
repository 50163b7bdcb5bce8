package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/relay-sensor/internal/adc"
	"github.com/sweeney/relay-sensor/internal/config"
	"github.com/sweeney/relay-sensor/internal/device"
	"github.com/sweeney/relay-sensor/internal/dispatch"
	"github.com/sweeney/relay-sensor/internal/gpio"
	"github.com/sweeney/relay-sensor/internal/mqtt"
	"github.com/sweeney/relay-sensor/internal/network"
	"github.com/sweeney/relay-sensor/internal/status"
	"github.com/sweeney/relay-sensor/internal/web"
	"github.com/sweeney/relay-sensor/internal/zcl"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	want := status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}
	if *info != want {
		t.Errorf("got %+v, want %+v", *info, want)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "disconnected")
	t.Setenv(envNetworkType, "")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "disconnected" {
		t.Errorf("Status: got %q, want disconnected", info.Status)
	}
	if info.IP != "" {
		t.Errorf("IP: got %q, want empty", info.IP)
	}
}

type mockPublisher struct {
	events []mqtt.SystemEvent
	err    error
}

func (m *mockPublisher) PublishSystem(event mqtt.SystemEvent) error {
	m.events = append(m.events, event)
	return m.err
}

func newTestTracker() *status.Tracker {
	tr := status.NewTracker(epoch, status.Config{Profile: "dev", Transport: "mqtt"})
	tr.Now = func() time.Time { return epoch.Add(time.Hour) }
	return tr
}

func TestRunLoopShutdown(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			pub := &mockPublisher{}
			tr := newTestTracker()
			sig := make(chan os.Signal, 1)
			sig <- tt.sig

			if err := runLoop(pub, tr, func() time.Time { return epoch }, nil, sig, discardLogger()); err != nil {
				t.Fatalf("runLoop: %v", err)
			}
			if len(pub.events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(pub.events))
			}
			ev := pub.events[0]
			if ev.Event != mqtt.EventShutdown || ev.Reason != tt.want || !ev.Retained {
				t.Errorf("event: got %+v", ev)
			}
			if ev.BootID != tr.Snapshot().BootID {
				t.Errorf("BootID: got %q, want tracker boot id", ev.BootID)
			}

			var sj status.StatusJSON
			if err := json.Unmarshal(ev.RawPayload, &sj); err != nil {
				t.Fatalf("payload: %v", err)
			}
			if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != tt.want {
				t.Errorf("payload event/reason: got %q/%q", sj.Status.Event, sj.Status.Reason)
			}
		})
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	pub := &mockPublisher{}
	tr := newTestTracker()
	tr.RelayChanged(true)
	hb := make(chan time.Time)
	sig := make(chan os.Signal)

	go func() {
		hb <- epoch
		hb <- epoch
		sig <- syscall.SIGTERM
	}()

	if err := runLoop(pub, tr, func() time.Time { return epoch }, hb, sig, discardLogger()); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if len(pub.events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(pub.events))
	}
	for _, ev := range pub.events[:2] {
		if ev.Event != mqtt.EventHeartbeat || ev.Retained {
			t.Errorf("heartbeat event: got %+v", ev)
		}
		var sj status.StatusJSON
		if err := json.Unmarshal(ev.RawPayload, &sj); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if sj.Status.Relay != "ON" {
			t.Errorf("heartbeat relay: got %q, want ON", sj.Status.Relay)
		}
		if sj.Status.UptimeSeconds != 3600 {
			t.Errorf("heartbeat uptime: got %d, want 3600", sj.Status.UptimeSeconds)
		}
	}
	if pub.events[2].Event != mqtt.EventShutdown {
		t.Errorf("last event: got %q, want SHUTDOWN", pub.events[2].Event)
	}
}

func TestRunLoopHeartbeatIncludesNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "10.0.0.7")

	pub := &mockPublisher{}
	tr := newTestTracker()
	hb := make(chan time.Time)
	sig := make(chan os.Signal)
	go func() {
		hb <- epoch
		sig <- syscall.SIGINT
	}()

	if err := runLoop(pub, tr, func() time.Time { return epoch }, hb, sig, discardLogger()); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(pub.events[0].RawPayload, &sj); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if sj.Status.Network == nil || sj.Status.Network.IP != "10.0.0.7" {
		t.Errorf("Network: got %+v", sj.Status.Network)
	}
}

func TestRunLoopPublishErrorContinues(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	tr := newTestTracker()
	hb := make(chan time.Time)
	sig := make(chan os.Signal)
	go func() {
		hb <- epoch
		hb <- epoch
		sig <- syscall.SIGTERM
	}()

	if err := runLoop(pub, tr, time.Now, hb, sig, discardLogger()); err != nil {
		t.Fatalf("runLoop should not fail on publish errors: %v", err)
	}
	if len(pub.events) != 3 {
		t.Errorf("expected 3 publish attempts, got %d", len(pub.events))
	}
}

func newTestDevice(t *testing.T, capacity int) (*device.Device, *dispatch.Queue, *gpio.FakeOutput) {
	t.Helper()
	logger := discardLogger()
	queue := dispatch.NewQueue(capacity, logger)
	timers := dispatch.NewTimers(dispatch.NewFakeClock(epoch))
	relay := gpio.NewFakeOutput()
	dev := device.New(device.Config{}, network.NewFakeLink(), relay, nil, queue, timers, logger)
	return dev, queue, relay
}

func TestRelayFuncSendsOnOffCommands(t *testing.T) {
	queue := dispatch.NewQueue(8, discardLogger())
	var got []zcl.Command
	fn := relayFunc(queue, func(c zcl.Command) { got = append(got, c) }, 1)

	for _, state := range []string{"ON", "OFF", "TOGGLE"} {
		if err := fn(state); err != nil {
			t.Fatalf("%s: %v", state, err)
		}
	}
	if len(got) != 0 {
		t.Fatalf("commands handled before the worker ran: %v", got)
	}
	queue.RunPending()

	want := []uint8{zcl.CmdOn, zcl.CmdOff, zcl.CmdToggle}
	if len(got) != len(want) {
		t.Fatalf("got %d commands, want %d", len(got), len(want))
	}
	for i, c := range got {
		if c.Endpoint != 1 || c.Cluster != zcl.ClusterOnOff || c.ID != want[i] {
			t.Errorf("command %d: got %+v, want on/off cmd %d on endpoint 1", i, c, want[i])
		}
	}
}

func TestRelayFuncDrivesDeviceThroughHandleCommand(t *testing.T) {
	dev, queue, relay := newTestDevice(t, 8)
	fn := relayFunc(queue, dev.HandleCommand, device.DefaultRelayEndpoint)

	steps := []struct {
		state string
		want  bool
	}{
		{"ON", true},
		{"TOGGLE", false},
		{"TOGGLE", true},
		{"OFF", false},
	}
	for _, s := range steps {
		if err := fn(s.state); err != nil {
			t.Fatalf("%s: %v", s.state, err)
		}
		if queue.Len() != 1 {
			t.Fatalf("%s: queued %d items, want 1", s.state, queue.Len())
		}
		queue.RunPending()
		if relay.State() != s.want {
			t.Errorf("after %s: relay %v, want %v", s.state, relay.State(), s.want)
		}
		if dev.RelayOn() != s.want {
			t.Errorf("after %s: relay attribute %v, want %v", s.state, dev.RelayOn(), s.want)
		}
	}
}

func TestRelayFuncErrors(t *testing.T) {
	dev, queue, _ := newTestDevice(t, 1)
	fn := relayFunc(queue, dev.HandleCommand, device.DefaultRelayEndpoint)

	if err := fn("DIM"); !errors.Is(err, web.ErrBadRelayState) {
		t.Errorf("bad state: got %v, want ErrBadRelayState", err)
	}
	if err := fn("ON"); err != nil {
		t.Fatalf("first post: %v", err)
	}
	if err := fn("OFF"); !errors.Is(err, dispatch.ErrQueueFull) {
		t.Errorf("full queue: got %v, want ErrQueueFull", err)
	}
}

func TestLineLevel(t *testing.T) {
	var p atomic.Pointer[gpio.FakeInput]
	level := lineLevel(&p)

	if _, err := level(); !errors.Is(err, errInputNotReady) {
		t.Errorf("before store: got %v, want errInputNotReady", err)
	}

	in := gpio.NewFakeInput()
	in.SetLevel(true)
	p.Store(in)
	pressed, err := level()
	if err != nil || !pressed {
		t.Errorf("after store: got %v, %v, want true, nil", pressed, err)
	}
}

func TestLineLevelConcurrentStore(t *testing.T) {
	var p atomic.Pointer[gpio.FakeInput]
	level := lineLevel(&p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			level()
		}
	}()
	p.Store(gpio.NewFakeInput())
	<-done
}

func TestPrintState(t *testing.T) {
	in := gpio.NewFakeInput()
	in.SetLevel(true)
	sampler := adc.NewSampler(adc.NewFakeSource(842), adc.Config{}, discardLogger())
	sampler.Sleep = func(time.Duration) {}

	var buf bytes.Buffer
	if err := printState(&buf, in, sampler); err != nil {
		t.Fatalf("printState: %v", err)
	}
	if got, want := buf.String(), "Button: PRESSED, Voltage: 3700 mV\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPrintStateErrors(t *testing.T) {
	in := gpio.NewFakeInput()
	in.ReadError = errors.New("line busy")
	sampler := adc.NewSampler(adc.NewFakeSource(842), adc.Config{}, discardLogger())
	sampler.Sleep = func(time.Duration) {}

	if err := printState(io.Discard, in, sampler); err == nil || !strings.Contains(err.Error(), "read button") {
		t.Errorf("button error: got %v", err)
	}

	in.ReadError = nil
	src := adc.NewFakeSource()
	src.Set(adc.FakeReading{Err: errors.New("eio")})
	sampler = adc.NewSampler(src, adc.Config{}, discardLogger())
	sampler.Sleep = func(time.Duration) {}
	if err := printState(io.Discard, in, sampler); !errors.Is(err, adc.ErrIO) {
		t.Errorf("adc error: got %v, want ErrIO", err)
	}
}

func TestBrokerListenAddr(t *testing.T) {
	tests := []struct {
		broker  string
		want    string
		wantErr bool
	}{
		{"tcp://localhost:1883", "localhost:1883", false},
		{"tcp://0.0.0.0:11883", "0.0.0.0:11883", false},
		{"tcp://localhost", "", true},
		{"://bad", "", true},
	}
	for _, tt := range tests {
		got, err := brokerListenAddr(tt.broker)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v, wantErr %v", tt.broker, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.broker, got, tt.want)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %s", out)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil {
		t.Fatalf("not JSON: %v: %s", err, out)
	}
	if line["msg"] != "shown" || line["component"] != "test" {
		t.Errorf("got %v", line)
	}
}

func TestNewLoggerTextDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "DEBUG", "")
	logger.Debug("detail")
	if !strings.Contains(buf.String(), "msg=detail") {
		t.Errorf("expected text debug line, got %q", buf.String())
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	cfg, err := loadConfig(path, "", "")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if cfg.Profile != "dev" {
		t.Errorf("default profile: got %q", cfg.Profile)
	}

	cfg, err = loadConfig(path, "debug", "low-power")
	if err != nil {
		t.Fatalf("overrides: %v", err)
	}
	if cfg.Profile != "low-power" || cfg.Log.Level != "debug" {
		t.Errorf("overrides not applied: profile %q level %q", cfg.Profile, cfg.Log.Level)
	}

	if _, err := loadConfig(path, "", "turbo"); err == nil {
		t.Error("expected error for unknown profile")
	}
	if _, err := loadConfig(path, "loud", ""); err == nil {
		t.Error("expected error for unknown log level")
	}
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Default()
	sc := statusConfig(cfg)
	if sc.DebounceMs != 30 || sc.LongPressMs != 5000 {
		t.Errorf("button timing: got %d/%d", sc.DebounceMs, sc.LongPressMs)
	}
	if sc.SampleIntervalMs != 60000 || sc.HeartbeatMs != 900000 {
		t.Errorf("intervals: got %d/%d", sc.SampleIntervalMs, sc.HeartbeatMs)
	}
	if sc.Transport != "mqtt" || sc.Broker != "tcp://localhost:1883" || sc.HTTPAddr != ":8080" {
		t.Errorf("got %+v", sc)
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := logPublisher{logger: newLogger(&buf, "info", "text")}
	if err := p.PublishSystem(mqtt.SystemEvent{Event: mqtt.EventStartup, BootID: "abc"}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "event=STARTUP") || !strings.Contains(buf.String(), "boot_id=abc") {
		t.Errorf("got %q", buf.String())
	}
}
