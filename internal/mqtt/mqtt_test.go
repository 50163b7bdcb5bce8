package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/relay-sensor/internal/zcl"
)

var ts = time.Date(2026, 2, 10, 8, 30, 0, 0, time.UTC)

func TestNewTopics(t *testing.T) {
	got := NewTopics("zigbee/relay-sensor/")
	want := Topics{
		Report:       "zigbee/relay-sensor/report",
		State:        "zigbee/relay-sensor/state",
		System:       "zigbee/relay-sensor/system",
		Availability: "zigbee/relay-sensor/availability",
		Set:          "zigbee/relay-sensor/set",
		Identify:     "zigbee/relay-sensor/identify",
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{
		Timestamp: ts,
		Event:     EventShutdown,
		Reason:    "SIGTERM",
		BootID:    "b1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"SHUTDOWN","reason":"SIGTERM","boot_id":"b1"}}`
	if string(payload) != want {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatSystemPayloadOmitsEmptyFields(t *testing.T) {
	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: EventFactoryReset})
	want := `{"system":{"timestamp":"2026-02-10T08:30:00Z","event":"FACTORY_RESET"}}`
	if string(payload) != want {
		t.Errorf("got %s, want %s", payload, want)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Date(2026, 2, 10, 10, 30, 0, 0, loc), Event: EventHeartbeat})

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("timestamp: got %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: EventHeartbeat, RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestFormatReportPayload(t *testing.T) {
	r := zcl.ToCoordinator(zcl.Attribute{
		Endpoint: 2,
		Cluster:  zcl.ClusterAnalogInput,
		ID:       zcl.AttrPresentValue,
		Type:     zcl.TypeInt16,
		Value:    int16(370),
	})

	payload, err := FormatReportPayload(r, 1, ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed ReportPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	rep := parsed.Report
	if rep.Timestamp != "2026-02-10T08:30:00Z" {
		t.Errorf("timestamp: got %s", rep.Timestamp)
	}
	if rep.DstAddr != 0 || rep.DstEndpoint != 1 {
		t.Errorf("destination: got 0x%04X/%d, want coordinator 0x0000/1", rep.DstAddr, rep.DstEndpoint)
	}
	if rep.Endpoint != 2 || rep.Cluster != "analog_input" || rep.Attribute != "present_value" || rep.Type != "int16" {
		t.Errorf("attribute: got %+v", rep.AttributeJSON)
	}
	if rep.ClusterID != zcl.ClusterAnalogInput {
		t.Errorf("cluster id: got 0x%04X", rep.ClusterID)
	}
	if v, ok := rep.Value.(float64); !ok || v != 370 {
		t.Errorf("value: got %v", rep.Value)
	}
	if rep.Frame != "18010a5500297201" {
		t.Errorf("frame: got %s, want 18010a5500297201", rep.Frame)
	}
}

func TestFormatReportPayloadBadValue(t *testing.T) {
	r := zcl.ToCoordinator(zcl.Attribute{Cluster: zcl.ClusterOnOff, Type: zcl.TypeBool, Value: "yes"})
	if _, err := FormatReportPayload(r, 1, ts); err == nil {
		t.Error("expected error for a value the type cannot encode")
	}
}

func TestFormatStatePayload(t *testing.T) {
	attrs := []zcl.Attribute{
		{Endpoint: 1, Cluster: zcl.ClusterOnOff, ID: zcl.AttrOnOff, Type: zcl.TypeBool, Value: true},
		{Endpoint: 2, Cluster: zcl.ClusterAnalogInput, ID: zcl.AttrPresentValue, Type: zcl.TypeInt16, Value: int16(370)},
	}
	payload, err := FormatStatePayload(attrs, ts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"state":{"timestamp":"2026-02-10T08:30:00Z","attributes":[` +
		`{"endpoint":1,"cluster":"on_off","attribute":"on_off","type":"bool","value":true},` +
		`{"endpoint":2,"cluster":"analog_input","attribute":"present_value","type":"int16","value":370}]}}`
	if string(payload) != want {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatStatePayloadEmpty(t *testing.T) {
	payload, _ := FormatStatePayload(nil, ts)
	want := `{"state":{"timestamp":"2026-02-10T08:30:00Z","attributes":[]}}`
	if string(payload) != want {
		t.Errorf("got %s, want %s", payload, want)
	}
}

func TestParseSetCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    uint8
	}{
		{`{"endpoint":1,"state":"ON"}`, zcl.CmdOn},
		{`{"endpoint":1,"state":"off"}`, zcl.CmdOff},
		{`{"endpoint":1,"state":"TOGGLE"}`, zcl.CmdToggle},
	}
	for _, tt := range tests {
		c, err := ParseSetCommand([]byte(tt.payload))
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.payload, err)
			continue
		}
		if c.Endpoint != 1 || c.Cluster != zcl.ClusterOnOff || c.ID != tt.want {
			t.Errorf("%s: got %+v", tt.payload, c)
		}
	}
}

func TestParseSetCommandErrors(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`{"state":"ON"}`,
		`{"endpoint":1,"state":"DIM"}`,
	} {
		if _, err := ParseSetCommand([]byte(payload)); !errors.Is(err, ErrBadCommand) {
			t.Errorf("%s: got %v, want ErrBadCommand", payload, err)
		}
	}
}

func TestParseIdentifyCommand(t *testing.T) {
	c, err := ParseIdentifyCommand([]byte(`{"endpoint":1,"seconds":5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Cluster != zcl.ClusterIdentify || c.ID != zcl.CmdIdentify || c.Endpoint != 1 {
		t.Errorf("got %+v", c)
	}
	secs, err := zcl.IdentifySeconds(c)
	if err != nil || secs != 5 {
		t.Errorf("seconds: got %d, %v", secs, err)
	}

	if _, err := ParseIdentifyCommand([]byte(`{"seconds":5}`)); !errors.Is(err, ErrBadCommand) {
		t.Errorf("missing endpoint: got %v", err)
	}
}
