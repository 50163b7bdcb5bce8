package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	Relay         string       `json:"relay"`
	Button        string       `json:"button"`
	Joined        bool         `json:"joined"`
	Voltage       *VoltageJSON `json:"voltage,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Link          LinkStatus   `json:"link"`
	Counts        CountsJSON   `json:"event_counts"`
	Events        []EventJSON  `json:"recent_events,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// VoltageJSON is the last good voltage reading.
type VoltageJSON struct {
	Millivolts     int32  `json:"millivolts"`
	BatteryPercent uint8  `json:"battery_percent"`
	SampledAt      string `json:"sampled_at"`
	Sampling       bool   `json:"sampling"`
}

// LinkStatus reports network link state.
type LinkStatus struct {
	Transport string `json:"transport"`
	Connected bool   `json:"connected"`
	Broker    string `json:"broker,omitempty"`
	Serial    string `json:"serial_port,omitempty"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	ShortPress        int `json:"short_press"`
	LongPress         int `json:"long_press"`
	RelayChanges      int `json:"relay_changes"`
	ReportsSent       int `json:"reports_sent"`
	ReportsSuppressed int `json:"reports_suppressed"`
	ReportsFailed     int `json:"reports_failed"`
	SampleFailures    int `json:"sample_failures"`
}

// EventJSON is one recent activity entry.
type EventJSON struct {
	Time   string `json:"time"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Profile          string `json:"profile"`
	DebounceMs       int64  `json:"debounce_ms"`
	LongPressMs      int64  `json:"long_press_ms"`
	SampleIntervalMs int64  `json:"sample_interval_ms"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	HTTPAddr         string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	relay := "OFF"
	if snap.Relay {
		relay = "ON"
	}
	button := string(snap.Button)
	if button == "" {
		button = "UNKNOWN"
	}

	inner := StatusInner{
		BootID:        snap.BootID,
		Relay:         relay,
		Button:        button,
		Joined:        snap.Joined,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Link: LinkStatus{
			Transport: snap.Config.Transport,
			Connected: snap.LinkConnected,
			Broker:    snap.Config.Broker,
			Serial:    snap.Config.SerialPort,
		},
		Counts: CountsJSON{
			ShortPress:        snap.Counts.ShortPress,
			LongPress:         snap.Counts.LongPress,
			RelayChanges:      snap.Counts.RelayChanges,
			ReportsSent:       snap.Counts.ReportsSent,
			ReportsSuppressed: snap.Counts.ReportsSuppressed,
			ReportsFailed:     snap.Counts.ReportsFailed,
			SampleFailures:    snap.Counts.SampleFailures,
		},
		Config: ConfigJSON{
			Profile:          snap.Config.Profile,
			DebounceMs:       snap.Config.DebounceMs,
			LongPressMs:      snap.Config.LongPressMs,
			SampleIntervalMs: snap.Config.SampleIntervalMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
	if snap.HasVoltage {
		inner.Voltage = &VoltageJSON{
			Millivolts:     snap.VoltageMV,
			BatteryPercent: snap.BatteryPercent,
			SampledAt:      snap.SampledAt.UTC().Format(time.RFC3339),
			Sampling:       snap.SamplingOn,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

func buildEvents(snap Snapshot, inner *StatusInner) {
	for _, e := range snap.Events {
		inner.Events = append(inner.Events, EventJSON{
			Time:   e.Time.UTC().Format(time.RFC3339),
			Kind:   e.Kind,
			Detail: e.Detail,
		})
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)
	buildEvents(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Recent events are left out to keep the payload small.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
