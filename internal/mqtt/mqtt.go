// Package mqtt bridges the device to the network over an MQTT broker.
// A bridge on the coordinator side translates between these topics and
// the mesh.
package mqtt

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/relay-sensor/internal/zcl"
)

// ErrBadCommand is returned for command payloads that cannot be applied.
var ErrBadCommand = errors.New("mqtt: bad command")

// Topics are the topics used under one base topic.
type Topics struct {
	Report       string
	State        string
	System       string
	Availability string
	Set          string
	Identify     string
}

// NewTopics derives the topic set from base.
func NewTopics(base string) Topics {
	base = strings.TrimSuffix(base, "/")
	return Topics{
		Report:       base + "/report",
		State:        base + "/state",
		System:       base + "/system",
		Availability: base + "/availability",
		Set:          base + "/set",
		Identify:     base + "/identify",
	}
}

// Availability payloads.
const (
	Online  = "online"
	Offline = "offline"
)

// System event names.
const (
	EventStartup      = "STARTUP"
	EventShutdown     = "SHUTDOWN"
	EventHeartbeat    = "HEARTBEAT"
	EventFactoryReset = "FACTORY_RESET"
)

// SystemEvent represents a lifecycle event (startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string // e.g. "SIGTERM" (shutdown only)
	BootID     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// SystemPayload is the payload for events that carry no status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	BootID    string `json:"boot_id,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			BootID:    event.BootID,
		},
	})
}

// AttributeJSON is one attribute value as published on the state and
// report topics.
type AttributeJSON struct {
	Endpoint  uint8  `json:"endpoint"`
	Cluster   string `json:"cluster"`
	Attribute string `json:"attribute"`
	Type      string `json:"type"`
	Value     any    `json:"value"`
}

func attributeJSON(a zcl.Attribute) AttributeJSON {
	return AttributeJSON{
		Endpoint:  a.Endpoint,
		Cluster:   zcl.ClusterName(a.Cluster),
		Attribute: zcl.AttributeName(a.Cluster, a.ID),
		Type:      zcl.TypeName(a.Type),
		Value:     a.Value,
	}
}

// ReportPayload is published on the report topic.
type ReportPayload struct {
	Report ReportInner `json:"report"`
}

// ReportInner contains one attribute report. Frame is the hex-encoded ZCL
// Report Attributes frame a mesh bridge forwards unchanged.
type ReportInner struct {
	Timestamp   string `json:"timestamp"`
	DstAddr     uint16 `json:"dst_addr"`
	DstEndpoint uint8  `json:"dst_endpoint"`
	ClusterID   uint16 `json:"cluster_id"`
	AttributeJSON
	Frame string `json:"frame"`
}

// FormatReportPayload creates the JSON payload for a report. seq is the ZCL
// transaction sequence number.
func FormatReportPayload(r zcl.Report, seq uint8, now time.Time) ([]byte, error) {
	frame, err := zcl.ReportFrame(seq, r.Record())
	if err != nil {
		return nil, fmt.Errorf("build report frame: %w", err)
	}
	return json.Marshal(ReportPayload{
		Report: ReportInner{
			Timestamp:     now.UTC().Format(time.RFC3339),
			DstAddr:       r.DstAddr,
			DstEndpoint:   r.DstEndpoint,
			ClusterID:     r.Cluster,
			AttributeJSON: attributeJSON(r.Attribute),
			Frame:         hex.EncodeToString(frame),
		},
	})
}

// StatePayload is the retained attribute table.
type StatePayload struct {
	State StateInner `json:"state"`
}

// StateInner lists every local attribute.
type StateInner struct {
	Timestamp  string          `json:"timestamp"`
	Attributes []AttributeJSON `json:"attributes"`
}

// FormatStatePayload creates the JSON payload for the state topic.
func FormatStatePayload(attrs []zcl.Attribute, now time.Time) ([]byte, error) {
	inner := StateInner{
		Timestamp:  now.UTC().Format(time.RFC3339),
		Attributes: make([]AttributeJSON, 0, len(attrs)),
	}
	for _, a := range attrs {
		inner.Attributes = append(inner.Attributes, attributeJSON(a))
	}
	return json.Marshal(StatePayload{State: inner})
}

// SetCommand is received on the set topic.
type SetCommand struct {
	Endpoint uint8  `json:"endpoint"`
	State    string `json:"state"`
}

// IdentifyCommand is received on the identify topic.
type IdentifyCommand struct {
	Endpoint uint8  `json:"endpoint"`
	Seconds  uint16 `json:"seconds"`
}

// ParseSetCommand converts a set payload into an On/Off cluster command.
func ParseSetCommand(data []byte) (zcl.Command, error) {
	var sc SetCommand
	if err := json.Unmarshal(data, &sc); err != nil {
		return zcl.Command{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	if sc.Endpoint == 0 {
		return zcl.Command{}, fmt.Errorf("%w: missing endpoint", ErrBadCommand)
	}
	c := zcl.Command{Endpoint: sc.Endpoint, Cluster: zcl.ClusterOnOff}
	switch strings.ToUpper(sc.State) {
	case "ON":
		c.ID = zcl.CmdOn
	case "OFF":
		c.ID = zcl.CmdOff
	case "TOGGLE":
		c.ID = zcl.CmdToggle
	default:
		return zcl.Command{}, fmt.Errorf("%w: state %q", ErrBadCommand, sc.State)
	}
	return c, nil
}

// ParseIdentifyCommand converts an identify payload into an Identify
// cluster command.
func ParseIdentifyCommand(data []byte) (zcl.Command, error) {
	var ic IdentifyCommand
	if err := json.Unmarshal(data, &ic); err != nil {
		return zcl.Command{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	if ic.Endpoint == 0 {
		return zcl.Command{}, fmt.Errorf("%w: missing endpoint", ErrBadCommand)
	}
	return zcl.Command{
		Endpoint: ic.Endpoint,
		Cluster:  zcl.ClusterIdentify,
		ID:       zcl.CmdIdentify,
		Payload:  zcl.IdentifyPayload(ic.Seconds),
	}, nil
}
