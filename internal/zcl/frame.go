package zcl

import (
	"encoding/binary"
	"fmt"
)

// Attribute is one attribute value hosted on a local endpoint.
type Attribute struct {
	Endpoint uint8
	Cluster  uint16
	ID       uint16
	Type     uint8
	Value    any
}

// Record returns the attribute as a frame record.
func (a Attribute) Record() Record {
	return Record{ID: a.ID, Type: a.Type, Value: a.Value}
}

// Report is an unsolicited attribute report sent to a remote endpoint.
type Report struct {
	Attribute
	DstAddr     uint16
	DstEndpoint uint8
}

// ToCoordinator addresses a report for a to the coordinator.
func ToCoordinator(a Attribute) Report {
	return Report{Attribute: a, DstAddr: CoordinatorAddr, DstEndpoint: CoordinatorEndpoint}
}

// Command is an inbound cluster-specific command.
type Command struct {
	Endpoint uint8
	Cluster  uint16
	ID       uint8
	Payload  []byte
}

// Record is an attribute ID, type and value as carried in Write Attributes
// and Report Attributes frames.
type Record struct {
	ID    uint16
	Type  uint8
	Value any
}

// Header is the ZCL frame header.
type Header struct {
	FrameControl uint8
	Manufacturer uint16
	Seq          uint8
	Command      uint8
}

// ClusterSpecific reports whether the frame carries a cluster command.
func (h Header) ClusterSpecific() bool {
	return h.FrameControl&frameTypeMask == FrameTypeCluster
}

// ParseFrame splits a ZCL frame into its header and payload.
func ParseFrame(data []byte) (Header, []byte, error) {
	var h Header
	if len(data) < 3 {
		return h, nil, fmt.Errorf("%w: header needs 3 bytes, have %d", ErrShortFrame, len(data))
	}
	h.FrameControl = data[0]
	pos := 1
	if h.FrameControl&FrameManufacturer != 0 {
		if len(data) < 5 {
			return h, nil, fmt.Errorf("%w: manufacturer header needs 5 bytes, have %d", ErrShortFrame, len(data))
		}
		h.Manufacturer = binary.LittleEndian.Uint16(data[1:3])
		pos = 3
	}
	h.Seq = data[pos]
	h.Command = data[pos+1]
	return h, data[pos+2:], nil
}

// EncodeRecords appends attribute records (ID, type, value) to buf.
func EncodeRecords(buf []byte, records ...Record) ([]byte, error) {
	for _, r := range records {
		val, err := EncodeValue(r.Type, r.Value)
		if err != nil {
			return nil, fmt.Errorf("zcl: attribute 0x%04X: %w", r.ID, err)
		}
		buf = binary.LittleEndian.AppendUint16(buf, r.ID)
		buf = append(buf, r.Type)
		buf = append(buf, val...)
	}
	return buf, nil
}

// ParseRecords decodes a sequence of attribute records.
func ParseRecords(payload []byte) ([]Record, error) {
	var out []Record
	for len(payload) > 0 {
		if len(payload) < 3 {
			return out, fmt.Errorf("%w: record header needs 3 bytes, have %d", ErrShortFrame, len(payload))
		}
		r := Record{
			ID:   binary.LittleEndian.Uint16(payload[0:2]),
			Type: payload[2],
		}
		v, n, err := DecodeValue(r.Type, payload[3:])
		if err != nil {
			return out, fmt.Errorf("zcl: attribute 0x%04X: %w", r.ID, err)
		}
		r.Value = v
		out = append(out, r)
		payload = payload[3+n:]
	}
	return out, nil
}

// ReportFrame builds a server-to-client Report Attributes frame.
func ReportFrame(seq uint8, records ...Record) ([]byte, error) {
	buf := []byte{FrameTypeGlobal | FrameServerToClient | FrameDisableDefResp, seq, CmdReportAttributes}
	return EncodeRecords(buf, records...)
}

// WriteAttributesFrame builds a client-to-server Write Attributes frame.
func WriteAttributesFrame(seq uint8, records ...Record) ([]byte, error) {
	buf := []byte{FrameTypeGlobal | FrameDisableDefResp, seq, CmdWriteAttributes}
	return EncodeRecords(buf, records...)
}

// ClusterCommandFrame builds a client-to-server cluster command frame.
func ClusterCommandFrame(seq, cmd uint8, payload []byte) []byte {
	buf := []byte{FrameTypeCluster | FrameDisableDefResp, seq, cmd}
	return append(buf, payload...)
}

// Inbound is a decoded frame addressed to a local endpoint: either
// attribute writes or one cluster command.
type Inbound struct {
	Writes  []Attribute
	Command *Command
}

// DecodeInbound interprets a frame received on endpoint for cluster.
// Global commands other than Write Attributes are rejected.
func DecodeInbound(endpoint uint8, cluster uint16, frame []byte) (Inbound, error) {
	h, payload, err := ParseFrame(frame)
	if err != nil {
		return Inbound{}, err
	}
	if h.ClusterSpecific() {
		return Inbound{Command: &Command{
			Endpoint: endpoint,
			Cluster:  cluster,
			ID:       h.Command,
			Payload:  payload,
		}}, nil
	}
	if h.Command != CmdWriteAttributes {
		return Inbound{}, fmt.Errorf("zcl: unsupported global command 0x%02X", h.Command)
	}
	records, err := ParseRecords(payload)
	if err != nil {
		return Inbound{}, err
	}
	in := Inbound{}
	for _, r := range records {
		in.Writes = append(in.Writes, Attribute{
			Endpoint: endpoint,
			Cluster:  cluster,
			ID:       r.ID,
			Type:     r.Type,
			Value:    r.Value,
		})
	}
	return in, nil
}

// IdentifySeconds returns the identify time carried by an Identify command.
func IdentifySeconds(c Command) (uint16, error) {
	if len(c.Payload) < 2 {
		return 0, fmt.Errorf("%w: identify payload needs 2 bytes, have %d", ErrShortFrame, len(c.Payload))
	}
	return binary.LittleEndian.Uint16(c.Payload), nil
}

// IdentifyPayload encodes an identify time for an Identify command.
func IdentifyPayload(seconds uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, seconds)
}
