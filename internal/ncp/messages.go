package ncp

import (
	"encoding/binary"
	"fmt"

	"github.com/sweeney/relay-sensor/internal/zcl"
)

// SetAttrPayload encodes a SET_ATTR payload:
// endpoint | cluster LE | attribute LE | type | value.
func SetAttrPayload(a zcl.Attribute) ([]byte, error) {
	val, err := zcl.EncodeValue(a.Type, a.Value)
	if err != nil {
		return nil, err
	}
	buf := []byte{a.Endpoint}
	buf = binary.LittleEndian.AppendUint16(buf, a.Cluster)
	buf = binary.LittleEndian.AppendUint16(buf, a.ID)
	buf = append(buf, a.Type)
	return append(buf, val...), nil
}

// ParseSetAttr decodes a SET_ATTR payload.
func ParseSetAttr(p []byte) (zcl.Attribute, error) {
	if len(p) < 6 {
		return zcl.Attribute{}, fmt.Errorf("%w: set_attr needs 6 bytes, have %d", ErrBadFrame, len(p))
	}
	a := zcl.Attribute{
		Endpoint: p[0],
		Cluster:  binary.LittleEndian.Uint16(p[1:3]),
		ID:       binary.LittleEndian.Uint16(p[3:5]),
		Type:     p[5],
	}
	v, _, err := zcl.DecodeValue(a.Type, p[6:])
	if err != nil {
		return zcl.Attribute{}, err
	}
	a.Value = v
	return a, nil
}

// ReportPayload encodes a REPORT payload:
// dst addr LE | dst endpoint | src endpoint | cluster LE | ZCL frame.
func ReportPayload(r zcl.Report, seq uint8) ([]byte, error) {
	frame, err := zcl.ReportFrame(seq, r.Record())
	if err != nil {
		return nil, err
	}
	buf := binary.LittleEndian.AppendUint16(nil, r.DstAddr)
	buf = append(buf, r.DstEndpoint, r.Endpoint)
	buf = binary.LittleEndian.AppendUint16(buf, r.Cluster)
	return append(buf, frame...), nil
}

// ParseReport decodes a REPORT payload into its addressing and ZCL frame.
func ParseReport(p []byte) (dstAddr uint16, dstEndpoint, srcEndpoint uint8, cluster uint16, frame []byte, err error) {
	if len(p) < 6 {
		return 0, 0, 0, 0, nil, fmt.Errorf("%w: report needs 6 bytes, have %d", ErrBadFrame, len(p))
	}
	return binary.LittleEndian.Uint16(p[0:2]), p[2], p[3], binary.LittleEndian.Uint16(p[4:6]), p[6:], nil
}

// ZCLInPayload encodes a ZCL_IN payload: endpoint | cluster LE | ZCL frame.
func ZCLInPayload(endpoint uint8, cluster uint16, frame []byte) []byte {
	buf := []byte{endpoint}
	buf = binary.LittleEndian.AppendUint16(buf, cluster)
	return append(buf, frame...)
}

// ParseZCLIn decodes a ZCL_IN payload.
func ParseZCLIn(p []byte) (zcl.Inbound, error) {
	if len(p) < 3 {
		return zcl.Inbound{}, fmt.Errorf("%w: zcl_in needs 3 bytes, have %d", ErrBadFrame, len(p))
	}
	return zcl.DecodeInbound(p[0], binary.LittleEndian.Uint16(p[1:3]), p[3:])
}

// IdentifyFramePayload encodes an IDENTIFY payload: endpoint | seconds LE.
func IdentifyFramePayload(endpoint uint8, seconds uint16) []byte {
	return binary.LittleEndian.AppendUint16([]byte{endpoint}, seconds)
}

// ParseIdentify decodes an IDENTIFY payload into an Identify command.
func ParseIdentify(p []byte) (zcl.Command, error) {
	if len(p) < 3 {
		return zcl.Command{}, fmt.Errorf("%w: identify needs 3 bytes, have %d", ErrBadFrame, len(p))
	}
	return zcl.Command{
		Endpoint: p[0],
		Cluster:  zcl.ClusterIdentify,
		ID:       zcl.CmdIdentify,
		Payload:  append([]byte(nil), p[1:3]...),
	}, nil
}

// ParseJoinStatus decodes a JOIN_STATUS payload.
func ParseJoinStatus(p []byte) (bool, error) {
	if len(p) < 1 {
		return false, fmt.Errorf("%w: empty join_status", ErrBadFrame)
	}
	return p[0] != 0, nil
}
