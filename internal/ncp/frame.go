// Package ncp talks to a Zigbee network co-processor over a serial port.
//
// Frames on the wire:
//
//	0xDE 0xAD | len uint16 LE | type | crc8(len, type) | crc16(payload) LE | payload
//
// len counts the CRC-16 and the payload.
package ncp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrBadFrame is returned for frames that fail validation.
var ErrBadFrame = errors.New("ncp: bad frame")

const (
	sig0 = 0xDE
	sig1 = 0xAD

	headerSize  = 6 // sig(2) + len(2) + type(1) + crc8(1)
	bodyCRCSize = 2

	// MaxPayload bounds a frame payload.
	MaxPayload = 256
)

// Frame types, host to NCP.
const (
	TypeSetAttr   uint8 = 0x01
	TypeReport    uint8 = 0x02
	TypeUserInput uint8 = 0x03
	TypeLeave     uint8 = 0x04
)

// Frame types, NCP to host.
const (
	TypeJoinStatus uint8 = 0x81
	TypeZCLIn      uint8 = 0x82
	TypeIdentify   uint8 = 0x83
)

// Frame is one decoded frame.
type Frame struct {
	Type    uint8
	Payload []byte
}

// Encode builds the wire form of f.
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds %d", ErrBadFrame, len(f.Payload), MaxPayload)
	}
	buf := make([]byte, headerSize+bodyCRCSize+len(f.Payload))
	buf[0], buf[1] = sig0, sig1
	binary.LittleEndian.PutUint16(buf[2:4], uint16(bodyCRCSize+len(f.Payload)))
	buf[4] = f.Type
	buf[5] = crc8(buf[2:5])
	binary.LittleEndian.PutUint16(buf[6:8], crc16(f.Payload))
	copy(buf[8:], f.Payload)
	return buf, nil
}

// ReadFrame reads the next frame from r, skipping bytes until a signature.
// A frame failing its checks returns ErrBadFrame; the caller may keep
// reading.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	if err := syncSignature(r); err != nil {
		return Frame{}, err
	}
	hdr := make([]byte, headerSize-2)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Frame{}, err
	}
	if got := crc8(hdr[0:3]); got != hdr[3] {
		return Frame{}, fmt.Errorf("%w: header crc 0x%02X, want 0x%02X", ErrBadFrame, hdr[3], got)
	}
	n := int(binary.LittleEndian.Uint16(hdr[0:2]))
	if n < bodyCRCSize || n > bodyCRCSize+MaxPayload {
		return Frame{}, fmt.Errorf("%w: length %d", ErrBadFrame, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	payload := body[bodyCRCSize:]
	want := binary.LittleEndian.Uint16(body[0:2])
	if got := crc16(payload); got != want {
		return Frame{}, fmt.Errorf("%w: body crc 0x%04X, want 0x%04X", ErrBadFrame, want, got)
	}
	return Frame{Type: hdr[2], Payload: payload}, nil
}

func syncSignature(r *bufio.Reader) error {
	prev := byte(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prev == sig0 && b == sig1 {
			return nil
		}
		prev = b
	}
}
