package zcl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortFrame is returned when a frame ends before a complete field.
var ErrShortFrame = errors.New("zcl: short frame")

// TypeSize returns the encoded size of a supported type, or -1.
func TypeSize(typeID uint8) int {
	switch typeID {
	case TypeNoData:
		return 0
	case TypeBool, TypeUint8:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	}
	return -1
}

// EncodeValue encodes v as typeID, little-endian.
func EncodeValue(typeID uint8, v any) ([]byte, error) {
	switch typeID {
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("zcl: bool wants bool, got %T", v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case TypeUint8:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < 0 || n > math.MaxUint8 {
			return nil, fmt.Errorf("zcl: uint8 overflow: %d", n)
		}
		return []byte{uint8(n)}, nil
	case TypeUint16:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < 0 || n > math.MaxUint16 {
			return nil, fmt.Errorf("zcl: uint16 overflow: %d", n)
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(n))
		return buf, nil
	case TypeInt16:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < math.MinInt16 || n > math.MaxInt16 {
			return nil, fmt.Errorf("zcl: int16 overflow: %d", n)
		}
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(int16(n)))
		return buf, nil
	}
	return nil, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
}

// DecodeValue decodes a value of typeID from the start of data and returns
// it with the number of bytes consumed.
func DecodeValue(typeID uint8, data []byte) (any, int, error) {
	size := TypeSize(typeID)
	if size < 0 {
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	}
	if len(data) < size {
		return nil, 0, fmt.Errorf("%w: type 0x%02X needs %d bytes, have %d", ErrShortFrame, typeID, size, len(data))
	}
	switch typeID {
	case TypeNoData:
		return nil, 0, nil
	case TypeBool:
		return data[0] != 0, 1, nil
	case TypeUint8:
		return data[0], 1, nil
	case TypeUint16:
		return binary.LittleEndian.Uint16(data), 2, nil
	default: // TypeInt16
		return int16(binary.LittleEndian.Uint16(data)), 2, nil
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("zcl: cannot encode %T as integer", v)
}
