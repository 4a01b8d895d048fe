package smc

import (
	"encoding/binary"
	"math"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Decode interprets raw key bytes according to their type tag.
//
// Integers and fixed point values are big-endian, "flt " is a little-endian
// IEEE-754 float32. Tags the codec does not understand yield
// ErrUnsupportedType.
func Decode(t DataType, b []byte) (float64, error) {
	if len(b) > MaxPayload {
		return 0, ErrPayloadTooLarge
	}

	if signed, frac, ok := t.fixedPoint(); ok {
		if len(b) < 2 {
			return 0, shortPayload(t, b, 2)
		}
		raw := binary.BigEndian.Uint16(b)
		scale := float64(uint32(1) << frac)
		if signed {
			return float64(int16(raw)) / scale, nil
		}
		return float64(raw) / scale, nil
	}

	if size := t.Size(); size > 0 && len(b) < size {
		return 0, shortPayload(t, b, size)
	}

	switch t {
	case TypeUI8, TypeFLAG:
		return float64(b[0]), nil
	case TypeSI8:
		return float64(int8(b[0])), nil
	case TypeUI16:
		return float64(binary.BigEndian.Uint16(b)), nil
	case TypeSI16:
		return float64(int16(binary.BigEndian.Uint16(b))), nil
	case TypeUI32:
		return float64(binary.BigEndian.Uint32(b)), nil
	case TypeSI32:
		return float64(int32(binary.BigEndian.Uint32(b))), nil
	case TypeUI64:
		return float64(binary.BigEndian.Uint64(b)), nil
	case TypeSI64:
		return float64(int64(binary.BigEndian.Uint64(b))), nil
	case TypeFLT:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	}

	return 0, pkgerrors.Wrapf(ErrUnsupportedType, "decode %q", string(t))
}

// DecodeString extracts the human readable part of a "{fds" payload.
func DecodeString(t DataType, b []byte) (string, error) {
	if t != TypeFDS {
		return "", pkgerrors.Wrapf(ErrUnsupportedType, "%q is not a string type", string(t))
	}
	if len(b) < 16 {
		return "", shortPayload(t, b, 16)
	}

	s := strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, string(b[4:16]))

	return strings.TrimSpace(s), nil
}

// Encode converts v into the wire representation of t. Only the formats the
// daemon writes are supported: the fixed point family, small integers and
// "flt ".
func Encode(v float64, t DataType) ([]byte, error) {
	if signed, frac, ok := t.fixedPoint(); ok {
		scaled := math.Round(v * float64(uint32(1)<<frac))
		b := make([]byte, 2)
		if signed {
			binary.BigEndian.PutUint16(b, uint16(int16(clamp(scaled, math.MinInt16, math.MaxInt16))))
		} else {
			binary.BigEndian.PutUint16(b, uint16(clamp(scaled, 0, math.MaxUint16)))
		}
		return b, nil
	}

	switch t {
	case TypeUI8, TypeFLAG:
		return []byte{uint8(clamp(math.Round(v), 0, math.MaxUint8))}, nil
	case TypeSI8:
		return []byte{byte(int8(clamp(math.Round(v), math.MinInt8, math.MaxInt8)))}, nil
	case TypeUI16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(clamp(math.Round(v), 0, math.MaxUint16)))
		return b, nil
	case TypeSI16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(int16(clamp(math.Round(v), math.MinInt16, math.MaxInt16))))
		return b, nil
	case TypeUI32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(clamp(math.Round(v), 0, math.MaxUint32)))
		return b, nil
	case TypeFLT:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		return b, nil
	}

	return nil, pkgerrors.Wrapf(ErrUnsupportedType, "encode %q", string(t))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func shortPayload(t DataType, b []byte, want int) error {
	return pkgerrors.Errorf("%q needs %d bytes, got %d", string(t), want, len(b))
}
