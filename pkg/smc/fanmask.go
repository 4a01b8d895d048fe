package smc

import "encoding/binary"

// FanMask is the 16-bit force flag set stored big-endian in "FS! ".
// Bit i set means fan i ignores the controller's own curve.
type FanMask uint16

// FanMaskFromBytes decodes the first two bytes of b.
func FanMaskFromBytes(b []byte) FanMask {
	return FanMask(binary.BigEndian.Uint16(b))
}

// Bytes encodes the mask for writing.
func (m FanMask) Bytes() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(m))
	return b
}

// Test reports whether fan index is forced.
func (m FanMask) Test(index int) bool {
	if index < 0 || index > 15 {
		return false
	}
	return m&(1<<uint(index)) != 0
}

// Set returns m with fan index forced.
func (m FanMask) Set(index int) FanMask {
	if index < 0 || index > 15 {
		return m
	}
	return m | 1<<uint(index)
}

// Clear returns m with fan index released.
func (m FanMask) Clear(index int) FanMask {
	if index < 0 || index > 15 {
		return m
	}
	return m &^ (1 << uint(index))
}

// With sets or clears index depending on forced.
func (m FanMask) With(index int, forced bool) FanMask {
	if forced {
		return m.Set(index)
	}
	return m.Clear(index)
}
