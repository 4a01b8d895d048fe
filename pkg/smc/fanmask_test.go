package smc

import "testing"

func TestFanMask(t *testing.T) {
	var m FanMask

	m = m.Set(0).Set(3)
	if !m.Test(0) || !m.Test(3) || m.Test(1) {
		t.Fatalf("unexpected mask 0x%04x", uint16(m))
	}
	if m.Set(3) != m {
		t.Error("setting an already set bit must not change the mask")
	}

	m = m.Clear(0)
	if m.Test(0) {
		t.Error("bit 0 still set after Clear")
	}
	if m != FanMask(1<<3) {
		t.Errorf("mask = 0x%04x, want 0x0008", uint16(m))
	}

	if m.Set(16) != m || m.Clear(-1) != m {
		t.Error("out of range indexes must be ignored")
	}
}

func TestFanMaskBytes(t *testing.T) {
	m := FanMaskFromBytes([]byte{0x01, 0x02})
	if m != 0x0102 {
		t.Fatalf("FanMaskFromBytes = 0x%04x, want 0x0102", uint16(m))
	}
	b := m.With(0, false).Bytes()
	if b[0] != 0x01 || b[1] != 0x02 {
		t.Errorf("Bytes() = %v", b)
	}
	b = m.With(0, true).Bytes()
	if b[1] != 0x03 {
		t.Errorf("Bytes() = %v, want low byte 0x03", b)
	}
}
