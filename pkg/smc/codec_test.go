package smc

import (
	"errors"
	"math"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		typ   DataType
		bytes []byte
		want  float64
	}{
		{"ui8", TypeUI8, []byte{0x50}, 80},
		{"ui16 big endian", TypeUI16, []byte{0x01, 0x02}, 258},
		{"ui32", TypeUI32, []byte{0, 0, 0x01, 0x00}, 256},
		{"si8 negative", TypeSI8, []byte{0xff}, -1},
		{"si16 negative", TypeSI16, []byte{0xff, 0xfe}, -2},
		{"fpe2 fan speed", TypeFPE2, []byte{0x1d, 0x4c}, 1875},
		{"fp88", TypeFP88, []byte{0x28, 0x80}, 40.5},
		{"fp1f", TypeFP1F, []byte{0x40, 0x00}, 0.5},
		{"fpc2", TypeFPC2, []byte{0x00, 0x0a}, 2.5},
		{"sp78 positive", TypeSP78, []byte{0x2a, 0x40}, 42.25},
		{"sp78 negative", TypeSP78, []byte{0xff, 0x00}, -1},
		{"flt little endian", TypeFLT, []byte{0x00, 0x00, 0xc8, 0x42}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.typ, tt.bytes)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Decode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeUnsupported(t *testing.T) {
	for _, typ := range []DataType{"ch8*", "{pwm", "fpzz", "sp77"} {
		_, err := Decode(typ, []byte{1, 2, 3, 4})
		if !errors.Is(err, ErrUnsupportedType) {
			t.Errorf("Decode(%q) error = %v, want ErrUnsupportedType", typ, err)
		}
	}
}

func TestDecodeShortPayload(t *testing.T) {
	if _, err := Decode(TypeUI32, []byte{1}); err == nil {
		t.Fatal("expected error for short ui32 payload")
	}
	if _, err := Decode(TypeFP88, nil); err == nil {
		t.Fatal("expected error for empty fp88 payload")
	}
}

func TestDecodeString(t *testing.T) {
	b := make([]byte, 16)
	copy(b[4:], "Left Fan  ")

	got, err := DecodeString(TypeFDS, b)
	if err != nil {
		t.Fatalf("DecodeString() error = %v", err)
	}
	if got != "Left Fan" {
		t.Errorf("DecodeString() = %q, want %q", got, "Left Fan")
	}

	if _, err := DecodeString(TypeUI8, b); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("DecodeString(ui8) error = %v, want ErrUnsupportedType", err)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		typ       DataType
		value     float64
		tolerance float64
	}{
		{TypeUI8, 80, 0},
		{TypeUI16, 4096, 0},
		{TypeUI32, 123456, 0},
		{TypeSI8, -12, 0},
		{TypeSI16, -300, 0},
		{TypeFLT, 2500, 0},
		{TypeFLT, 41.75, 1e-6},
		{TypeFPE2, 6500, 0},
		{TypeFP88, 37.5, 1.0 / 256},
		{TypeFP4C, 3.3, 1.0 / 4096},
		{TypeSP78, -7.25, 1.0 / 256},
		{TypeSP78, 95.125, 1.0 / 256},
		{TypeSP1E, 0.75, 1.0 / 16384},
		{TypeSPF0, -1234, 0},
	}
	for _, tt := range tests {
		b, err := Encode(tt.value, tt.typ)
		if err != nil {
			t.Fatalf("Encode(%v, %q) error = %v", tt.value, tt.typ, err)
		}
		if size := tt.typ.Size(); len(b) != size {
			t.Errorf("Encode(%q) produced %d bytes, want %d", tt.typ, len(b), size)
		}
		got, err := Decode(tt.typ, b)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", tt.typ, err)
		}
		if math.Abs(got-tt.value) > tt.tolerance {
			t.Errorf("round trip %q: got %v, want %v", tt.typ, got, tt.value)
		}
	}
}

func TestEncodeClampsToRange(t *testing.T) {
	b, err := Encode(300, TypeUI8)
	if err != nil {
		t.Fatal(err)
	}
	if b[0] != 255 {
		t.Errorf("Encode(300, ui8) = %d, want 255", b[0])
	}
}

func TestEncodeUnsupported(t *testing.T) {
	if _, err := Encode(1, TypeFDS); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Encode({fds) error = %v, want ErrUnsupportedType", err)
	}
}
