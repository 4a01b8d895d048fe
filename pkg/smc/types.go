package smc

import (
	"strconv"
	"strings"
)

// DataType is the four character type tag the controller reports for a key.
type DataType string

// Known data types. Fixed point types are named fpXY (unsigned) or spXY
// (signed), where the hex digit Y is the number of fractional bits.
const (
	TypeUI8  DataType = "ui8 "
	TypeUI16 DataType = "ui16"
	TypeUI32 DataType = "ui32"
	TypeUI64 DataType = "ui64"
	TypeSI8  DataType = "si8 "
	TypeSI16 DataType = "si16"
	TypeSI32 DataType = "si32"
	TypeSI64 DataType = "si64"
	TypeFLT  DataType = "flt "
	TypeFLAG DataType = "flag"
	TypeFDS  DataType = "{fds"
	TypeFP1F DataType = "fp1f"
	TypeFP2E DataType = "fp2e"
	TypeFP4C DataType = "fp4c"
	TypeFP6A DataType = "fp6a"
	TypeFP88 DataType = "fp88"
	TypeFPA4 DataType = "fpa4"
	TypeFPC2 DataType = "fpc2"
	TypeFPE2 DataType = "fpe2"
	TypeSP1E DataType = "sp1e"
	TypeSP3C DataType = "sp3c"
	TypeSP4B DataType = "sp4b"
	TypeSP5A DataType = "sp5a"
	TypeSP69 DataType = "sp69"
	TypeSP78 DataType = "sp78"
	TypeSP87 DataType = "sp87"
	TypeSP96 DataType = "sp96"
	TypeSPA5 DataType = "spa5"
	TypeSPB4 DataType = "spb4"
	TypeSPF0 DataType = "spf0"
	TypeNone   DataType = ""
)

// MaxPayload is the largest payload a single key can carry.
const MaxPayload = 32

// Size returns the natural payload size of the type, or 0 if it is variable
// or unknown.
func (t DataType) Size() int {
	switch t {
	case TypeUI8, TypeSI8, TypeFLAG:
		return 1
	case TypeUI16, TypeSI16:
		return 2
	case TypeUI32, TypeSI32, TypeFLT:
		return 4
	case TypeUI64, TypeSI64:
		return 8
	case TypeFDS:
		return 16
	}
	if _, _, ok := t.fixedPoint(); ok {
		return 2
	}
	return 0
}

// fixedPoint reports whether t is a 16-bit fixed point format, and if so
// whether it is signed and how many fractional bits it carries.
func (t DataType) fixedPoint() (signed bool, frac uint, ok bool) {
	s := string(t)
	if len(s) != 4 {
		return false, 0, false
	}
	switch s[:2] {
	case "fp":
	case "sp":
		signed = true
	default:
		return false, 0, false
	}
	integer, err := strconv.ParseUint(s[2:3], 16, 8)
	if err != nil {
		return false, 0, false
	}
	fractional, err := strconv.ParseUint(s[3:4], 16, 8)
	if err != nil {
		return false, 0, false
	}
	bits := integer + fractional
	if signed {
		bits++
	}
	if bits != 16 {
		return false, 0, false
	}
	return signed, uint(fractional), true
}

func (t DataType) String() string {
	return strings.TrimSpace(string(t))
}

// Key is one typed value read from the controller.
type Key struct {
	Code  string   `json:"code"`
	Type  DataType `json:"type"`
	Bytes []byte   `json:"bytes"`
}

// Value decodes the key according to its type.
func (k Key) Value() (float64, error) {
	return Decode(k.Type, k.Bytes)
}

// IsZero reports whether every payload byte is zero.
func (k Key) IsZero() bool {
	for _, b := range k.Bytes {
		if b != 0 {
			return false
		}
	}
	return true
}
