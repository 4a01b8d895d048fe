package smc

import (
	"encoding/binary"

	pkgerrors "github.com/pkg/errors"
)

// Selector is the sub-command carried in KeyData.Data8.
type Selector uint8

// Controller call selectors.
const (
	SelectorKernelIndex Selector = 2
	SelectorReadBytes   Selector = 5
	SelectorWriteBytes  Selector = 6
	SelectorReadIndex   Selector = 8
	SelectorReadKeyInfo Selector = 9
)

// KeyInfo is the metadata half of a two-phase read.
type KeyInfo struct {
	DataSize       uint32
	DataType       uint32
	DataAttributes uint8
}

// KeyData mirrors the structure exchanged with the controller service on
// every call.
type KeyData struct {
	Key     uint32
	KeyInfo KeyInfo
	Result  uint8
	Status  uint8
	Data8   Selector
	Data32  uint32
	Bytes   [MaxPayload]byte
}

// Transport performs one round trip with the controller.
type Transport interface {
	Open() error
	Close() error
	Call(in *KeyData) (*KeyData, error)
}

// FourCC packs a four character code big-endian, the way the controller
// addresses keys and types.
func FourCC(code string) (uint32, error) {
	if len(code) != 4 {
		return 0, pkgerrors.Errorf("key %q must be exactly 4 characters", code)
	}
	return binary.BigEndian.Uint32([]byte(code)), nil
}

// FourCCString is the inverse of FourCC.
func FourCCString(v uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return string(b)
}
