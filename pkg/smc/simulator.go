package smc

import (
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Simulator is an in-memory controller speaking the same call protocol as
// the real service. Values live in a byteStore; the simulator adds the type
// table, key ordering and index lookups on top.
type Simulator struct {
	mu       sync.Mutex
	store    byteStore
	types    map[string]DataType
	sizes    map[string]int
	order    []string
	rejected map[string]bool
	writes   map[string]int
	open     bool
}

var _ Transport = &Simulator{}

// NewSimulator returns an empty simulated controller.
func NewSimulator() *Simulator {
	return &Simulator{
		store:    newByteStore(),
		types:    map[string]DataType{},
		sizes:    map[string]int{},
		rejected: map[string]bool{},
		writes:   map[string]int{},
	}
}

// NewDefaultSimulator returns a simulator prefilled with a plausible two-fan
// Apple Silicon laptop.
func NewDefaultSimulator() *Simulator {
	s := NewSimulator()
	for _, k := range defaultSimulatedKeys() {
		s.Set(k.Code, k.Type, k.Bytes)
	}
	return s
}

// Set defines (or redefines) a key.
func (s *Simulator) Set(code string, t DataType, b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.types[code]; !ok {
		s.order = append(s.order, code)
	}
	s.types[code] = t
	s.sizes[code] = len(b)
	if err := s.store.Write(code, b); err != nil {
		panic(err)
	}
}

// SetValue encodes v as t and defines the key.
func (s *Simulator) SetValue(code string, t DataType, v float64) {
	b, err := Encode(v, t)
	if err != nil {
		panic(err)
	}
	s.Set(code, t, b)
}

// Delete removes a key.
func (s *Simulator) Delete(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.types, code)
	delete(s.sizes, code)
	for i, c := range s.order {
		if c == code {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// RejectWrites makes every write to code fail.
func (s *Simulator) RejectWrites(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[code] = true
}

// Bytes returns the stored payload of code, or nil.
func (s *Simulator) Bytes(code string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesLocked(code)
}

// Writes returns how many successful writes code has received.
func (s *Simulator) Writes(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[code]
}

// Keys returns the defined key codes, sorted.
func (s *Simulator) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := append([]string(nil), s.order...)
	sort.Strings(keys)
	return keys
}

func (s *Simulator) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Open(); err != nil {
		return pkgerrors.Wrap(ErrChannelUnavailable, err.Error())
	}
	s.open = true
	return nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open = false
	return s.store.Close()
}

func (s *Simulator) Call(in *KeyData) (*KeyData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, ErrChannelUnavailable
	}

	out := &KeyData{Key: in.Key}
	code := FourCCString(in.Key)

	switch in.Data8 {
	case SelectorReadKeyInfo:
		t, ok := s.types[code]
		if !ok {
			return nil, pkgerrors.Errorf("simulator: no key %q", code)
		}
		dt, _ := FourCC(padType(t))
		out.KeyInfo = KeyInfo{DataSize: uint32(s.sizes[code]), DataType: dt}
	case SelectorReadBytes:
		if _, ok := s.types[code]; !ok {
			return nil, pkgerrors.Errorf("simulator: no key %q", code)
		}
		copy(out.Bytes[:in.KeyInfo.DataSize], s.bytesLocked(code))
	case SelectorWriteBytes:
		if _, ok := s.types[code]; !ok || s.rejected[code] {
			return nil, pkgerrors.Errorf("simulator: write to %q refused", code)
		}
		b := append([]byte(nil), in.Bytes[:in.KeyInfo.DataSize]...)
		if err := s.store.Write(code, b); err != nil {
			return nil, err
		}
		s.sizes[code] = len(b)
		s.writes[code]++
		logrus.WithFields(logrus.Fields{
			"key": code,
			"val": b,
		}).Trace("simulator stored value")
	case SelectorReadIndex:
		if int(in.Data32) >= len(s.order) {
			return nil, pkgerrors.Errorf("simulator: index %d out of range", in.Data32)
		}
		out.Key, _ = FourCC(s.order[in.Data32])
	default:
		return nil, pkgerrors.Errorf("simulator: unknown selector %d", in.Data8)
	}

	return out, nil
}

func (s *Simulator) bytesLocked(code string) []byte {
	if _, ok := s.types[code]; !ok {
		return nil
	}
	v, err := s.store.Read(code)
	if err != nil {
		return nil
	}
	b := make([]byte, s.sizes[code])
	copy(b, v)
	return b
}

func padType(t DataType) string {
	s := string(t)
	for len(s) < 4 {
		s += " "
	}
	return s[:4]
}

func defaultSimulatedKeys() []Key {
	enc := func(v float64, t DataType) []byte {
		b, _ := Encode(v, t)
		return b
	}
	fanID := func(name string) []byte {
		b := make([]byte, 16)
		copy(b[4:], name)
		return b
	}

	keys := []Key{
		{Code: ChargeLimitKey, Type: TypeUI8, Bytes: []byte{100}},
		{Code: ChargeInhibitKey, Type: TypeUI32, Bytes: []byte{0, 0, 0, 0}},
		{Code: DischargeKey, Type: TypeUI8, Bytes: []byte{0}},
		{Code: MagSafeLedKey, Type: TypeUI8, Bytes: []byte{0}},
		{Code: BatteryChargeKey, Type: TypeUI8, Bytes: []byte{76}},
		{Code: BatteryTemperatureKey, Type: TypeSP78, Bytes: enc(31.5, TypeSP78)},
		{Code: FanCountKey, Type: TypeUI8, Bytes: []byte{2}},
		{Code: FanForceMaskKey, Type: TypeUI16, Bytes: []byte{0, 0}},
		{Code: "TC0P", Type: TypeSP78, Bytes: enc(45.25, TypeSP78)},
		{Code: "TG0P", Type: TypeSP78, Bytes: enc(41, TypeSP78)},
		{Code: "TC1c", Type: TypeFLT, Bytes: enc(52, TypeFLT)},
		{Code: "Ts0P", Type: TypeSP78, Bytes: enc(33, TypeSP78)},
	}

	names := []string{"Left Fan", "Right Fan"}
	for i, name := range names {
		keys = append(keys,
			Key{Code: FanKey(i, fanIDSuffix), Type: TypeFDS, Bytes: fanID(name)},
			Key{Code: FanKey(i, fanMinSuffix), Type: TypeFLT, Bytes: enc(1200, TypeFLT)},
			Key{Code: FanKey(i, fanMaxSuffix), Type: TypeFLT, Bytes: enc(6500, TypeFLT)},
			Key{Code: FanKey(i, fanActualSuffix), Type: TypeFLT, Bytes: enc(1850, TypeFLT)},
			Key{Code: FanKey(i, fanTargetSuffix), Type: TypeFLT, Bytes: enc(0, TypeFLT)},
			Key{Code: FanKey(i, fanModeSuffix), Type: TypeUI8, Bytes: []byte{0}},
		)
	}

	return append(keys, Key{Code: KeyCountKey, Type: TypeUI32, Bytes: enc(float64(len(keys)+1), TypeUI32)})
}
