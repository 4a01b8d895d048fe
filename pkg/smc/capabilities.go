package smc

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Capabilities is the result of the one-time startup probe. It is immutable
// once built; consult it instead of re-probing the controller.
type Capabilities struct {
	keys         map[string]struct{}
	chargeKey    string
	chargeMirror bool
	limitKey     bool
	dischargeKey string
	ledKey       string
	fanCount     int
}

// CapabilitySummary is the wire form of Capabilities.
type CapabilitySummary struct {
	ChargeControlKey    string `json:"chargeControlKey,omitempty"`
	ChargeLimitKey      string `json:"chargeLimitKey,omitempty"`
	DischargeControlKey string `json:"dischargeControlKey,omitempty"`
	MagSafeLEDKey       string `json:"magSafeLEDKey,omitempty"`
	FanCount            int    `json:"fanCount"`
	KeyCount            int    `json:"keyCount"`
}

// Probe discovers which optional keys this model carries. Enumeration is
// tried first; if the controller refuses it, each candidate key is looked
// up directly.
func Probe(c *Channel) Capabilities {
	var has func(string) bool

	keys, err := c.EnumerateKeys()
	set := make(map[string]struct{}, len(keys))
	if err == nil && len(keys) > 0 {
		for _, k := range keys {
			set[k] = struct{}{}
		}
		has = func(code string) bool {
			_, ok := set[code]
			return ok
		}
	} else {
		logrus.WithError(err).Warn("key enumeration failed, probing candidate keys one by one")
		has = func(code string) bool {
			if !c.HasKey(code) {
				return false
			}
			set[code] = struct{}{}
			return true
		}
	}

	caps := Capabilities{keys: set}
	caps.chargeKey = firstPresent(has, ChargeInhibitKey, ChargeInhibitLegacyKey, ChargingKey)
	caps.chargeMirror = caps.chargeKey == ChargingKey && has(ChargingMirrorKey)
	caps.limitKey = has(ChargeLimitKey)
	caps.dischargeKey = firstPresent(has, DischargeKey, DischargeLegacyKey)
	caps.ledKey = firstPresent(has, MagSafeLedKey)

	if has(FanCountKey) {
		if n, err := c.ReadValue(FanCountKey); err == nil && n > 0 {
			caps.fanCount = min(int(n), MaxFans)
		}
	}

	logrus.WithFields(logrus.Fields{
		"chargeControlKey":    orNotFound(caps.chargeKey),
		"dischargeControlKey": orNotFound(caps.dischargeKey),
		"magSafeLEDKey":       orNotFound(caps.ledKey),
		"fanCount":            caps.fanCount,
		"keyCount":            len(set),
	}).Info("capability probe complete")

	return caps
}

// NewCapabilities builds a capability set from a known key list. Used by
// tests and by callers that already enumerated the controller.
func NewCapabilities(keys []string, fanCount int) Capabilities {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	has := func(code string) bool {
		_, ok := set[code]
		return ok
	}
	return Capabilities{
		keys:         set,
		chargeKey:    firstPresent(has, ChargeInhibitKey, ChargeInhibitLegacyKey, ChargingKey),
		chargeMirror: has(ChargingKey) && has(ChargingMirrorKey) && !has(ChargeInhibitKey) && !has(ChargeInhibitLegacyKey),
		limitKey:     has(ChargeLimitKey),
		dischargeKey: firstPresent(has, DischargeKey, DischargeLegacyKey),
		ledKey:       firstPresent(has, MagSafeLedKey),
		fanCount:     fanCount,
	}
}

// ChargeControlKey returns the key used to enable or inhibit charging.
func (c Capabilities) ChargeControlKey() (string, bool) {
	return c.chargeKey, c.chargeKey != ""
}

// ChargeLimitKey returns the hardware charge limit key.
func (c Capabilities) ChargeLimitKey() (string, bool) {
	if !c.limitKey {
		return "", false
	}
	return ChargeLimitKey, true
}

// ChargeMirrorKey reports whether CH0C must be written alongside CH0B.
func (c Capabilities) ChargeMirrorKey() (string, bool) {
	if !c.chargeMirror {
		return "", false
	}
	return ChargingMirrorKey, true
}

// DischargeControlKey returns the key used to force discharge.
func (c Capabilities) DischargeControlKey() (string, bool) {
	return c.dischargeKey, c.dischargeKey != ""
}

// MagSafeLEDKey returns the indicator LED key.
func (c Capabilities) MagSafeLEDKey() (string, bool) {
	return c.ledKey, c.ledKey != ""
}

// FanCount returns the number of fans found at probe time.
func (c Capabilities) FanCount() int {
	return c.fanCount
}

// Has reports whether the probe saw code.
func (c Capabilities) Has(code string) bool {
	_, ok := c.keys[code]
	return ok
}

// Keys returns a sorted copy of every probed key.
func (c Capabilities) Keys() []string {
	keys := make([]string, 0, len(c.keys))
	for k := range c.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Summary returns the wire form.
func (c Capabilities) Summary() CapabilitySummary {
	return CapabilitySummary{
		ChargeControlKey:    c.chargeKey,
		ChargeLimitKey:      orEmpty(c.limitKey, ChargeLimitKey),
		DischargeControlKey: c.dischargeKey,
		MagSafeLEDKey:       c.ledKey,
		FanCount:            c.fanCount,
		KeyCount:            len(c.keys),
	}
}

func firstPresent(has func(string) bool, candidates ...string) string {
	for _, k := range candidates {
		if has(k) {
			return k
		}
	}
	return ""
}

func orEmpty(ok bool, s string) string {
	if !ok {
		return ""
	}
	return s
}

func orNotFound(s string) string {
	if s == "" {
		return "not found"
	}
	return s
}
