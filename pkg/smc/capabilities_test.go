package smc

import "testing"

func TestProbe(t *testing.T) {
	ch := newTestChannel(t, NewDefaultSimulator())

	caps := Probe(ch)

	if k, ok := caps.ChargeControlKey(); !ok || k != ChargeInhibitKey {
		t.Errorf("ChargeControlKey() = %q, %v", k, ok)
	}
	if k, ok := caps.DischargeControlKey(); !ok || k != DischargeKey {
		t.Errorf("DischargeControlKey() = %q, %v", k, ok)
	}
	if _, ok := caps.MagSafeLEDKey(); !ok {
		t.Error("expected MagSafe LED key")
	}
	if caps.FanCount() != 2 {
		t.Errorf("FanCount() = %d, want 2", caps.FanCount())
	}
	if !caps.Has("TC0P") {
		t.Error("expected TC0P in probed keys")
	}
}

func TestProbeFallsBackWithoutEnumeration(t *testing.T) {
	sim := NewSimulator()
	sim.Set(ChargingKey, TypeUI8, []byte{0})
	sim.Set(ChargingMirrorKey, TypeUI8, []byte{0})
	sim.Set(DischargeLegacyKey, TypeUI8, []byte{0})
	ch := newTestChannel(t, sim)

	caps := Probe(ch)

	if k, _ := caps.ChargeControlKey(); k != ChargingKey {
		t.Errorf("ChargeControlKey() = %q, want CH0B", k)
	}
	if _, ok := caps.ChargeMirrorKey(); !ok {
		t.Error("expected CH0C mirror")
	}
	if k, _ := caps.DischargeControlKey(); k != DischargeLegacyKey {
		t.Errorf("DischargeControlKey() = %q, want CH0I", k)
	}
	if _, ok := caps.MagSafeLEDKey(); ok {
		t.Error("no LED key expected")
	}
}

func TestNewCapabilitiesPreference(t *testing.T) {
	caps := NewCapabilities([]string{ChargingKey, ChargingMirrorKey, ChargeInhibitLegacyKey}, 0)

	if k, _ := caps.ChargeControlKey(); k != ChargeInhibitLegacyKey {
		t.Errorf("ChargeControlKey() = %q, want CHTE", k)
	}
	if _, ok := caps.ChargeMirrorKey(); ok {
		t.Error("mirror only applies when CH0B is the charge key")
	}
	if _, ok := caps.DischargeControlKey(); ok {
		t.Error("no discharge key expected")
	}
}
