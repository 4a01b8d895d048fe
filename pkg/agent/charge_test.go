package agent

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/cshariq/Sapphire-sub003/pkg/calibration"
	"github.com/cshariq/Sapphire-sub003/pkg/client"
	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/powerinfo"
	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/utils/ptr"
)

type chargeFixture struct {
	hw       *fakeHardware
	settings *config.SettingsFile
	tele     *telemetrySource
	cal      calibration.State
	clock    time.Time
	armed    []time.Duration
	c        *ChargeController
}

func newChargeFixture(t *testing.T, raw config.RawSettings) *chargeFixture {
	t.Helper()

	f := &chargeFixture{
		hw:       newFakeHardware(),
		settings: newTestSettings(t, raw),
		tele:     &telemetrySource{},
		cal:      calibration.Idle(),
		clock:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local),
	}
	f.c = NewChargeController(f.hw, f.settings, f.tele.Latest, func() calibration.State { return f.cal }, nil, nil)
	f.c.now = func() time.Time { return f.clock }
	f.c.afterFunc = func(d time.Duration, fn func()) *time.Timer {
		f.armed = append(f.armed, d)
		timer := time.AfterFunc(24*time.Hour, fn)
		t.Cleanup(func() { timer.Stop() })
		return timer
	}
	return f
}

func (f *chargeFixture) eval(level int, charging bool) ChargeState {
	f.tele.Set(powerinfo.Telemetry{Level: level, Charging: charging, PluggedIn: true})
	f.c.Evaluate(context.Background())
	return f.c.State()
}

func TestChargeSailing(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{
		ChargeLimit:   ptr.To(80),
		SailingMode:   ptr.To(true),
		SailingOffset: ptr.To(5),
	})

	if got := f.eval(84, true); got != StateInhibited {
		t.Fatalf("state at 84%% = %q, want %q", got, StateInhibited)
	}
	if f.hw.Count("EnableCharging(false)") != 1 {
		t.Fatalf("charging was not inhibited, calls: %v", f.hw.Calls())
	}
	if f.hw.Count("SetDischarge(true)") != 0 {
		t.Fatalf("discharge must not be engaged, calls: %v", f.hw.Calls())
	}

	// Inside the sailing band the previous decision sticks.
	if got := f.eval(77, false); got != StateSailing {
		t.Fatalf("state at 77%% = %q, want %q", got, StateSailing)
	}

	if got := f.eval(74, false); got != StateCharging {
		t.Fatalf("state at 74%% = %q, want %q", got, StateCharging)
	}
	if f.hw.Count("EnableCharging(true)") != 1 {
		t.Fatalf("charging was not resumed, calls: %v", f.hw.Calls())
	}

	// Charging continues through the band up to the limit.
	if got := f.eval(78, true); got != StateCharging {
		t.Fatalf("state at 78%% while charging = %q, want %q", got, StateCharging)
	}
}

func TestChargeWithoutSailing(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{ChargeLimit: ptr.To(80)})

	tests := []struct {
		level int
		want  ChargeState
	}{
		{50, StateCharging},
		{79, StateCharging},
		{80, StateInhibited},
		{95, StateInhibited},
		{79, StateCharging},
	}
	for _, tt := range tests {
		if got := f.eval(tt.level, false); got != tt.want {
			t.Errorf("level %d: state = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestChargeRewritesEveryCycle(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{ChargeLimit: ptr.To(80)})

	for i := 0; i < 3; i++ {
		f.eval(60, true)
	}
	if n := f.hw.Count("EnableCharging(true)"); n != 3 {
		t.Fatalf("EnableCharging(true) written %d times, want 3", n)
	}
	if n := f.hw.Count("SetDischarge(false)"); n != 3 {
		t.Fatalf("SetDischarge(false) written %d times, want 3", n)
	}
}

func TestChargeReassertsAfterCalibration(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{ChargeLimit: ptr.To(80)})

	if got := f.eval(85, false); got != StateInhibited {
		t.Fatalf("state = %q, want %q", got, StateInhibited)
	}

	// The calibrator restores normal charging when it finishes.
	if err := f.hw.EnableCharging(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	f.cal = calibration.Done()

	if got := f.eval(85, true); got != StateCalibrationDone {
		t.Fatalf("state = %q, want %q", got, StateCalibrationDone)
	}
	if f.hw.charging {
		t.Fatalf("charging left enabled at 85%% with a limit of 80, calls: %v", f.hw.Calls())
	}
}

func TestChargeLimitTogglingFollowsNewLimit(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{ChargeLimit: ptr.To(80)})
	f.hw.caps = smc.CapabilitySummary{ChargeLimitKey: smc.ChargeLimitKey}

	f.eval(70, true)
	if f.hw.limit != 80 {
		t.Fatalf("hardware limit = %d, want 80", f.hw.limit)
	}

	if err := f.settings.SetChargeLimit(90); err != nil {
		t.Fatal(err)
	}
	f.eval(70, true)
	if f.hw.limit != 90 {
		t.Fatalf("hardware limit = %d after raising the limit, want 90, calls: %v", f.hw.limit, f.hw.Calls())
	}
}

func TestChargeLEDRewrittenAfterConnectionLoss(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{
		ChargeLimit:       ptr.To(80),
		ControlMagSafeLED: ptr.To(true),
	})

	f.eval(60, true)
	f.hw.Fail("EnableCharging", client.ErrConnectionLost)
	f.eval(60, true)
	f.hw.Fail("EnableCharging", nil)
	f.eval(60, true)

	if n := f.hw.Count("SetIndicatorColor(2)"); n != 2 {
		t.Fatalf("amber written %d times, want 2, calls: %v", n, f.hw.Calls())
	}
}

func TestChargeFailedWriteIsRetried(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{ChargeLimit: ptr.To(80)})
	f.hw.Fail("EnableCharging", smc.ErrWriteRejected)

	f.eval(90, true)
	f.hw.Fail("EnableCharging", nil)
	f.eval(90, true)

	if n := f.hw.Count("EnableCharging(false)"); n != 2 {
		t.Fatalf("EnableCharging(false) attempted %d times, want 2", n)
	}
	if f.c.Snapshot().Charging {
		t.Fatalf("charging cache not updated after successful retry: %+v", f.c.Snapshot())
	}
}

func TestChargeHeatProtection(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{
		ChargeLimit:    ptr.To(80),
		HeatProtection: ptr.To(true),
		HeatThreshold:  ptr.To(40.0),
	})
	f.hw.temperature = 42

	if got := f.eval(50, true); got != StateHeatProtection {
		t.Fatalf("state = %q, want %q", got, StateHeatProtection)
	}
	if f.hw.Count("EnableCharging(false)") != 1 {
		t.Fatalf("charging not paused, calls: %v", f.hw.Calls())
	}
	if !slices.Equal(f.armed, []time.Duration{HeatHysteresis}) {
		t.Fatalf("heat timer armed with %v, want [%v]", f.armed, HeatHysteresis)
	}

	// Cooled down, but still inside the hysteresis window.
	f.hw.temperature = 30
	f.clock = f.clock.Add(2 * time.Minute)
	if got := f.eval(50, false); got != StateHeatProtection {
		t.Fatalf("state inside hysteresis = %q, want %q", got, StateHeatProtection)
	}
	if !f.c.Snapshot().HeatUntil.After(f.clock) {
		t.Fatalf("snapshot should report the heat hold")
	}

	f.clock = f.clock.Add(HeatHysteresis)
	if got := f.eval(50, false); got != StateCharging {
		t.Fatalf("state after hysteresis = %q, want %q", got, StateCharging)
	}
	if f.hw.Count("EnableCharging(true)") != 1 {
		t.Fatalf("charging not resumed, calls: %v", f.hw.Calls())
	}
}

func TestChargeHeatIgnoredWhenNotCharging(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{
		ChargeLimit:    ptr.To(80),
		HeatProtection: ptr.To(true),
		HeatThreshold:  ptr.To(40.0),
	})
	f.hw.temperature = 45

	if got := f.eval(85, false); got != StateInhibited {
		t.Fatalf("state = %q, want %q", got, StateInhibited)
	}
	if len(f.armed) != 0 {
		t.Fatalf("heat timer armed while not charging")
	}
}

func TestChargeOneTimeDischarge(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{
		ChargeLimit:            ptr.To(80),
		OneTimeDischarge:       ptr.To(true),
		OneTimeDischargeTarget: ptr.To(30),
	})

	if got := f.eval(50, false); got != StateDischarging {
		t.Fatalf("state = %q, want %q", got, StateDischarging)
	}
	if f.hw.Count("SetDischarge(true)") != 1 {
		t.Fatalf("discharge not engaged, calls: %v", f.hw.Calls())
	}

	if got := f.eval(30, false); got != StateCharging {
		t.Fatalf("state at target = %q, want %q", got, StateCharging)
	}
	p := f.settings.Policy()
	if p.OneTimeDischarge {
		t.Fatalf("one-time discharge was not cleared")
	}
	if p.OneTimeDischargeTarget != 30 {
		t.Fatalf("target changed to %d", p.OneTimeDischargeTarget)
	}
	if f.hw.Count("SetDischarge(false)") != 1 {
		t.Fatalf("discharge not released, calls: %v", f.hw.Calls())
	}
}

func TestChargeDischargeToLimit(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{
		ChargeLimit:                 ptr.To(80),
		DischargeToLimit:            ptr.To(true),
		PreventSleepDuringDischarge: ptr.To(true),
	})

	if got := f.eval(90, false); got != StateDischarging {
		t.Fatalf("state = %q, want %q", got, StateDischarging)
	}
	if !f.hw.sleepPrevented {
		t.Fatalf("sleep should be prevented while discharging")
	}

	if got := f.eval(80, false); got != StateInhibited {
		t.Fatalf("state at limit = %q, want %q", got, StateInhibited)
	}
	if f.hw.sleepPrevented {
		t.Fatalf("sleep should be allowed again")
	}
	if f.hw.discharging {
		t.Fatalf("discharge should be off")
	}
}

func TestChargeLimitToggling(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{ChargeLimit: ptr.To(80)})
	f.hw.caps = smc.CapabilitySummary{ChargeLimitKey: smc.ChargeLimitKey}

	f.eval(84, true)
	f.eval(70, false)

	want := []string{"SetChargeLimit(84)", "SetChargeLimit(80)"}
	var got []string
	for _, c := range f.hw.Calls() {
		if len(c) > 14 && c[:14] == "SetChargeLimit" {
			got = append(got, c)
		}
	}
	if !slices.Equal(got, want) {
		t.Fatalf("limit writes = %v, want %v", got, want)
	}
	if f.hw.Count("EnableCharging(true)")+f.hw.Count("EnableCharging(false)") != 0 {
		t.Fatalf("EnableCharging used without a charge control key")
	}
}

func TestChargeHardwarePercentage(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{
		ChargeLimit:                  ptr.To(80),
		UseHardwareBatteryPercentage: ptr.To(true),
	})
	f.hw.hwCharge = 85

	if got := f.eval(70, true); got != StateInhibited {
		t.Fatalf("state = %q, want %q", got, StateInhibited)
	}
	if got := f.c.Snapshot().Level; got != 85 {
		t.Fatalf("level = %d, want 85", got)
	}
}

func TestChargeDefersToCalibration(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{ChargeLimit: ptr.To(80)})
	f.cal = calibration.ChargingToFull()

	if got := f.eval(95, true); got != StateCalibrating {
		t.Fatalf("state = %q, want %q", got, StateCalibrating)
	}
	if calls := f.hw.Calls(); len(calls) != 0 {
		t.Fatalf("no hardware writes expected during calibration, got %v", calls)
	}

	f.cal = calibration.Done()
	if got := f.eval(80, false); got != StateCalibrationDone {
		t.Fatalf("state = %q, want %q", got, StateCalibrationDone)
	}
	f.cal = calibration.Failed("boom")
	if got := f.eval(80, false); got != StateCalibrationFailed {
		t.Fatalf("state = %q, want %q", got, StateCalibrationFailed)
	}
}

func TestChargeWithoutTelemetry(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{})
	f.c.Evaluate(context.Background())

	if got := f.c.State(); got != StateUnknown {
		t.Fatalf("state = %q, want unknown", got)
	}
	if calls := f.hw.Calls(); len(calls) != 0 {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestChargeLED(t *testing.T) {
	f := newChargeFixture(t, config.RawSettings{
		ChargeLimit:       ptr.To(80),
		ControlMagSafeLED: ptr.To(true),
		LEDGreenAtLimit:   ptr.To(true),
	})

	f.eval(60, true)
	if f.hw.led != LEDAmber {
		t.Fatalf("led while charging = %d, want amber", f.hw.led)
	}
	f.eval(80, false)
	if f.hw.led != LEDGreen {
		t.Fatalf("led at limit = %d, want green", f.hw.led)
	}
	f.eval(80, false)
	if n := f.hw.Count("SetIndicatorColor(1)"); n != 1 {
		t.Fatalf("green written %d times, want 1", n)
	}
}

func TestLEDColor(t *testing.T) {
	std := config.LEDPolicy{Control: true, Style: config.LEDStyleStandard}
	tests := []struct {
		name                                      string
		policy                                    config.LEDPolicy
		atLimit, inhibited, discharging, charging bool
		want                                      int
	}{
		{name: "charging", policy: std, charging: true, want: LEDAmber},
		{name: "idle", policy: std, want: LEDOff},
		{name: "inhibited", policy: std, inhibited: true, want: LEDOff},
		{
			name:      "inhibited blink",
			policy:    config.LEDPolicy{Control: true, Style: config.LEDStyleStandard, BlinkOnDischarge: true},
			inhibited: true,
			want:      LEDAmber,
		},
		{
			name:      "green at limit",
			policy:    config.LEDPolicy{Control: true, Style: config.LEDStyleStandard, GreenAtLimit: true},
			atLimit:   true,
			inhibited: true,
			want:      LEDGreen,
		},
		{
			name:     "style off",
			policy:   config.LEDPolicy{Control: true, Style: config.LEDStyleOff},
			atLimit:  true,
			charging: true,
			want:     LEDOff,
		},
		{
			name:    "style off keeps green at limit",
			policy:  config.LEDPolicy{Control: true, Style: config.LEDStyleOff, GreenAtLimit: true},
			atLimit: true,
			want:    LEDGreen,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledColor(tt.policy, tt.atLimit, tt.inhibited, tt.discharging, tt.charging)
			if got != tt.want {
				t.Fatalf("ledColor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSleepHoldRefCount(t *testing.T) {
	hw := newFakeHardware()
	s := newSleepHold(hw)
	ctx := context.Background()

	s.Acquire(ctx, "discharge")
	s.Acquire(ctx, "calibration")
	s.Acquire(ctx, "discharge")
	s.Release(ctx, "discharge")
	if !hw.sleepPrevented {
		t.Fatalf("sleep released while calibration still holds it")
	}
	s.Release(ctx, "calibration")
	if hw.sleepPrevented {
		t.Fatalf("sleep still prevented with no holders")
	}
	if n := hw.Count("SetSystemSleepPrevented(true)"); n != 1 {
		t.Fatalf("assertion taken %d times, want 1", n)
	}
}
