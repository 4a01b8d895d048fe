package agent

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

func TestCurveTarget(t *testing.T) {
	curve := config.SensorCurveFan("TC0P", 40, 80)
	tests := []struct {
		name   string
		mode   config.FanMode
		temp   float64
		want   int
		wantOK bool
	}{
		{name: "below range", mode: curve, temp: 30, want: 1200, wantOK: true},
		{name: "at min", mode: curve, temp: 40, want: 1200, wantOK: true},
		{name: "midpoint", mode: curve, temp: 60, want: 3850, wantOK: true},
		{name: "at max", mode: curve, temp: 80, want: 6500, wantOK: true},
		{name: "above range", mode: curve, temp: 95, want: 6500, wantOK: true},
		{name: "degenerate", mode: config.SensorCurveFan("TC0P", 50, 50), temp: 50},
		{name: "inverted", mode: config.SensorCurveFan("TC0P", 80, 40), temp: 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CurveTarget(tt.mode, tt.temp, 1200, 6500)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("CurveTarget = (%d, %t), want (%d, %t)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func newFanFixture(t *testing.T, modes map[int]config.FanMode) (*fakeHardware, *config.SettingsFile, *FanController) {
	t.Helper()

	hw := newFakeHardware()
	hw.keys = []string{"BCLM", "TC0P", "TG0P", "FNum"}
	hw.sensors = map[string]float64{"TC0P": 60, "TG0P": 45}
	settings := newTestSettings(t, config.RawSettings{FanModes: modes})

	f := NewFanController(hw, settings, nil)
	if err := f.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	hw.ResetCalls()
	return hw, settings, f
}

func fanWrites(hw *fakeHardware) []string {
	var out []string
	for _, c := range hw.Calls() {
		if strings.HasPrefix(c, "SetFan") {
			out = append(out, c)
		}
	}
	return out
}

func TestFanDiscover(t *testing.T) {
	_, _, f := newFanFixture(t, nil)

	if got := f.FanCount(); got != 2 {
		t.Fatalf("FanCount = %d, want 2", got)
	}
	var keys []string
	for _, s := range f.Sensors() {
		keys = append(keys, s.Key)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"TC0P", "TG0P"}) {
		t.Fatalf("sensors = %v", keys)
	}

	fans := f.Fans()
	if len(fans) != 2 || fans[0].Mode.Kind != config.FanAutomatic {
		t.Fatalf("fans = %+v", fans)
	}
}

func TestFanConstantAppliedOnce(t *testing.T) {
	hw, _, f := newFanFixture(t, map[int]config.FanMode{0: config.ConstantFan(3000)})
	ctx := context.Background()

	f.Poll(ctx)
	f.Poll(ctx)

	want := []string{"SetFanConstantRPM(0,3000)"}
	if got := fanWrites(hw); !slices.Equal(got, want) {
		t.Fatalf("fan writes = %v, want %v", got, want)
	}
}

func TestFanSensorCurve(t *testing.T) {
	hw, _, f := newFanFixture(t, map[int]config.FanMode{1: config.SensorCurveFan("TC0P", 40, 80)})
	ctx := context.Background()

	f.Poll(ctx)
	want := []string{"SetFanMode(1,forced)", "SetFanTargetSpeed(1,3850)"}
	if got := fanWrites(hw); !slices.Equal(got, want) {
		t.Fatalf("fan writes = %v, want %v", got, want)
	}

	hw.ResetCalls()
	f.Poll(ctx)
	if got := fanWrites(hw); len(got) != 0 {
		t.Fatalf("unchanged temperature should not write, got %v", got)
	}

	hw.mu.Lock()
	hw.sensors["TC0P"] = 85
	hw.mu.Unlock()
	hw.ResetCalls()
	f.Poll(ctx)
	want = []string{"SetFanTargetSpeed(1,6500)"}
	if got := fanWrites(hw); !slices.Equal(got, want) {
		t.Fatalf("fan writes = %v, want %v", got, want)
	}
}

func TestFanDegenerateCurveLeavesFanAlone(t *testing.T) {
	hw, _, f := newFanFixture(t, map[int]config.FanMode{0: config.SensorCurveFan("TC0P", 50, 50)})

	f.Poll(context.Background())
	if got := fanWrites(hw); len(got) != 0 {
		t.Fatalf("degenerate curve should not write, got %v", got)
	}
}

func TestFanSetMode(t *testing.T) {
	hw, settings, f := newFanFixture(t, map[int]config.FanMode{0: config.ConstantFan(3000)})
	ctx := context.Background()
	f.Poll(ctx)

	if err := f.SetMode(ctx, 0, config.AutomaticFan()); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if got := settings.FanModes()[0]; got.Kind != config.FanAutomatic {
		t.Fatalf("stored mode = %+v", got)
	}
	if hw.fanModes[0] != types.FanModeAuto {
		t.Fatalf("fan 0 mode = %q, want auto", hw.fanModes[0])
	}

	if err := f.SetMode(ctx, 5, config.AutomaticFan()); err == nil {
		t.Fatalf("expected error for unknown fan")
	}
	if err := f.SetMode(ctx, 0, config.FanMode{Kind: "turbo"}); err == nil {
		t.Fatalf("expected error for invalid mode")
	}
}

func TestFanModeReappliedAfterRelease(t *testing.T) {
	hw, _, f := newFanFixture(t, map[int]config.FanMode{
		0: config.ConstantFan(3000),
		1: config.SensorCurveFan("TC0P", 40, 80),
	})
	ctx := context.Background()

	f.Poll(ctx)
	hw.releaseFans()
	hw.ResetCalls()

	f.Poll(ctx)
	want := []string{"SetFanConstantRPM(0,3000)", "SetFanMode(1,forced)", "SetFanTargetSpeed(1,3850)"}
	if got := fanWrites(hw); !slices.Equal(got, want) {
		t.Fatalf("fan writes = %v, want %v", got, want)
	}
	if hw.fanModes[0] != types.FanModeForced || hw.fanTargets[0] != 3000 {
		t.Fatalf("fan 0 left in %q at %d rpm", hw.fanModes[0], hw.fanTargets[0])
	}

	hw.ResetCalls()
	f.Poll(ctx)
	if got := fanWrites(hw); len(got) != 0 {
		t.Fatalf("settled fans should not be rewritten, got %v", got)
	}
}

func TestFanAutomaticReleasesForcedFan(t *testing.T) {
	hw, _, f := newFanFixture(t, map[int]config.FanMode{0: config.AutomaticFan()})
	ctx := context.Background()

	f.Poll(ctx)
	hw.ResetCalls()

	// Forced from the command line behind the agent's back.
	if _, err := hw.SetFanConstantRPM(ctx, 0, 5000); err != nil {
		t.Fatal(err)
	}
	hw.ResetCalls()

	f.Poll(ctx)
	want := []string{"SetFanMode(0,auto)"}
	if got := fanWrites(hw); !slices.Equal(got, want) {
		t.Fatalf("fan writes = %v, want %v", got, want)
	}
}
