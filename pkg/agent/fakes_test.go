package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/powerinfo"
	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

// fakeHardware records every call and keeps just enough state to answer
// reads consistently.
type fakeHardware struct {
	mu sync.Mutex

	caps        smc.CapabilitySummary
	temperature float64
	hwCharge    int
	keys        []string
	fans        []smc.FanInfo
	sensors     map[string]float64
	fail        map[string]error

	calls          []string
	limit          int
	charging       bool
	discharging    bool
	led            int
	sleepPrevented bool
	fanModes       map[int]types.FanMode
	fanTargets     map[int]int
}

var _ Hardware = &fakeHardware{}

func newFakeHardware() *fakeHardware {
	return &fakeHardware{
		caps:     smc.CapabilitySummary{ChargeControlKey: smc.ChargeInhibitKey, FanCount: 2},
		fail:     map[string]error{},
		sensors:  map[string]float64{},
		charging: true,
		fans: []smc.FanInfo{
			{Index: 0, Name: "Left Fan", MinRPM: 1200, MaxRPM: 6500, CurrentRPM: 1800},
			{Index: 1, Name: "Right Fan", MinRPM: 1200, MaxRPM: 6500, CurrentRPM: 1850},
		},
		fanModes:   map[int]types.FanMode{},
		fanTargets: map[int]int{},
	}
}

func (f *fakeHardware) record(name, format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name+"("+fmt.Sprintf(format, args...)+")")
	return f.fail[name]
}

func (f *fakeHardware) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeHardware) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeHardware) Count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeHardware) Fail(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

func (f *fakeHardware) Capabilities(context.Context) (smc.CapabilitySummary, error) {
	if err := f.record("Capabilities", ""); err != nil {
		return smc.CapabilitySummary{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps, nil
}

func (f *fakeHardware) SetChargeLimit(_ context.Context, percent int) (int, error) {
	if err := f.record("SetChargeLimit", "%d", percent); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = max(20, min(100, percent))
	return f.limit, nil
}

func (f *fakeHardware) EnableCharging(_ context.Context, enabled bool) error {
	if err := f.record("EnableCharging", "%t", enabled); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charging = enabled
	return nil
}

func (f *fakeHardware) SetDischarge(_ context.Context, discharging bool) error {
	if err := f.record("SetDischarge", "%t", discharging); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discharging = discharging
	return nil
}

func (f *fakeHardware) SetIndicatorColor(_ context.Context, code int) error {
	if err := f.record("SetIndicatorColor", "%d", code); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.led = code
	return nil
}

func (f *fakeHardware) StartCalibrationSetup(context.Context) error {
	if err := f.record("StartCalibrationSetup", ""); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discharging = false
	f.charging = true
	f.limit = 100
	return nil
}

func (f *fakeHardware) BatteryTemperature(context.Context) (float64, error) {
	if err := f.record("BatteryTemperature", ""); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.temperature, nil
}

func (f *fakeHardware) BatteryCharge(context.Context) (int, error) {
	if err := f.record("BatteryCharge", ""); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hwCharge, nil
}

func (f *fakeHardware) SetSystemSleepPrevented(_ context.Context, prevent bool) error {
	if err := f.record("SetSystemSleepPrevented", "%t", prevent); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleepPrevented = prevent
	return nil
}

func (f *fakeHardware) FanCount(context.Context) (int, error) {
	if err := f.record("FanCount", ""); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fans), nil
}

func (f *fakeHardware) FanInfo(_ context.Context, index int) (smc.FanInfo, error) {
	if err := f.record("FanInfo", "%d", index); err != nil {
		return smc.FanInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.fans) {
		return smc.FanInfo{}, smc.ErrKeyNotFound
	}
	info := f.fans[index]
	info.Forced = f.fanModes[index] == types.FanModeForced
	info.TargetRPM = f.fanTargets[index]
	return info, nil
}

// releaseFans puts every fan back under automatic control, the way the
// daemon does when it shuts down.
func (f *fakeHardware) releaseFans() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.fans {
		f.fanModes[i] = types.FanModeAuto
	}
}

func (f *fakeHardware) SetFanMode(_ context.Context, index int, mode types.FanMode) error {
	if err := f.record("SetFanMode", "%d,%s", index, mode); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fanModes[index] = mode
	return nil
}

func (f *fakeHardware) SetFanTargetSpeed(_ context.Context, index int, rpm int) (int, error) {
	if err := f.record("SetFanTargetSpeed", "%d,%d", index, rpm); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rpm = f.fans[index].ClampRPM(rpm)
	f.fanTargets[index] = rpm
	return rpm, nil
}

func (f *fakeHardware) SetFanConstantRPM(_ context.Context, index int, rpm int) (int, error) {
	if err := f.record("SetFanConstantRPM", "%d,%d", index, rpm); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rpm = f.fans[index].ClampRPM(rpm)
	f.fanModes[index] = types.FanModeForced
	f.fanTargets[index] = rpm
	return rpm, nil
}

func (f *fakeHardware) AllKeys(context.Context) ([]string, error) {
	if err := f.record("AllKeys", ""); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...), nil
}

func (f *fakeHardware) SensorValue(_ context.Context, key string) (float64, error) {
	if err := f.record("SensorValue", "%s", key); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.sensors[key]
	if !ok {
		return 0, smc.ErrKeyNotFound
	}
	return v, nil
}

// telemetrySource is a mutable telemetry provider.
type telemetrySource struct {
	mu sync.Mutex
	t  powerinfo.Telemetry
	ok bool
}

func (s *telemetrySource) Set(t powerinfo.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.t = t
	s.ok = true
}

func (s *telemetrySource) Latest() (powerinfo.Telemetry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t, s.ok
}

func newTestSettings(t *testing.T, raw config.RawSettings) *config.SettingsFile {
	t.Helper()
	return config.NewSettingsFromRaw(raw, filepath.Join(t.TempDir(), "settings.json"))
}
