package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSettingsDefaults(t *testing.T) {
	f, err := NewSettingsFile(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("NewSettingsFile() error = %v", err)
	}

	p := f.Policy()
	if p.ChargeLimit != 80 {
		t.Errorf("ChargeLimit = %d, want 80", p.ChargeLimit)
	}
	if p.SailingOffset != 10 {
		t.Errorf("SailingOffset = %d, want 10", p.SailingOffset)
	}
	if p.HeatThreshold != 40 {
		t.Errorf("HeatThreshold = %v, want 40", p.HeatThreshold)
	}
	if p.OneTimeDischargeTarget != 20 {
		t.Errorf("OneTimeDischargeTarget = %d, want 20", p.OneTimeDischargeTarget)
	}
	if p.LED.Style != LEDStyleStandard || !p.LED.GreenAtLimit {
		t.Errorf("LED = %+v, want standard style with green at limit", p.LED)
	}
	if !f.PreventSleepDuringCalibration() {
		t.Error("PreventSleepDuringCalibration() = false, want true")
	}
}

func TestSettingsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("  \n"), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := NewSettingsFile(path)
	if err != nil {
		t.Fatalf("NewSettingsFile() error = %v", err)
	}
	if got := f.Policy().ChargeLimit; got != 80 {
		t.Errorf("ChargeLimit = %d, want 80", got)
	}
}

func TestSettingsSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	f, err := NewSettingsFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.SetChargeLimit(70); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSailing(true, 5); err != nil {
		t.Fatal(err)
	}
	if err := f.SetFanMode(1, SensorCurveFan("TC0P", 40, 75)); err != nil {
		t.Fatal(err)
	}
	task := ScheduledTask{
		ID:        "a",
		Action:    ActionSetChargeLimit,
		Repeat:    RepeatDaily,
		StartTime: time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC),
		Value:     90,
		Active:    true,
	}
	if err := f.SetTasks([]ScheduledTask{task}); err != nil {
		t.Fatal(err)
	}
	if err := f.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	g, err := NewSettingsFile(path)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	p := g.Policy()
	if p.ChargeLimit != 70 || !p.SailingMode || p.SailingOffset != 5 {
		t.Errorf("reloaded policy = %+v", p)
	}
	if m := g.FanModes()[1]; m.Kind != FanSensorCurve || m.SensorKey != "TC0P" || m.MaxTemp != 75 {
		t.Errorf("reloaded fan mode = %+v", m)
	}
	if tasks := g.Tasks(); len(tasks) != 1 || tasks[0].Value != 90 || !tasks[0].StartTime.Equal(task.StartTime) {
		t.Errorf("reloaded tasks = %+v", tasks)
	}
}

func TestSettingsValidation(t *testing.T) {
	f := NewSettingsFromRaw(RawSettings{}, filepath.Join(t.TempDir(), "s.json"))

	tests := []struct {
		name string
		fn   func() error
	}{
		{"limit too low", func() error { return f.SetChargeLimit(10) }},
		{"limit too high", func() error { return f.SetChargeLimit(101) }},
		{"sailing offset zero", func() error { return f.SetSailing(true, 0) }},
		{"heat threshold", func() error { return f.SetHeatProtection(true, 100) }},
		{"led style", func() error { return f.SetLED(LEDPolicy{Style: "rainbow"}) }},
		{"fan mode", func() error { return f.SetFanMode(0, FanMode{Kind: "turbo"}) }},
		{"constant rpm", func() error { return f.SetFanMode(0, ConstantFan(0)) }},
		{"cron", func() error { return f.SetCalibrationSchedule("every tuesday") }},
		{"task action", func() error {
			return f.SetTasks([]ScheduledTask{{ID: "x", Action: "explode", Repeat: RepeatDaily}})
		}},
		{"duplicate task", func() error {
			t := ScheduledTask{ID: "x", Action: ActionTopUp, Repeat: RepeatDaily}
			return f.SetTasks([]ScheduledTask{t, t})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if got := f.Policy().ChargeLimit; got != 80 {
		t.Errorf("ChargeLimit changed to %d after rejected updates", got)
	}
}

func TestSettingsSubscribe(t *testing.T) {
	f := NewSettingsFromRaw(RawSettings{}, filepath.Join(t.TempDir(), "s.json"))
	ch := f.Subscribe()

	f.SetDischargeToLimit(true)
	f.SetDischargeToLimit(false)

	select {
	case <-ch:
	default:
		t.Fatal("no change notification")
	}
	select {
	case <-ch:
		t.Fatal("notifications should coalesce")
	default:
	}
}

func TestDaemonFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smcctl.json")
	f, err := NewDaemonFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.AllowNonRootAccess() || !f.EnableMetrics() {
		t.Errorf("unexpected defaults: %v", f.LogrusFields())
	}

	f.SetAllowNonRootAccess(true)
	if err := f.Save(); err != nil {
		t.Fatal(err)
	}
	g, err := NewDaemonFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !g.AllowNonRootAccess() {
		t.Error("AllowNonRootAccess not persisted")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smcctl.json")
	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDaemonFile(path); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}
