package config

import (
	"maps"
	"slices"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/utils/ptr"
)

// LEDStyle is the user's choice for the MagSafe indicator.
type LEDStyle string

const (
	LEDStyleOff      LEDStyle = "off"
	LEDStyleStandard LEDStyle = "standard"
)

// LEDPolicy controls how the indicator reflects the charge state.
type LEDPolicy struct {
	Control          bool     `json:"control"`
	Style            LEDStyle `json:"style"`
	GreenAtLimit     bool     `json:"greenAtLimit"`
	BlinkOnDischarge bool     `json:"blinkOnDischarge"`
}

// Policy is a consistent snapshot of every setting the charge controller
// reads in one evaluation.
type Policy struct {
	ChargeLimit                  int       `json:"chargeLimit"`
	SailingMode                  bool      `json:"sailingMode"`
	SailingOffset                int       `json:"sailingOffset"`
	HeatProtection               bool      `json:"heatProtection"`
	HeatThreshold                float64   `json:"heatThreshold"`
	DischargeToLimit             bool      `json:"dischargeToLimit"`
	OneTimeDischarge             bool      `json:"oneTimeDischarge"`
	OneTimeDischargeTarget       int       `json:"oneTimeDischargeTarget"`
	PreventSleepDuringDischarge  bool      `json:"preventSleepDuringDischarge"`
	UseHardwareBatteryPercentage bool      `json:"useHardwareBatteryPercentage"`
	LED                          LEDPolicy `json:"led"`
}

// Settings is the configuration of the unprivileged agent.
type Settings interface {
	Policy() Policy
	Tasks() []ScheduledTask
	FanModes() map[int]FanMode
	AutoCalibration() bool
	CalibrationSchedule() string
	PreventSleepDuringCalibration() bool

	SetChargeLimit(int) error
	SetSailing(enabled bool, offset int) error
	SetHeatProtection(enabled bool, threshold float64) error
	SetDischargeToLimit(bool)
	SetOneTimeDischarge(enabled bool, target int) error
	SetPreventSleepDuringDischarge(bool)
	SetUseHardwareBatteryPercentage(bool)
	SetLED(LEDPolicy) error
	SetFanMode(index int, mode FanMode) error
	SetTasks([]ScheduledTask) error
	SetAutoCalibration(bool)
	SetCalibrationSchedule(string) error
	SetPreventSleepDuringCalibration(bool)

	// Subscribe returns a channel that receives a value after every
	// change. Notifications coalesce.
	Subscribe() <-chan struct{}

	Load() error
	Save() error
	LogrusFields() logrus.Fields
}

var defaultSettings = RawSettings{
	ChargeLimit:                   ptr.To(80),
	SailingMode:                   ptr.To(false),
	SailingOffset:                 ptr.To(10),
	HeatProtection:                ptr.To(false),
	HeatThreshold:                 ptr.To(40.0),
	DischargeToLimit:              ptr.To(false),
	OneTimeDischarge:              ptr.To(false),
	OneTimeDischargeTarget:        ptr.To(20),
	PreventSleepDuringDischarge:   ptr.To(false),
	PreventSleepDuringCalibration: ptr.To(true),
	UseHardwareBatteryPercentage:  ptr.To(false),
	ControlMagSafeLED:             ptr.To(false),
	LEDStyle:                      ptr.To(LEDStyleStandard),
	LEDGreenAtLimit:               ptr.To(true),
	LEDBlinkOnDischarge:           ptr.To(false),
	AutoCalibration:               ptr.To(false),
	CalibrationSchedule:           ptr.To(""),
}

// RawSettings is the on-disk form. Nil fields take their defaults.
type RawSettings struct {
	ChargeLimit                   *int            `json:"chargeLimit,omitempty"`
	SailingMode                   *bool           `json:"sailingMode,omitempty"`
	SailingOffset                 *int            `json:"sailingOffset,omitempty"`
	HeatProtection                *bool           `json:"heatProtection,omitempty"`
	HeatThreshold                 *float64        `json:"heatThreshold,omitempty"`
	DischargeToLimit              *bool           `json:"dischargeToLimit,omitempty"`
	OneTimeDischarge              *bool           `json:"oneTimeDischarge,omitempty"`
	OneTimeDischargeTarget        *int            `json:"oneTimeDischargeTarget,omitempty"`
	PreventSleepDuringDischarge   *bool           `json:"preventSleepDuringDischarge,omitempty"`
	PreventSleepDuringCalibration *bool           `json:"preventSleepDuringCalibration,omitempty"`
	UseHardwareBatteryPercentage  *bool           `json:"useHardwareBatteryPercentage,omitempty"`
	ControlMagSafeLED             *bool           `json:"controlMagSafeLED,omitempty"`
	LEDStyle                      *LEDStyle       `json:"ledStyle,omitempty"`
	LEDGreenAtLimit               *bool           `json:"ledGreenAtLimit,omitempty"`
	LEDBlinkOnDischarge           *bool           `json:"ledBlinkOnDischarge,omitempty"`
	AutoCalibration               *bool           `json:"autoCalibration,omitempty"`
	CalibrationSchedule           *string         `json:"calibrationSchedule,omitempty"`
	Tasks                         []ScheduledTask `json:"tasks,omitempty"`
	FanModes                      map[int]FanMode `json:"fanModes,omitempty"`
}

var _ Settings = &SettingsFile{}

// SettingsFile is a Settings backed by a JSON file.
type SettingsFile struct {
	mu       sync.RWMutex
	c        RawSettings
	filepath string

	subsMu sync.Mutex
	subs   []chan struct{}
}

// NewSettingsFile loads path. A missing file yields the defaults.
func NewSettingsFile(path string) (*SettingsFile, error) {
	f := &SettingsFile{filepath: path}
	if err := f.Load(); err != nil {
		return nil, err
	}
	return f, nil
}

// NewSettingsFromRaw wraps c without touching disk until Save.
func NewSettingsFromRaw(c RawSettings, path string) *SettingsFile {
	return &SettingsFile{c: c, filepath: path}
}

func (f *SettingsFile) Policy() Policy {
	f.mu.RLock()
	defer f.mu.RUnlock()

	d := defaultSettings
	return Policy{
		ChargeLimit:                  ptr.Deref(f.c.ChargeLimit, *d.ChargeLimit),
		SailingMode:                  ptr.Deref(f.c.SailingMode, *d.SailingMode),
		SailingOffset:                ptr.Deref(f.c.SailingOffset, *d.SailingOffset),
		HeatProtection:               ptr.Deref(f.c.HeatProtection, *d.HeatProtection),
		HeatThreshold:                ptr.Deref(f.c.HeatThreshold, *d.HeatThreshold),
		DischargeToLimit:             ptr.Deref(f.c.DischargeToLimit, *d.DischargeToLimit),
		OneTimeDischarge:             ptr.Deref(f.c.OneTimeDischarge, *d.OneTimeDischarge),
		OneTimeDischargeTarget:       ptr.Deref(f.c.OneTimeDischargeTarget, *d.OneTimeDischargeTarget),
		PreventSleepDuringDischarge:  ptr.Deref(f.c.PreventSleepDuringDischarge, *d.PreventSleepDuringDischarge),
		UseHardwareBatteryPercentage: ptr.Deref(f.c.UseHardwareBatteryPercentage, *d.UseHardwareBatteryPercentage),
		LED: LEDPolicy{
			Control:          ptr.Deref(f.c.ControlMagSafeLED, *d.ControlMagSafeLED),
			Style:            ptr.Deref(f.c.LEDStyle, *d.LEDStyle),
			GreenAtLimit:     ptr.Deref(f.c.LEDGreenAtLimit, *d.LEDGreenAtLimit),
			BlinkOnDischarge: ptr.Deref(f.c.LEDBlinkOnDischarge, *d.LEDBlinkOnDischarge),
		},
	}
}

func (f *SettingsFile) Tasks() []ScheduledTask {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.c.Tasks)
}

func (f *SettingsFile) FanModes() map[int]FanMode {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return maps.Clone(f.c.FanModes)
}

func (f *SettingsFile) AutoCalibration() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.c.AutoCalibration, *defaultSettings.AutoCalibration)
}

func (f *SettingsFile) CalibrationSchedule() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.c.CalibrationSchedule, *defaultSettings.CalibrationSchedule)
}

func (f *SettingsFile) PreventSleepDuringCalibration() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ptr.Deref(f.c.PreventSleepDuringCalibration, *defaultSettings.PreventSleepDuringCalibration)
}

func (f *SettingsFile) SetChargeLimit(limit int) error {
	if limit < 20 || limit > 100 {
		return pkgerrors.Errorf("charge limit must be between 20 and 100, got %d", limit)
	}
	f.update(func(c *RawSettings) { c.ChargeLimit = &limit })
	return nil
}

func (f *SettingsFile) SetSailing(enabled bool, offset int) error {
	if offset < 1 || offset > 50 {
		return pkgerrors.Errorf("sailing offset must be between 1 and 50, got %d", offset)
	}
	f.update(func(c *RawSettings) {
		c.SailingMode = &enabled
		c.SailingOffset = &offset
	})
	return nil
}

func (f *SettingsFile) SetHeatProtection(enabled bool, threshold float64) error {
	if threshold < 20 || threshold > 80 {
		return pkgerrors.Errorf("heat protection threshold must be between 20 and 80, got %.1f", threshold)
	}
	f.update(func(c *RawSettings) {
		c.HeatProtection = &enabled
		c.HeatThreshold = &threshold
	})
	return nil
}

func (f *SettingsFile) SetDischargeToLimit(b bool) {
	f.update(func(c *RawSettings) { c.DischargeToLimit = &b })
}

func (f *SettingsFile) SetOneTimeDischarge(enabled bool, target int) error {
	if target < 5 || target > 100 {
		return pkgerrors.Errorf("discharge target must be between 5 and 100, got %d", target)
	}
	f.update(func(c *RawSettings) {
		c.OneTimeDischarge = &enabled
		c.OneTimeDischargeTarget = &target
	})
	return nil
}

func (f *SettingsFile) SetPreventSleepDuringDischarge(b bool) {
	f.update(func(c *RawSettings) { c.PreventSleepDuringDischarge = &b })
}

func (f *SettingsFile) SetUseHardwareBatteryPercentage(b bool) {
	f.update(func(c *RawSettings) { c.UseHardwareBatteryPercentage = &b })
}

func (f *SettingsFile) SetLED(p LEDPolicy) error {
	if p.Style != LEDStyleOff && p.Style != LEDStyleStandard {
		return pkgerrors.Errorf("unknown LED style %q", p.Style)
	}
	f.update(func(c *RawSettings) {
		c.ControlMagSafeLED = &p.Control
		c.LEDStyle = &p.Style
		c.LEDGreenAtLimit = &p.GreenAtLimit
		c.LEDBlinkOnDischarge = &p.BlinkOnDischarge
	})
	return nil
}

func (f *SettingsFile) SetFanMode(index int, mode FanMode) error {
	if index < 0 {
		return pkgerrors.Errorf("invalid fan index %d", index)
	}
	if err := mode.Validate(); err != nil {
		return err
	}
	f.update(func(c *RawSettings) {
		if c.FanModes == nil {
			c.FanModes = map[int]FanMode{}
		}
		c.FanModes[index] = mode
	})
	return nil
}

func (f *SettingsFile) SetTasks(tasks []ScheduledTask) error {
	seen := map[string]bool{}
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.ID] {
			return pkgerrors.Errorf("duplicate task id %s", t.ID)
		}
		seen[t.ID] = true
	}
	tasks = slices.Clone(tasks)
	f.update(func(c *RawSettings) { c.Tasks = tasks })
	return nil
}

func (f *SettingsFile) SetAutoCalibration(b bool) {
	f.update(func(c *RawSettings) { c.AutoCalibration = &b })
}

// SetCalibrationSchedule sets the cron expression for periodic
// calibration. An empty string disables it.
func (f *SettingsFile) SetCalibrationSchedule(expr string) error {
	if expr != "" {
		if _, err := CronParser.Parse(expr); err != nil {
			return pkgerrors.Wrapf(err, "invalid calibration schedule %q", expr)
		}
	}
	f.update(func(c *RawSettings) { c.CalibrationSchedule = &expr })
	return nil
}

func (f *SettingsFile) SetPreventSleepDuringCalibration(b bool) {
	f.update(func(c *RawSettings) { c.PreventSleepDuringCalibration = &b })
}

func (f *SettingsFile) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	f.subsMu.Lock()
	f.subs = append(f.subs, ch)
	f.subsMu.Unlock()
	return ch
}

func (f *SettingsFile) Load() error {
	var c RawSettings
	if _, err := loadJSON(f.filepath, &c); err != nil {
		return err
	}
	for _, t := range c.Tasks {
		if err := t.Validate(); err != nil {
			return pkgerrors.Wrapf(err, "invalid task in %s", f.filepath)
		}
	}

	f.update(func(raw *RawSettings) { *raw = c })
	return nil
}

func (f *SettingsFile) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return saveJSON(f.filepath, f.c)
}

func (f *SettingsFile) LogrusFields() logrus.Fields {
	p := f.Policy()
	return logrus.Fields{
		"chargeLimit":      p.ChargeLimit,
		"sailingMode":      p.SailingMode,
		"sailingOffset":    p.SailingOffset,
		"heatProtection":   p.HeatProtection,
		"heatThreshold":    p.HeatThreshold,
		"dischargeToLimit": p.DischargeToLimit,
		"controlMagSafe":   p.LED.Control,
		"tasks":            len(f.Tasks()),
		"autoCalibration":  f.AutoCalibration(),
	}
}

func (f *SettingsFile) update(fn func(*RawSettings)) {
	f.mu.Lock()
	fn(&f.c)
	f.mu.Unlock()

	f.subsMu.Lock()
	defer f.subsMu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// CronParser accepts an optional seconds field and descriptors such as
// @weekly.
var CronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
