package config

import (
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// TaskAction is what a scheduled task does when it fires.
type TaskAction string

const (
	ActionSetChargeLimit    TaskAction = "setChargeLimit"
	ActionStartCalibration  TaskAction = "startCalibration"
	ActionTopUp             TaskAction = "topUp"
	ActionPauseCharging     TaskAction = "pauseCharging"
	ActionDischargeTo       TaskAction = "dischargeTo"
	ActionSetFanAuto        TaskAction = "setFanAuto"
	ActionSetFanConstant    TaskAction = "setFanConstant"
	ActionSetFanSensorBased TaskAction = "setFanSensorBased"
)

// DisplayName is the human readable name used in task history.
func (a TaskAction) DisplayName() string {
	switch a {
	case ActionSetChargeLimit:
		return "Set Charge Limit"
	case ActionStartCalibration:
		return "Start Calibration"
	case ActionTopUp:
		return "Top Up (Charge to 100%)"
	case ActionPauseCharging:
		return "Pause Charging"
	case ActionDischargeTo:
		return "Discharge To"
	case ActionSetFanAuto:
		return "Set Fans to Automatic"
	case ActionSetFanConstant:
		return "Set Fans to Constant RPM"
	case ActionSetFanSensorBased:
		return "Set Fans to Sensor-based"
	default:
		return string(a)
	}
}

// RepeatRule says on which days a task fires.
type RepeatRule string

const (
	RepeatNever    RepeatRule = "never"
	RepeatDaily    RepeatRule = "daily"
	RepeatWeekdays RepeatRule = "weekdays"
	RepeatWeekly   RepeatRule = "weekly"
	RepeatBiweekly RepeatRule = "biweekly"
	RepeatMonthly  RepeatRule = "monthly"
)

// ScheduledTask fires at StartTime's hour and minute on the days selected
// by Repeat.
type ScheduledTask struct {
	ID        string     `json:"id"`
	Action    TaskAction `json:"action"`
	Repeat    RepeatRule `json:"repeat"`
	StartTime time.Time  `json:"startTime"`
	// Value is the charge limit for setChargeLimit and dischargeTo.
	Value     int     `json:"value,omitempty"`
	FanSpeed  int     `json:"fanSpeed,omitempty"`
	SensorKey string  `json:"sensorKey,omitempty"`
	MinTemp   float64 `json:"minTemp,omitempty"`
	MaxTemp   float64 `json:"maxTemp,omitempty"`
	Active    bool    `json:"active"`
}

// NewTaskID returns an identifier for a new task.
func NewTaskID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// Validate checks the fields the action depends on.
func (t ScheduledTask) Validate() error {
	if t.ID == "" {
		return pkgerrors.New("task has no id")
	}
	switch t.Repeat {
	case RepeatNever, RepeatDaily, RepeatWeekdays, RepeatWeekly, RepeatBiweekly, RepeatMonthly:
	default:
		return pkgerrors.Errorf("task %s: unknown repeat rule %q", t.ID, t.Repeat)
	}

	switch t.Action {
	case ActionSetChargeLimit, ActionDischargeTo:
		if t.Value < 20 || t.Value > 100 {
			return pkgerrors.Errorf("task %s: charge limit must be between 20 and 100, got %d", t.ID, t.Value)
		}
	case ActionSetFanConstant:
		if t.FanSpeed <= 0 {
			return pkgerrors.Errorf("task %s: fan speed must be positive, got %d", t.ID, t.FanSpeed)
		}
	case ActionSetFanSensorBased:
		if len(t.SensorKey) != 4 {
			return pkgerrors.Errorf("task %s: invalid sensor key %q", t.ID, t.SensorKey)
		}
		if t.MaxTemp <= t.MinTemp {
			return pkgerrors.Errorf("task %s: max temperature must be above min temperature", t.ID)
		}
	case ActionStartCalibration, ActionTopUp, ActionPauseCharging, ActionSetFanAuto:
	default:
		return pkgerrors.Errorf("task %s: unknown action %q", t.ID, t.Action)
	}

	return nil
}

// FanModeKind selects how a fan is driven.
type FanModeKind string

const (
	FanAutomatic   FanModeKind = "automatic"
	FanConstant    FanModeKind = "constant"
	FanSensorCurve FanModeKind = "sensor"
)

// FanMode is a fan's configured mode. RPM is used by FanConstant; the
// sensor fields by FanSensorCurve.
type FanMode struct {
	Kind      FanModeKind `json:"kind"`
	RPM       int         `json:"rpm,omitempty"`
	SensorKey string      `json:"sensorKey,omitempty"`
	MinTemp   float64     `json:"minTemp,omitempty"`
	MaxTemp   float64     `json:"maxTemp,omitempty"`
}

func AutomaticFan() FanMode {
	return FanMode{Kind: FanAutomatic}
}

func ConstantFan(rpm int) FanMode {
	return FanMode{Kind: FanConstant, RPM: rpm}
}

func SensorCurveFan(sensorKey string, minTemp, maxTemp float64) FanMode {
	return FanMode{Kind: FanSensorCurve, SensorKey: sensorKey, MinTemp: minTemp, MaxTemp: maxTemp}
}

// Validate rejects unknown kinds and missing parameters. A degenerate
// temperature range is allowed; the fan controller skips it.
func (m FanMode) Validate() error {
	switch m.Kind {
	case FanAutomatic:
	case FanConstant:
		if m.RPM <= 0 {
			return pkgerrors.Errorf("constant fan speed must be positive, got %d", m.RPM)
		}
	case FanSensorCurve:
		if len(m.SensorKey) != 4 {
			return pkgerrors.Errorf("invalid sensor key %q", m.SensorKey)
		}
	default:
		return pkgerrors.Errorf("unknown fan mode %q", m.Kind)
	}
	return nil
}
