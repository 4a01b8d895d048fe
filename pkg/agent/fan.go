package agent

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/events"
	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

// FanPollInterval is how often fans and sensors are refreshed.
const FanPollInterval = 2 * time.Second

// FanController applies the configured fan modes.
type FanController struct {
	hw       FanHardware
	settings config.Settings
	hub      *events.EventHub

	mu      sync.RWMutex
	fans    []smc.FanInfo
	sensors []smc.Sensor
	applied map[int]config.FanMode
	targets map[int]int
}

// FanSnapshot is one fan with its configured mode.
type FanSnapshot struct {
	smc.FanInfo
	Mode config.FanMode `json:"mode"`
}

func NewFanController(hw FanHardware, settings config.Settings, hub *events.EventHub) *FanController {
	return &FanController{
		hw:       hw,
		settings: settings,
		hub:      hub,
		applied:  map[int]config.FanMode{},
		targets:  map[int]int{},
	}
}

// Discover reads the fan descriptors and picks the temperature sensors
// out of the controller's key list.
func (f *FanController) Discover(ctx context.Context) error {
	n, err := f.hw.FanCount(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to count fans")
	}

	fans := make([]smc.FanInfo, 0, n)
	for i := 0; i < n; i++ {
		info, err := f.hw.FanInfo(ctx, i)
		if err != nil {
			logrus.WithError(err).WithField("fan", i).Warn("failed to read fan")
			continue
		}
		fans = append(fans, info)
	}

	keys, err := f.hw.AllKeys(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to enumerate keys, no sensors available")
	}
	sensors := smc.DiscoverSensors(keys)

	f.mu.Lock()
	f.fans = fans
	f.sensors = sensors
	f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"fans":    len(fans),
		"sensors": len(sensors),
	}).Info("fan discovery complete")
	return nil
}

// Fans returns the fans seen by the last poll.
func (f *FanController) Fans() []FanSnapshot {
	modes := f.settings.FanModes()

	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]FanSnapshot, 0, len(f.fans))
	for _, info := range f.fans {
		mode, ok := modes[info.Index]
		if !ok {
			mode = config.AutomaticFan()
		}
		out = append(out, FanSnapshot{FanInfo: info, Mode: mode})
	}
	return out
}

// Sensors returns the cached sensor readings.
func (f *FanController) Sensors() []smc.Sensor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]smc.Sensor(nil), f.sensors...)
}

// FanCount is the number of discovered fans.
func (f *FanController) FanCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.fans)
}

// SetMode stores mode for fan index and applies it right away.
func (f *FanController) SetMode(ctx context.Context, index int, mode config.FanMode) error {
	if err := f.settings.SetFanMode(index, mode); err != nil {
		return err
	}
	info, ok := f.fan(index)
	if !ok {
		return pkgerrors.Errorf("no fan %d", index)
	}
	return f.apply(ctx, info, mode)
}

// Run polls until ctx is done.
func (f *FanController) Run(ctx context.Context) {
	ticker := time.NewTicker(FanPollInterval)
	defer ticker.Stop()

	f.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}

// Poll refreshes fans and sensors and applies every configured mode.
func (f *FanController) Poll(ctx context.Context) {
	f.refresh(ctx)

	modes := f.settings.FanModes()
	for _, info := range f.snapshot() {
		mode, ok := modes[info.Index]
		if !ok {
			continue
		}
		if err := f.apply(ctx, info, mode); err != nil {
			logrus.WithError(err).WithField("fan", info.Index).Warn("failed to apply fan mode")
		}
	}
}

func (f *FanController) refresh(ctx context.Context) {
	fans := f.snapshot()
	for i, info := range fans {
		fresh, err := f.hw.FanInfo(ctx, info.Index)
		if err != nil {
			logrus.WithError(err).WithField("fan", info.Index).Debug("failed to refresh fan")
			continue
		}
		fans[i] = fresh
	}

	f.mu.RLock()
	sensors := append([]smc.Sensor(nil), f.sensors...)
	f.mu.RUnlock()
	for i := range sensors {
		v, err := f.hw.SensorValue(ctx, sensors[i].Key)
		if err != nil {
			logrus.WithError(err).WithField("sensor", sensors[i].Key).Trace("failed to read sensor")
			continue
		}
		sensors[i].Value = v
	}

	f.mu.Lock()
	f.fans = fans
	f.sensors = sensors
	f.mu.Unlock()
}

// apply writes mode when it differs from what was last applied, or when
// the refreshed hardware state no longer matches it. A restarted daemon
// hands every fan back to the controller's own curve.
func (f *FanController) apply(ctx context.Context, info smc.FanInfo, mode config.FanMode) error {
	f.mu.RLock()
	prev, hadPrev := f.applied[info.Index]
	last := f.targets[info.Index]
	f.mu.RUnlock()
	changed := !hadPrev || prev != mode

	switch mode.Kind {
	case config.FanAutomatic:
		if !changed && !info.Forced {
			return nil
		}
		if err := f.hw.SetFanMode(ctx, info.Index, types.FanModeAuto); err != nil {
			return err
		}
		f.recordApplied(info.Index, mode, 0)
	case config.FanConstant:
		if !changed && info.Forced && info.TargetRPM == last {
			return nil
		}
		rpm, err := f.hw.SetFanConstantRPM(ctx, info.Index, mode.RPM)
		if err != nil {
			return err
		}
		f.recordApplied(info.Index, mode, rpm)
	case config.FanSensorCurve:
		temp, err := f.sensorValue(ctx, mode.SensorKey)
		if err != nil {
			return err
		}
		target, ok := CurveTarget(mode, temp, info.MinRPM, info.MaxRPM)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"fan":     info.Index,
				"minTemp": mode.MinTemp,
				"maxTemp": mode.MaxTemp,
			}).Debug("degenerate temperature range, leaving fan alone")
			return nil
		}
		if changed || !info.Forced {
			if err := f.hw.SetFanMode(ctx, info.Index, types.FanModeForced); err != nil {
				return err
			}
		} else if last == target && info.TargetRPM == target {
			return nil
		}
		rpm, err := f.hw.SetFanTargetSpeed(ctx, info.Index, target)
		if err != nil {
			return err
		}
		f.recordApplied(info.Index, mode, rpm)
	default:
		return pkgerrors.Errorf("unknown fan mode %q", mode.Kind)
	}

	return nil
}

func (f *FanController) recordApplied(index int, mode config.FanMode, target int) {
	f.mu.Lock()
	f.applied[index] = mode
	f.targets[index] = target
	current := 0
	for _, info := range f.fans {
		if info.Index == index {
			current = info.CurrentRPM
		}
	}
	f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"fan":    index,
		"mode":   mode.Kind,
		"target": target,
	}).Debug("fan mode applied")
	f.hub.Publish(events.FanUpdate, events.FanUpdateEvent{
		Index:      index,
		Mode:       string(mode.Kind),
		CurrentRPM: current,
		TargetRPM:  target,
	})
}

// sensorValue prefers the value cached by the last poll.
func (f *FanController) sensorValue(ctx context.Context, key string) (float64, error) {
	f.mu.RLock()
	for _, s := range f.sensors {
		if s.Key == key && s.Value != 0 {
			f.mu.RUnlock()
			return s.Value, nil
		}
	}
	f.mu.RUnlock()
	return f.hw.SensorValue(ctx, key)
}

func (f *FanController) fan(index int) (smc.FanInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, info := range f.fans {
		if info.Index == index {
			return info, true
		}
	}
	return smc.FanInfo{}, false
}

func (f *FanController) snapshot() []smc.FanInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]smc.FanInfo(nil), f.fans...)
}

// CurveTarget maps temp onto [minRPM, maxRPM] along the mode's temperature
// range. It reports false for an empty or inverted range.
func CurveTarget(mode config.FanMode, temp float64, minRPM, maxRPM int) (int, bool) {
	if mode.MaxTemp <= mode.MinTemp {
		return 0, false
	}

	switch {
	case temp <= mode.MinTemp:
		return minRPM, true
	case temp >= mode.MaxTemp:
		return maxRPM, true
	}

	progress := (temp - mode.MinTemp) / (mode.MaxTemp - mode.MinTemp)
	target := minRPM + int(progress*float64(maxRPM-minRPM))
	return max(minRPM, min(maxRPM, target)), true
}
