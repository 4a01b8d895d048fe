package agent

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/calibration"
	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/events"
	"github.com/cshariq/Sapphire-sub003/pkg/powerinfo"
)

// HoldTick is how often the hold countdown is refreshed.
const HoldTick = time.Second

const sleepHolderCalibration = "calibration"

// Calibrator drives one battery calibration run: charge to full, hold,
// drain to the low threshold and charge back to the user's limit.
type Calibrator struct {
	hw        BatteryHardware
	act       *actuator
	settings  config.Settings
	sleep     *sleepHold
	hub       *events.EventHub
	statePath string

	// seams for tests
	now       func() time.Time
	startHold func(interval time.Duration, tick func()) (stop func())

	mu        sync.Mutex
	rec       calibration.Record
	level     int
	listening bool
	stopHold  func()
	notify    []chan struct{}
}

func NewCalibrator(hw BatteryHardware, settings config.Settings, sleep *sleepHold, hub *events.EventHub, statePath string) *Calibrator {
	if sleep == nil {
		sleep = newSleepHold(hw)
	}
	return &Calibrator{
		hw:        hw,
		act:       newActuator(hw),
		settings:  settings,
		sleep:     sleep,
		hub:       hub,
		statePath: statePath,
		now:       time.Now,
		startHold: startTicker,
		rec:       calibration.Record{State: calibration.Idle()},
	}
}

func startTicker(interval time.Duration, tick func()) func() {
	t := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-t.C:
				tick()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
		})
	}
}

// State returns the current calibration state.
func (c *Calibrator) State() calibration.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec.State
}

// Status returns the state with its progress.
func (c *Calibrator) Status() calibration.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return calibration.Status{
		State:         c.rec.State,
		Description:   c.rec.State.Description(),
		Progress:      c.rec.State.Progress(c.level, c.rec.OriginalLimit),
		OriginalLimit: c.rec.OriginalLimit,
		StartedAt:     c.rec.StartedAt,
	}
}

// Subscribe returns a channel signalled on every state change.
func (c *Calibrator) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.notify = append(c.notify, ch)
	c.mu.Unlock()
	return ch
}

// Start begins a run. It is a no-op while a run is active.
func (c *Calibrator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec.State.Active() {
		logrus.WithField("state", c.rec.State).Debug("calibration already running")
		return nil
	}

	c.rec = calibration.Record{
		State:         c.rec.State,
		OriginalLimit: c.settings.Policy().ChargeLimit,
		StartedAt:     c.now(),
	}
	c.listening = true
	if c.settings.PreventSleepDuringCalibration() {
		c.sleep.Acquire(ctx, sleepHolderCalibration)
	}

	logrus.WithFields(logrus.Fields{
		"originalLimit": c.rec.OriginalLimit,
	}).Info("starting calibration")

	if err := c.hw.StartCalibrationSetup(ctx); err != nil {
		c.failLocked(ctx, pkgerrors.Wrap(err, "failed to prepare calibration"))
		return err
	}
	c.transitionLocked(calibration.ChargingToFull())
	return nil
}

// Cancel ends an active run, or clears a finished one, returning to idle.
func (c *Calibrator) Cancel(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec.State.Active() {
		logrus.Info("calibration cancelled")
		c.finishLocked(ctx, calibration.Idle())
		return
	}
	if c.rec.State.Kind != calibration.KindIdle {
		c.transitionLocked(calibration.Idle())
	}
}

// Resume continues a run persisted by a previous agent.
func (c *Calibrator) Resume(ctx context.Context) error {
	rec, err := calibration.LoadRecord(c.statePath)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rec = rec
	if !rec.State.Active() {
		return nil
	}

	logrus.WithField("state", rec.State).Info("resuming calibration")
	c.listening = true
	if c.settings.PreventSleepDuringCalibration() {
		c.sleep.Acquire(ctx, sleepHolderCalibration)
	}
	if rec.State.Kind == calibration.KindHoldingAtFull {
		if rec.HoldEndsAt.IsZero() {
			c.rec.HoldEndsAt = c.now().Add(rec.State.HoldRemaining)
		}
		c.stopHold = c.startHold(HoldTick, func() { c.holdTick(ctx) })
	}
	c.publishLocked(calibration.Idle(), c.rec.State)
	return nil
}

// OnTelemetry advances the run when the battery crosses a threshold.
// Samples are ignored while no run is active.
func (c *Calibrator) OnTelemetry(ctx context.Context, t powerinfo.Telemetry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.level = t.Level
	if !c.listening {
		return
	}

	switch c.rec.State.Kind {
	case calibration.KindChargingToFull:
		if t.Level >= 100 && !t.Charging {
			c.enterHoldLocked(ctx)
		}
	case calibration.KindDischargingToLow:
		if t.Level <= calibration.LowThreshold {
			c.enterFinalChargeLocked(ctx)
		}
	case calibration.KindFinalChargeToLimit:
		if t.Level >= c.rec.OriginalLimit {
			logrus.Info("calibration complete")
			c.finishLocked(ctx, calibration.Done())
		}
	}
}

func (c *Calibrator) enterHoldLocked(ctx context.Context) {
	c.rec.HoldEndsAt = c.now().Add(calibration.HoldDuration)
	c.transitionLocked(calibration.HoldingAtFull(calibration.HoldDuration))
	c.stopHold = c.startHold(HoldTick, func() { c.holdTick(ctx) })
}

func (c *Calibrator) holdTick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rec.State.Kind != calibration.KindHoldingAtFull {
		return
	}

	remaining := c.rec.HoldEndsAt.Sub(c.now())
	if remaining > 0 {
		c.rec.State = calibration.HoldingAtFull(remaining)
		c.hub.Publish(events.CalibrationState, c.eventLocked(c.rec.State, c.rec.State))
		return
	}

	c.stopHoldLocked()
	if err := c.act.setCharging(ctx, false, 100, c.level); err != nil {
		c.failLocked(ctx, pkgerrors.Wrap(err, "failed to stop charging"))
		return
	}
	if err := c.hw.SetDischarge(ctx, true); err != nil {
		c.failLocked(ctx, pkgerrors.Wrap(err, "failed to start discharging"))
		return
	}
	c.transitionLocked(calibration.DischargingToLow())
}

func (c *Calibrator) enterFinalChargeLocked(ctx context.Context) {
	if err := c.hw.SetDischarge(ctx, false); err != nil {
		c.failLocked(ctx, pkgerrors.Wrap(err, "failed to stop discharging"))
		return
	}
	if err := c.act.setCharging(ctx, true, 100, c.level); err != nil {
		c.failLocked(ctx, pkgerrors.Wrap(err, "failed to start charging"))
		return
	}
	c.transitionLocked(calibration.FinalChargeToLimit())
}

func (c *Calibrator) failLocked(ctx context.Context, err error) {
	logrus.WithError(err).Error("calibration failed")
	c.finishLocked(ctx, calibration.Failed(err.Error()))
}

// finishLocked leaves the active set: telemetry is ignored again, the sleep
// hold is dropped and normal charging at the original limit is restored.
func (c *Calibrator) finishLocked(ctx context.Context, final calibration.State) {
	c.stopHoldLocked()
	c.listening = false
	c.sleep.Release(ctx, sleepHolderCalibration)

	limit := c.rec.OriginalLimit
	if limit > 0 {
		if _, err := c.hw.SetChargeLimit(ctx, limit); err != nil {
			logrus.WithError(err).WithField("limit", limit).Error("failed to restore charge limit")
		}
	}
	if err := c.hw.SetDischarge(ctx, false); err != nil {
		logrus.WithError(err).Error("failed to stop discharging after calibration")
	}
	if err := c.act.setCharging(ctx, true, max(limit, 20), c.level); err != nil {
		logrus.WithError(err).Error("failed to re-enable charging after calibration")
	}

	c.transitionLocked(final)
}

func (c *Calibrator) stopHoldLocked() {
	if c.stopHold != nil {
		c.stopHold()
		c.stopHold = nil
	}
	c.rec.HoldEndsAt = time.Time{}
}

func (c *Calibrator) transitionLocked(to calibration.State) {
	from := c.rec.State
	c.rec.State = to

	logrus.WithFields(logrus.Fields{
		"from":  from,
		"to":    to,
		"level": c.level,
	}).Info("calibration state changed")

	if c.statePath != "" {
		if err := calibration.SaveRecord(c.statePath, c.rec); err != nil {
			logrus.WithError(err).Warn("failed to persist calibration state")
		}
	}
	c.publishLocked(from, to)
}

func (c *Calibrator) publishLocked(from, to calibration.State) {
	c.hub.Publish(events.CalibrationState, c.eventLocked(from, to))
	for _, ch := range c.notify {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (c *Calibrator) eventLocked(from, to calibration.State) events.CalibrationStateEvent {
	return events.CalibrationStateEvent{
		From:     from,
		To:       to,
		Progress: to.Progress(c.level, c.rec.OriginalLimit),
		Ts:       c.now().Unix(),
	}
}
