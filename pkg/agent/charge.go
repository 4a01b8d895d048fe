package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/calibration"
	"github.com/cshariq/Sapphire-sub003/pkg/client"
	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/events"
	"github.com/cshariq/Sapphire-sub003/pkg/powerinfo"
)

const (
	// HeatHysteresis is how long charging stays off after the battery
	// was found too hot.
	HeatHysteresis = 5 * time.Minute
	// ChargeTickInterval is the unconditional re-evaluation period.
	ChargeTickInterval = 15 * time.Second
	// ChargeDebounce delays evaluation after an input changes.
	ChargeDebounce = time.Second
)

// ChargeState is what the charge controller decided last.
type ChargeState string

const (
	StateUnknown           ChargeState = ""
	StateCharging          ChargeState = "charging"
	StateInhibited         ChargeState = "inhibited"
	StateSailing           ChargeState = "sailing"
	StateHeatProtection    ChargeState = "heatProtection"
	StateDischarging       ChargeState = "discharging"
	StateCalibrating       ChargeState = "calibrating"
	StateCalibrationDone   ChargeState = "calibrationDone"
	StateCalibrationFailed ChargeState = "calibrationFailed"
)

// ChargeController turns the user's charging policy into hardware writes.
type ChargeController struct {
	hw          BatteryHardware
	act         *actuator
	settings    config.Settings
	sleep       *sleepHold
	hub         *events.EventHub
	telemetry   func() (powerinfo.Telemetry, bool)
	calibration func() calibration.State

	// seams for tests
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer

	evalMu  sync.Mutex
	pending chan struct{}
	kick    chan struct{}

	mu         sync.RWMutex
	state      ChargeState
	level      int
	charging   *bool
	discharge  *bool
	led        *int
	heatTimer  *time.Timer
	heatUntil  time.Time
	lastReason string
}

// ChargeSnapshot is the controller state served by the agent API.
type ChargeSnapshot struct {
	State      ChargeState `json:"state"`
	Level      int         `json:"level"`
	Charging   bool        `json:"charging"`
	Discharge  bool        `json:"discharge"`
	HeatUntil  time.Time   `json:"heatUntil,omitempty"`
	LastReason string      `json:"lastReason,omitempty"`
}

func NewChargeController(
	hw BatteryHardware,
	settings config.Settings,
	telemetry func() (powerinfo.Telemetry, bool),
	cal func() calibration.State,
	sleep *sleepHold,
	hub *events.EventHub,
) *ChargeController {
	if cal == nil {
		cal = calibration.Idle
	}
	if sleep == nil {
		sleep = newSleepHold(hw)
	}
	return &ChargeController{
		hw:          hw,
		act:         newActuator(hw),
		settings:    settings,
		sleep:       sleep,
		hub:         hub,
		telemetry:   telemetry,
		calibration: cal,
		now:         time.Now,
		afterFunc:   time.AfterFunc,
		pending:     make(chan struct{}, 1),
		kick:        make(chan struct{}, 1),
	}
}

// State returns the last decided state.
func (c *ChargeController) State() ChargeState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *ChargeController) Snapshot() ChargeSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := ChargeSnapshot{
		State:      c.state,
		Level:      c.level,
		LastReason: c.lastReason,
	}
	if c.charging != nil {
		s.Charging = *c.charging
	}
	if c.discharge != nil {
		s.Discharge = *c.discharge
	}
	if c.heatUntil.After(c.now()) {
		s.HeatUntil = c.heatUntil
	}
	return s
}

// Trigger asks Run for a re-evaluation.
func (c *ChargeController) Trigger() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Run evaluates on every trigger until ctx is done. Triggers from inputs
// are debounced; the periodic tick and the heat timer are not.
func (c *ChargeController) Run(ctx context.Context, inputs ...<-chan struct{}) {
	ticker := time.NewTicker(ChargeTickInterval)
	defer ticker.Stop()
	debounce := time.NewTimer(ChargeDebounce)
	defer debounce.Stop()

	merged := make(chan struct{}, 1)
	for _, in := range inputs {
		go func(in <-chan struct{}) {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-in:
					if !ok {
						return
					}
					select {
					case merged <- struct{}{}:
					default:
					}
				}
			}
		}(in)
	}

	defer c.stopHeatTimer()

	for {
		select {
		case <-ctx.Done():
			return
		case <-merged:
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(ChargeDebounce)
		case <-debounce.C:
			go c.Evaluate(ctx)
		case <-ticker.C:
			go c.Evaluate(ctx)
		case <-c.kick:
			go c.Evaluate(ctx)
		}
	}
}

// Evaluate runs one decision cycle. An evaluation requested while another
// is in flight is folded into a single rerun once it finishes.
func (c *ChargeController) Evaluate(ctx context.Context) {
	if !c.evalMu.TryLock() {
		select {
		case c.pending <- struct{}{}:
		default:
		}
		return
	}

	for {
		c.evaluate(ctx)

		select {
		case <-c.pending:
			continue
		default:
		}
		break
	}
	c.evalMu.Unlock()
}

func (c *ChargeController) evaluate(ctx context.Context) {
	tele, ok := c.telemetry()
	if !ok {
		logrus.Debug("no battery telemetry yet, skipping charge evaluation")
		return
	}

	policy := c.settings.Policy()
	level := tele.Level
	if policy.UseHardwareBatteryPercentage {
		if v, err := c.hw.BatteryCharge(ctx); err == nil {
			level = v
		} else {
			logrus.WithError(err).Warn("failed to read hardware battery percentage, using OS value")
		}
	}

	cal := c.calibration()
	if cal.Active() {
		c.setState(StateCalibrating, level, "calibration "+string(cal.Kind))
		return
	}

	limit := policy.ChargeLimit

	if policy.OneTimeDischarge {
		target := policy.OneTimeDischargeTarget
		if level <= target {
			logrus.WithFields(logrus.Fields{
				"level":  level,
				"target": target,
			}).Info("one-time discharge reached its target")
			if err := c.settings.SetOneTimeDischarge(false, target); err != nil {
				logrus.WithError(err).Error("failed to clear one-time discharge")
			}
		} else {
			c.applyDischarge(ctx, true)
			c.applyLED(ctx, policy.LED, inhibitedColor(policy.LED))
			c.setState(StateDischarging, level, "one-time discharge")
			return
		}
	}

	if policy.DischargeToLimit && level > limit {
		c.applyDischarge(ctx, true)
		if policy.PreventSleepDuringDischarge {
			c.sleep.Acquire(ctx, "discharge")
		}
		c.applyLED(ctx, policy.LED, ledColor(policy.LED, level >= limit, true, true, false))
		c.setState(StateDischarging, level, "discharging to limit")
		return
	}
	c.sleep.Release(ctx, "discharge")
	c.applyDischarge(ctx, false)

	shouldCharge, state, reason := c.decideCharging(policy, level, tele)

	if policy.HeatProtection && shouldCharge {
		if c.heatHeld() {
			shouldCharge, state, reason = false, StateHeatProtection, "heat protection hold"
		} else if tele.Charging {
			temp, err := c.hw.BatteryTemperature(ctx)
			switch {
			case err != nil:
				logrus.WithError(err).Warn("failed to read battery temperature")
			case temp >= policy.HeatThreshold:
				logrus.WithFields(logrus.Fields{
					"temperature": temp,
					"threshold":   policy.HeatThreshold,
				}).Info("battery too hot, pausing charging")
				shouldCharge, state, reason = false, StateHeatProtection, "battery too hot"
				c.armHeatTimer()
			}
		}
	}

	c.applyCharging(ctx, shouldCharge, limit, level)
	c.applyLED(ctx, policy.LED, ledColor(policy.LED, level >= limit, !shouldCharge, false, tele.Charging))

	switch cal.Kind {
	case calibration.KindDone:
		state = StateCalibrationDone
	case calibration.KindError:
		state = StateCalibrationFailed
	}
	c.setState(state, level, reason)
}

// decideCharging applies the limit with or without sailing hysteresis.
func (c *ChargeController) decideCharging(policy config.Policy, level int, tele powerinfo.Telemetry) (bool, ChargeState, string) {
	limit := policy.ChargeLimit

	if level >= limit {
		return false, StateInhibited, "at or above limit"
	}
	if !policy.SailingMode {
		return true, StateCharging, "below limit"
	}

	lower := limit - policy.SailingOffset
	if level < lower {
		return true, StateCharging, "below sailing lower bound"
	}

	c.mu.RLock()
	previous := tele.Charging
	if c.charging != nil {
		previous = *c.charging
	}
	c.mu.RUnlock()

	if previous {
		return true, StateCharging, "sailing, still charging"
	}
	return false, StateSailing, "sailing above lower bound"
}

func (c *ChargeController) heatHeld() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Before(c.heatUntil)
}

// armHeatTimer replaces any pending heat timer with a fresh one.
func (c *ChargeController) armHeatTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.heatTimer != nil {
		c.heatTimer.Stop()
	}
	c.heatUntil = c.now().Add(HeatHysteresis)
	c.heatTimer = c.afterFunc(HeatHysteresis, c.Trigger)
}

func (c *ChargeController) stopHeatTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.heatTimer != nil {
		c.heatTimer.Stop()
		c.heatTimer = nil
	}
}

// applyDischarge and applyCharging write on every evaluation. The
// calibrator, scheduled tasks, the CLI and a daemon restart all move these
// keys without going through the controller.
func (c *ChargeController) applyDischarge(ctx context.Context, on bool) {
	if err := c.hw.SetDischarge(ctx, on); err != nil {
		logrus.WithError(err).WithField("discharge", on).Error("failed to set discharge")
		c.forgetOnConnectionLoss(err)
		return
	}
	c.mu.Lock()
	c.discharge = &on
	c.mu.Unlock()
}

func (c *ChargeController) applyCharging(ctx context.Context, on bool, limit, level int) {
	if err := c.act.setCharging(ctx, on, limit, level); err != nil {
		logrus.WithError(err).WithField("charging", on).Error("failed to switch charging")
		c.forgetOnConnectionLoss(err)
		return
	}
	c.mu.Lock()
	c.charging = &on
	c.mu.Unlock()
}

func (c *ChargeController) applyLED(ctx context.Context, p config.LEDPolicy, code int) {
	if !p.Control {
		return
	}

	c.mu.RLock()
	same := c.led != nil && *c.led == code
	c.mu.RUnlock()
	if same {
		return
	}

	if err := c.hw.SetIndicatorColor(ctx, code); err != nil {
		logrus.WithError(err).WithField("code", code).Error("failed to set indicator")
		c.forgetOnConnectionLoss(err)
		return
	}
	c.mu.Lock()
	c.led = &code
	c.mu.Unlock()
}

// InvalidateLED drops the remembered indicator color so the next
// evaluation writes it again.
func (c *ChargeController) InvalidateLED() {
	c.mu.Lock()
	c.led = nil
	c.mu.Unlock()
}

// forgetOnConnectionLoss drops the indicator cache when the daemon went
// away; a restarted daemon knows nothing about what was written before.
func (c *ChargeController) forgetOnConnectionLoss(err error) {
	if errors.Is(err, client.ErrConnectionLost) || errors.Is(err, client.ErrDaemonNotRunning) {
		c.InvalidateLED()
	}
}

func (c *ChargeController) setState(s ChargeState, level int, reason string) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.level = level
	c.lastReason = reason
	c.mu.Unlock()

	if from == s {
		logrus.WithFields(logrus.Fields{
			"state":  s,
			"level":  level,
			"reason": reason,
		}).Trace("charge state unchanged")
		return
	}

	logrus.WithFields(logrus.Fields{
		"from":   from,
		"to":     s,
		"level":  level,
		"reason": reason,
	}).Info("charge state changed")
	c.hub.Publish(events.ChargeState, events.ChargeStateEvent{
		From:  string(from),
		To:    string(s),
		Level: level,
		Ts:    c.now().Unix(),
	})
}

// ledColor picks the indicator code.
func ledColor(p config.LEDPolicy, atLimit, inhibited, discharging, charging bool) int {
	if p.Style == config.LEDStyleOff && !p.GreenAtLimit {
		return LEDOff
	}
	if atLimit && p.GreenAtLimit {
		return LEDGreen
	}
	if inhibited || discharging {
		return inhibitedColor(p)
	}
	if charging {
		return LEDAmber
	}
	return LEDOff
}

func inhibitedColor(p config.LEDPolicy) int {
	if p.BlinkOnDischarge {
		return LEDAmber
	}
	return LEDOff
}
