package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/client"
	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/events"
	"github.com/cshariq/Sapphire-sub003/pkg/powerinfo"
	"github.com/cshariq/Sapphire-sub003/pkg/smc"
)

// Agent wires the controllers of the unprivileged side together.
type Agent struct {
	hw       Hardware
	settings config.Settings
	hub      *events.EventHub
	history  *History

	watcher *powerinfo.Watcher
	sleep   *sleepHold

	Charge      *ChargeController
	Calibration *Calibrator
	Fans        *FanController
	Schedule    *ScheduleEvaluator
	Cron        *CronScheduler
}

// New builds an agent. history may be nil, in which case scheduled tasks
// are disabled.
func New(hw Hardware, settings config.Settings, monitor powerinfo.Monitor, history *History, statePath string) *Agent {
	a := &Agent{
		hw:       hw,
		settings: settings,
		hub:      events.NewEventHub(),
		history:  history,
		watcher:  powerinfo.NewWatcher(monitor, powerinfo.DefaultPollInterval),
		sleep:    newSleepHold(hw),
	}

	a.Calibration = NewCalibrator(hw, settings, a.sleep, a.hub, statePath)
	a.Charge = NewChargeController(hw, settings, a.watcher.Latest, a.Calibration.State, a.sleep, a.hub)
	a.Fans = NewFanController(hw, settings, a.hub)
	if history != nil {
		a.Schedule = NewScheduleEvaluator(settings, history, a.Calibration, a.Fans, hw, a.watcher.Latest, a.hub)
	}
	a.Cron = NewCronScheduler(
		a.runScheduledCalibration,
		a.calibrationPreCheck,
		func(at time.Time) {
			a.hub.Publish(events.CalibrationUpcoming, map[string]any{"at": at})
		},
		func(err error) {
			logrus.WithError(err).Warn("scheduled calibration problem")
			a.hub.Publish(events.Warning, events.WarningEvent{Message: err.Error()})
		},
	)

	return a
}

// AutoCalibrationSchedule is used when automatic calibration is on and no
// explicit schedule is set: 10:00 on the 1st and 15th of every month.
const AutoCalibrationSchedule = "0 0 10 1,15 * *"

// calibrationSchedule is the cron expression the CronScheduler should
// follow. An empty result disables periodic calibration.
func calibrationSchedule(s config.Settings) string {
	if expr := s.CalibrationSchedule(); expr != "" {
		return expr
	}
	if s.AutoCalibration() {
		return AutoCalibrationSchedule
	}
	return ""
}

func (a *Agent) runScheduledCalibration() error {
	if err := a.Calibration.Start(context.Background()); err != nil {
		return err
	}
	if a.history == nil {
		return nil
	}
	if err := a.history.SetLastCalibration(time.Now()); err != nil {
		logrus.WithError(err).Warn("failed to record calibration date")
	}
	return nil
}

// Hub returns the event hub the controllers publish to.
func (a *Agent) Hub() *events.EventHub {
	return a.hub
}

func (a *Agent) calibrationPreCheck() error {
	t, ok := a.watcher.Latest()
	if !ok {
		return errors.New("battery state unknown")
	}
	if !t.PluggedIn {
		return errors.New("power adapter is not connected")
	}
	return nil
}

// Run starts every loop and blocks until ctx is done.
func (a *Agent) Run(ctx context.Context) error {
	a.checkDaemon(ctx)

	if err := a.Calibration.Resume(ctx); err != nil {
		logrus.WithError(err).Warn("failed to resume calibration")
	}
	if err := a.Fans.Discover(ctx); err != nil {
		logrus.WithError(err).Warn("fan control disabled")
	}
	if err := a.Cron.Schedule(calibrationSchedule(a.settings)); err != nil {
		logrus.WithError(err).Warn("invalid calibration schedule")
	}
	a.Cron.Start()
	defer a.Cron.Stop()

	var wg sync.WaitGroup
	spawn := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	telemetry := a.watcher.Subscribe()
	telemetryChanged := make(chan struct{}, 1)
	spawn(func() { a.watcher.Run(ctx) })
	spawn(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-telemetry:
				a.Calibration.OnTelemetry(ctx, t)
				select {
				case telemetryChanged <- struct{}{}:
				default:
				}
			}
		}
	})
	spawn(func() {
		a.Charge.Run(ctx, a.settings.Subscribe(), telemetryChanged, a.Calibration.Subscribe())
	})
	spawn(func() { a.Fans.Run(ctx) })
	if a.Schedule != nil {
		spawn(func() { a.Schedule.Run(ctx) })
	}
	spawn(func() { a.followCalibrationSchedule(ctx) })

	<-ctx.Done()
	wg.Wait()
	a.sleep.Release(context.Background(), "discharge")
	return nil
}

func (a *Agent) followCalibrationSchedule(ctx context.Context) {
	changes := a.settings.Subscribe()
	current := calibrationSchedule(a.settings)
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			expr := calibrationSchedule(a.settings)
			if expr == current {
				continue
			}
			if err := a.Cron.Schedule(expr); err != nil {
				logrus.WithError(err).WithField("schedule", expr).Warn("invalid calibration schedule")
				continue
			}
			current = expr
			logrus.WithField("schedule", expr).Info("calibration schedule updated")
		}
	}
}

// checkDaemon reports once when the daemon cannot actuate anything.
func (a *Agent) checkDaemon(ctx context.Context) {
	caps, err := a.hw.Capabilities(ctx)
	switch {
	case err == nil:
		logrus.WithFields(logrus.Fields{
			"chargeControlKey": caps.ChargeControlKey,
			"fanCount":         caps.FanCount,
		}).Info("connected to daemon")
		return
	case errors.Is(err, smc.ErrChannelUnavailable):
		err = pkgerrors.Wrap(err, "hardware control disabled")
	case errors.Is(err, client.ErrDaemonNotRunning):
		err = pkgerrors.Wrap(err, "hardware control disabled until the daemon starts")
	}
	logrus.WithError(err).Warn("daemon unavailable")
	a.hub.Publish(events.Warning, events.WarningEvent{Message: err.Error()})
}
