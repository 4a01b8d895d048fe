package agent

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/teambition/rrule-go"

	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/events"
	"github.com/cshariq/Sapphire-sub003/pkg/powerinfo"
	"github.com/cshariq/Sapphire-sub003/pkg/smc"
)

// ScheduleCheckInterval is how often scheduled tasks are checked.
const ScheduleCheckInterval = time.Minute

// CalibrationStarter starts a calibration run.
type CalibrationStarter interface {
	Start(ctx context.Context) error
}

// FanModeSetter changes fan modes.
type FanModeSetter interface {
	FanCount() int
	SetMode(ctx context.Context, index int, mode config.FanMode) error
}

// ScheduleEvaluator fires the user's scheduled tasks. Periodic automatic
// calibration belongs to the CronScheduler.
type ScheduleEvaluator struct {
	settings    config.Settings
	history     *History
	calibration CalibrationStarter
	fans        FanModeSetter
	hw          BatteryHardware
	telemetry   func() (powerinfo.Telemetry, bool)
	hub         *events.EventHub

	now func() time.Time
}

func NewScheduleEvaluator(
	settings config.Settings,
	history *History,
	cal CalibrationStarter,
	fans FanModeSetter,
	hw BatteryHardware,
	telemetry func() (powerinfo.Telemetry, bool),
	hub *events.EventHub,
) *ScheduleEvaluator {
	return &ScheduleEvaluator{
		settings:    settings,
		history:     history,
		calibration: cal,
		fans:        fans,
		hw:          hw,
		telemetry:   telemetry,
		hub:         hub,
		now:         time.Now,
	}
}

// Run checks every ScheduleCheckInterval until ctx is done.
func (s *ScheduleEvaluator) Run(ctx context.Context) {
	ticker := time.NewTicker(ScheduleCheckInterval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check fires everything due at the current minute.
func (s *ScheduleEvaluator) Check(ctx context.Context) {
	now := s.now()

	for _, task := range s.settings.Tasks() {
		if !task.Active {
			continue
		}
		due, err := s.due(task, now)
		if err != nil {
			logrus.WithError(err).WithField("task", task.ID).Warn("invalid task schedule")
			continue
		}
		if due {
			s.execute(ctx, task, now)
		}
	}
}

// due reports whether task has an occurrence in now's minute that has not
// run yet.
func (s *ScheduleEvaluator) due(task config.ScheduledTask, now time.Time) (bool, error) {
	rr, err := TaskRule(task)
	if err != nil {
		return false, err
	}

	minute := now.Truncate(time.Minute)
	occ := rr.Between(minute, minute.Add(time.Minute-time.Nanosecond), true)
	if len(occ) == 0 {
		return false, nil
	}

	last, ran, err := s.history.LastRun(task.ID)
	if err != nil {
		return false, err
	}
	if ran && !last.Before(occ[0]) {
		return false, nil
	}
	return true, nil
}

// NextRun returns the next occurrence of task after now.
func NextRun(task config.ScheduledTask, now time.Time) (time.Time, bool) {
	rr, err := TaskRule(task)
	if err != nil {
		return time.Time{}, false
	}
	next := rr.After(now, false)
	return next, !next.IsZero()
}

// TaskRule expresses the task's repeat rule as a recurrence starting at
// its start time.
func TaskRule(task config.ScheduledTask) (*rrule.RRule, error) {
	st := task.StartTime
	opt := rrule.ROption{
		Dtstart: time.Date(st.Year(), st.Month(), st.Day(), st.Hour(), st.Minute(), 0, 0, st.Location()),
	}

	switch task.Repeat {
	case config.RepeatNever:
		opt.Freq = rrule.DAILY
		opt.Count = 1
	case config.RepeatDaily:
		opt.Freq = rrule.DAILY
	case config.RepeatWeekdays:
		opt.Freq = rrule.DAILY
		opt.Byweekday = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR}
	case config.RepeatWeekly:
		opt.Freq = rrule.WEEKLY
	case config.RepeatBiweekly:
		opt.Freq = rrule.WEEKLY
		opt.Interval = 2
	case config.RepeatMonthly:
		opt.Freq = rrule.MONTHLY
	default:
		return nil, pkgerrors.Errorf("unknown repeat rule %q", task.Repeat)
	}

	return rrule.NewRRule(opt)
}

func (s *ScheduleEvaluator) execute(ctx context.Context, task config.ScheduledTask, now time.Time) {
	log := logrus.WithFields(logrus.Fields{
		"task":   task.ID,
		"action": task.Action,
	})

	err := s.run(ctx, task)
	entry := HistoryEntry{
		TaskID:  task.ID,
		Summary: "Executed: " + task.Action.DisplayName(),
		Time:    now,
	}
	if err != nil {
		log.WithError(err).Error("scheduled task failed")
		entry.Error = err.Error()
	} else {
		log.Info("scheduled task executed")
	}

	if herr := s.history.Record(entry); herr != nil {
		log.WithError(herr).Warn("failed to record task history")
	}
	s.hub.Publish(events.TaskExecuted, events.TaskExecutedEvent{
		TaskID:  entry.TaskID,
		Summary: entry.Summary,
		Error:   entry.Error,
		Ts:      now.Unix(),
	})
}

func (s *ScheduleEvaluator) run(ctx context.Context, task config.ScheduledTask) error {
	switch task.Action {
	case config.ActionSetChargeLimit:
		return s.settings.SetChargeLimit(task.Value)
	case config.ActionStartCalibration:
		return s.calibration.Start(ctx)
	case config.ActionTopUp:
		if err := s.settings.SetChargeLimit(100); err != nil {
			return err
		}
		// Limit-only models start charging once the raised limit is applied.
		if err := s.hw.EnableCharging(ctx, true); err != nil && !errors.Is(err, smc.ErrUnsupportedOperation) {
			return err
		}
		return nil
	case config.ActionPauseCharging:
		t, ok := s.telemetry()
		if !ok {
			return pkgerrors.New("battery level unknown")
		}
		return s.settings.SetChargeLimit(max(20, t.Level))
	case config.ActionDischargeTo:
		if err := s.settings.SetChargeLimit(task.Value); err != nil {
			return err
		}
		s.settings.SetDischargeToLimit(true)
		return nil
	case config.ActionSetFanAuto:
		return s.setAllFans(ctx, config.AutomaticFan())
	case config.ActionSetFanConstant:
		return s.setAllFans(ctx, config.ConstantFan(task.FanSpeed))
	case config.ActionSetFanSensorBased:
		return s.setAllFans(ctx, config.SensorCurveFan(task.SensorKey, task.MinTemp, task.MaxTemp))
	default:
		return pkgerrors.Errorf("unknown action %q", task.Action)
	}
}

func (s *ScheduleEvaluator) setAllFans(ctx context.Context, mode config.FanMode) error {
	var firstErr error
	for i := 0; i < s.fans.FanCount(); i++ {
		if err := s.fans.SetMode(ctx, i, mode); err != nil && firstErr == nil {
			firstErr = pkgerrors.Wrapf(err, "fan %d", i)
		}
	}
	return firstErr
}
