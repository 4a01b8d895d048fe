package daemon

import (
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

const (
	MinChargeLimit = 20
	MaxChargeLimit = 100
)

// Service is the privileged operation set. It owns the controller channel
// and serializes every call to it.
type Service struct {
	mu         sync.Mutex
	ch         *smc.Channel
	caps       smc.Capabilities
	touched    map[int]struct{}
	inhibitor  SleepInhibitor
	runCommand CommandRunner
	metrics    *Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithSleepInhibitor replaces the platform sleep inhibitor.
func WithSleepInhibitor(i SleepInhibitor) Option {
	return func(s *Service) { s.inhibitor = i }
}

// WithCommandRunner replaces the runner used for external utilities.
func WithCommandRunner(r CommandRunner) Option {
	return func(s *Service) { s.runCommand = r }
}

// WithMetrics records controller operations into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService probes ch once and returns a service bound to it. ch must
// already be open.
func NewService(ch *smc.Channel, opts ...Option) *Service {
	s := &Service{
		ch:         ch,
		touched:    map[int]struct{}{},
		inhibitor:  newSleepInhibitor(),
		runCommand: execCommand,
		metrics:    NewMetrics(nil),
	}
	for _, o := range opts {
		o(s)
	}
	s.caps = smc.Probe(ch)
	return s
}

// Capabilities returns the probe result.
func (s *Service) Capabilities() smc.Capabilities {
	return s.caps
}

// ClampChargeLimit limits percent to what the firmware accepts.
func ClampChargeLimit(percent int) int {
	return max(MinChargeLimit, min(MaxChargeLimit, percent))
}

// SetChargeLimit stores the clamped limit in BCLM and returns it.
func (s *Service) SetChargeLimit(percent int) (int, error) {
	limit := ClampChargeLimit(percent)
	err := s.do("setChargeLimit", func() error {
		return s.ch.WriteKey(smc.ChargeLimitKey, []byte{byte(limit)})
	})
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{
		"requested": percent,
		"stored":    limit,
	}).Info("charge limit set")
	return limit, nil
}

// EnableCharging enables or inhibits the charger through whichever key
// this model carries.
func (s *Service) EnableCharging(enabled bool) error {
	return s.do("enableCharging", func() error {
		return s.enableChargingLocked(enabled)
	})
}

func (s *Service) enableChargingLocked(enabled bool) error {
	key, ok := s.caps.ChargeControlKey()
	if !ok {
		return pkgerrors.Wrap(smc.ErrUnsupportedOperation, "no charge control key on this model")
	}

	var b []byte
	switch key {
	case smc.ChargeInhibitKey, smc.ChargeInhibitLegacyKey:
		if enabled {
			b = []byte{0x00, 0x00, 0x00, 0x00}
		} else {
			b = []byte{0x01, 0x00, 0x00, 0x00}
		}
	default:
		if enabled {
			b = []byte{0x00}
		} else {
			b = []byte{0x02}
		}
	}

	if mirror, ok := s.caps.ChargeMirrorKey(); ok {
		if err := s.ch.WriteKey(mirror, b); err != nil {
			logrus.WithError(err).WithField("key", mirror).Warn("failed to mirror charge control")
		}
	}
	if err := s.ch.WriteKey(key, b); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"key":     key,
		"enabled": enabled,
	}).Debug("charging control written")
	return nil
}

// SetDischarge forces the battery to power the machine even on adapter.
// Stopping is a no-op on models without a discharge key.
func (s *Service) SetDischarge(discharging bool) error {
	return s.do("setDischarge", func() error {
		return s.setDischargeLocked(discharging)
	})
}

func (s *Service) setDischargeLocked(discharging bool) error {
	key, ok := s.caps.DischargeControlKey()
	if !ok {
		if !discharging {
			return nil
		}
		return pkgerrors.Wrap(smc.ErrUnsupportedOperation, "no discharge control key on this model")
	}

	var b byte
	switch key {
	case smc.DischargeKey:
		if discharging {
			b = 0x08
		}
	default:
		if discharging {
			b = 0x01
		}
	}

	if err := s.ch.WriteKey(key, []byte{b}); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"key":         key,
		"discharging": discharging,
	}).Debug("discharge control written")
	return nil
}

// SetIndicatorColor writes the MagSafe LED code. Models without the LED
// key silently ignore it.
func (s *Service) SetIndicatorColor(code int) error {
	if code < 0 || code > 0xff {
		return pkgerrors.Wrapf(types.ErrBadRequest, "indicator code %d out of range", code)
	}
	return s.do("setIndicatorColor", func() error {
		key, ok := s.caps.MagSafeLEDKey()
		if !ok {
			logrus.WithField("code", code).Trace("no MagSafe LED on this model, ignoring")
			return nil
		}
		return s.ch.WriteKey(key, []byte{byte(code)})
	})
}

// StartCalibrationSetup stops discharging, enables charging and lifts the
// limit to 100%, in that order. Steps the model has no key for are skipped.
// The first failure is returned and nothing is rolled back.
func (s *Service) StartCalibrationSetup() error {
	return s.do("startCalibrationSetup", func() error {
		_, direct := s.caps.ChargeControlKey()
		_, hasLimit := s.caps.ChargeLimitKey()
		if !direct && !hasLimit {
			return pkgerrors.Wrap(smc.ErrUnsupportedOperation, "no way to control charging on this model")
		}

		if err := s.setDischargeLocked(false); err != nil {
			return pkgerrors.Wrap(err, "failed to stop discharging")
		}
		if direct {
			if err := s.enableChargingLocked(true); err != nil {
				return pkgerrors.Wrap(err, "failed to enable charging")
			}
		}
		if hasLimit {
			if err := s.ch.WriteKey(smc.ChargeLimitKey, []byte{MaxChargeLimit}); err != nil {
				return pkgerrors.Wrap(err, "failed to lift charge limit")
			}
		}
		return nil
	})
}

// AllKeys enumerates the controller.
func (s *Service) AllKeys() ([]string, error) {
	var keys []string
	err := s.do("allKeys", func() error {
		var err error
		keys, err = s.ch.EnumerateKeys()
		return err
	})
	return keys, err
}

// SensorValue reads and decodes key.
func (s *Service) SensorValue(key string) (float64, error) {
	var v float64
	err := s.do("sensorValue", func() error {
		var err error
		v, err = s.ch.ReadValue(key)
		return err
	})
	return v, err
}

// BatteryTemperature reads TB0T in Celsius.
func (s *Service) BatteryTemperature() (float64, error) {
	return s.SensorValue(smc.BatteryTemperatureKey)
}

// BatteryCharge reads the controller's own state of charge from BUIC.
func (s *Service) BatteryCharge() (int, error) {
	v, err := s.SensorValue(smc.BatteryChargeKey)
	return int(v), err
}

// PreventSystemSleep takes the system sleep assertion.
func (s *Service) PreventSystemSleep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inhibitor.Prevent()
}

// AllowSystemSleep releases the system sleep assertion.
func (s *Service) AllowSystemSleep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inhibitor.Allow()
}

// Close puts every fan this service forced back into automatic mode,
// releases the sleep assertion and closes the channel.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for index := range s.touched {
		logrus.WithField("fan", index).Info("reverting fan to automatic mode")
		if err := s.setFanAutoLocked(index); err != nil {
			logrus.WithError(err).WithField("fan", index).Error("failed to revert fan to automatic mode")
		}
	}
	s.touched = map[int]struct{}{}

	if err := s.inhibitor.Allow(); err != nil {
		logrus.WithError(err).Error("failed to release sleep assertion")
	}

	return s.ch.Close()
}

// do runs fn under the service lock and records the outcome.
func (s *Service) do(op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := fn()
	s.metrics.observe(op, err)
	if err != nil {
		logrus.WithError(err).WithField("op", op).Error("controller operation failed")
	}
	return err
}
