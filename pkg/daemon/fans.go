package daemon

import (
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

// FanCount returns the live FNum value, falling back to the probed count.
func (s *Service) FanCount() int {
	n := s.caps.FanCount()
	_ = s.do("fanCount", func() error {
		v, err := s.ch.ReadFanCount()
		if err != nil {
			return err
		}
		n = v
		return nil
	})
	return n
}

// FanInfo describes fan index.
func (s *Service) FanInfo(index int) (smc.FanInfo, error) {
	var info smc.FanInfo
	err := s.do("fanInfo", func() error {
		if err := s.checkFanIndex(index); err != nil {
			return err
		}
		var err error
		info, err = s.ch.ReadFanInfo(index)
		return err
	})
	return info, err
}

// SetFanMode switches fan index between the controller's curve and forced
// mode. Returning to automatic also zeroes the target.
func (s *Service) SetFanMode(index int, mode types.FanMode) error {
	return s.do("setFanMode", func() error {
		if err := s.checkFanIndex(index); err != nil {
			return err
		}
		switch mode {
		case types.FanModeAuto:
			return s.setFanAutoLocked(index)
		case types.FanModeForced:
			if err := s.ch.SetFanForceBit(index, true); err != nil {
				return err
			}
			s.touched[index] = struct{}{}
			return nil
		default:
			return pkgerrors.Wrapf(types.ErrBadRequest, "unknown fan mode %q", mode)
		}
	})
}

// SetFanTargetSpeed writes rpm, clamped to the fan's bounds, without
// touching the mode. The stored value is returned.
func (s *Service) SetFanTargetSpeed(index int, rpm int) (int, error) {
	var stored int
	err := s.do("setFanTargetSpeed", func() error {
		var err error
		stored, err = s.writeClampedTargetLocked(index, rpm)
		return err
	})
	return stored, err
}

// SetFanConstantRPM forces fan index and then writes rpm. The speed is not
// written when forcing fails; a failed speed write reverts the fan to
// automatic.
func (s *Service) SetFanConstantRPM(index int, rpm int) (int, error) {
	var stored int
	err := s.do("setFanConstantRPM", func() error {
		if err := s.checkFanIndex(index); err != nil {
			return err
		}

		log := logrus.WithFields(logrus.Fields{
			"fan": index,
			"rpm": rpm,
		})

		if err := s.ch.SetFanForceBit(index, true); err != nil {
			log.WithError(err).Error("failed to force fan, not writing target")
			return pkgerrors.Wrapf(err, "failed to force fan %d", index)
		}
		s.touched[index] = struct{}{}

		var err error
		stored, err = s.writeClampedTargetLocked(index, rpm)
		if err != nil {
			log.WithError(err).Error("failed to write fan target, reverting to automatic")
			if revertErr := s.setFanAutoLocked(index); revertErr != nil {
				log.WithError(revertErr).Error("failed to revert fan to automatic mode")
			}
			return err
		}

		log.WithField("stored", stored).Info("fan set to constant speed")
		return nil
	})
	return stored, err
}

func (s *Service) writeClampedTargetLocked(index int, rpm int) (int, error) {
	if err := s.checkFanIndex(index); err != nil {
		return 0, err
	}
	info, err := s.ch.ReadFanInfo(index)
	if err != nil {
		return 0, err
	}
	target := info.ClampRPM(rpm)
	if err := s.ch.WriteFanTarget(index, target); err != nil {
		return 0, err
	}
	s.metrics.setFanTarget(index, target)
	return target, nil
}

func (s *Service) setFanAutoLocked(index int) error {
	if err := s.ch.SetFanForceBit(index, false); err != nil {
		return err
	}
	delete(s.touched, index)
	if err := s.ch.WriteFanTarget(index, 0); err != nil {
		logrus.WithError(err).WithField("fan", index).Debug("failed to zero fan target")
	}
	s.metrics.setFanTarget(index, 0)
	return nil
}

func (s *Service) checkFanIndex(index int) error {
	if index < 0 {
		return pkgerrors.Wrapf(types.ErrBadRequest, "fan index %d out of range", index)
	}
	if index >= smc.MaxFans {
		return pkgerrors.Wrapf(smc.ErrKeyNotFound, "fan %d has no controller keys", index)
	}
	if n := s.caps.FanCount(); n > 0 && index >= n {
		return pkgerrors.Wrapf(smc.ErrKeyNotFound, "fan %d does not exist, %d fans present", index, n)
	}
	return nil
}
