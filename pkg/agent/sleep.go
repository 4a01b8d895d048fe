package agent

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// sleepHold shares the daemon's single sleep assertion between the
// features that want it. The assertion is held while any holder is.
type sleepHold struct {
	hw BatteryHardware

	mu      sync.Mutex
	holders map[string]struct{}
}

func newSleepHold(hw BatteryHardware) *sleepHold {
	return &sleepHold{hw: hw, holders: map[string]struct{}{}}
}

func (s *sleepHold) Acquire(ctx context.Context, holder string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holders[holder]; ok {
		return
	}
	if len(s.holders) == 0 {
		if err := s.hw.SetSystemSleepPrevented(ctx, true); err != nil {
			logrus.WithError(err).WithField("holder", holder).Error("failed to prevent system sleep")
			return
		}
		logrus.WithField("holder", holder).Info("preventing system sleep")
	}
	s.holders[holder] = struct{}{}
}

func (s *sleepHold) Release(ctx context.Context, holder string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.holders[holder]; !ok {
		return
	}
	delete(s.holders, holder)
	if len(s.holders) > 0 {
		return
	}
	if err := s.hw.SetSystemSleepPrevented(ctx, false); err != nil {
		logrus.WithError(err).WithField("holder", holder).Error("failed to allow system sleep")
		return
	}
	logrus.WithField("holder", holder).Info("allowing system sleep")
}

func (s *sleepHold) Held(holder string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.holders[holder]
	return ok
}
