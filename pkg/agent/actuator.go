package agent

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/smc"
)

// actuator switches charging on or off with whatever primitive the machine
// has: a direct enable key, or else moving the hardware charge limit.
type actuator struct {
	hw BatteryHardware

	mu     sync.Mutex
	caps   smc.CapabilitySummary
	probed bool
}

func newActuator(hw BatteryHardware) *actuator {
	return &actuator{hw: hw}
}

func (a *actuator) capabilities(ctx context.Context) smc.CapabilitySummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.probed {
		return a.caps
	}
	caps, err := a.hw.Capabilities(ctx)
	if err != nil {
		logrus.WithError(err).Debug("capabilities unavailable, assuming limit toggling")
		return caps
	}
	a.caps = caps
	a.probed = true
	return caps
}

// directCharging reports whether charging has its own switch.
func (a *actuator) directCharging(ctx context.Context) bool {
	return a.capabilities(ctx).ChargeControlKey != ""
}

// setCharging enables or inhibits charging. Without a direct switch,
// charging is enabled by raising the limit to limit and inhibited by
// dropping it to the current level.
func (a *actuator) setCharging(ctx context.Context, enabled bool, limit, level int) error {
	if a.directCharging(ctx) {
		return a.hw.EnableCharging(ctx, enabled)
	}

	target := limit
	if !enabled {
		target = max(level, 20)
	}
	_, err := a.hw.SetChargeLimit(ctx, target)
	return err
}
