package agent

import (
	"context"

	"github.com/cshariq/Sapphire-sub003/pkg/client"
	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

// BatteryHardware is the part of the daemon API the charge and calibration
// logic drives.
type BatteryHardware interface {
	Capabilities(ctx context.Context) (smc.CapabilitySummary, error)
	SetChargeLimit(ctx context.Context, percent int) (int, error)
	EnableCharging(ctx context.Context, enabled bool) error
	SetDischarge(ctx context.Context, discharging bool) error
	SetIndicatorColor(ctx context.Context, code int) error
	StartCalibrationSetup(ctx context.Context) error
	BatteryTemperature(ctx context.Context) (float64, error)
	BatteryCharge(ctx context.Context) (int, error)
	SetSystemSleepPrevented(ctx context.Context, prevent bool) error
}

// FanHardware is the part of the daemon API the fan logic drives.
type FanHardware interface {
	FanCount(ctx context.Context) (int, error)
	FanInfo(ctx context.Context, index int) (smc.FanInfo, error)
	SetFanMode(ctx context.Context, index int, mode types.FanMode) error
	SetFanTargetSpeed(ctx context.Context, index int, rpm int) (int, error)
	SetFanConstantRPM(ctx context.Context, index int, rpm int) (int, error)
	AllKeys(ctx context.Context) ([]string, error)
	SensorValue(ctx context.Context, key string) (float64, error)
}

// Hardware is everything the agent needs from the daemon.
type Hardware interface {
	BatteryHardware
	FanHardware
}

var _ Hardware = &client.Client{}

// LED codes understood by the indicator key.
const (
	LEDOff   = 0
	LEDGreen = 1
	LEDAmber = 2
)
