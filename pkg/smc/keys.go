package smc

import "fmt"

// Controller keys used by the daemon.
const (
	KeyCountKey           = "#KEY"
	ChargeLimitKey        = "BCLM"
	BatteryChargeKey      = "BUIC"
	BatteryTemperatureKey = "TB0T"
	MagSafeLedKey         = "ACLC"
	FanCountKey           = "FNum"
	FanForceMaskKey       = "FS! "

	// ChargeInhibitKey and ChargeInhibitLegacyKey are 4-byte charge
	// inhibit switches; ChargingKey and ChargingMirrorKey are the single
	// byte switches found on older firmware.
	ChargeInhibitKey       = "CHCS"
	ChargeInhibitLegacyKey = "CHTE"
	ChargingKey            = "CH0B"
	ChargingMirrorKey      = "CH0C"

	DischargeKey       = "CHIE"
	DischargeLegacyKey = "CH0I"
)

const (
	fanIDSuffix     = "ID"
	fanMinSuffix    = "Mn"
	fanMaxSuffix    = "Mx"
	fanActualSuffix = "Ac"
	fanTargetSuffix = "Tg"
	fanModeSuffix   = "Md"
)

// MaxFans is the number of fan indexes that fit the F<i>xx key scheme.
const MaxFans = 10

// FanKey builds a per-fan key such as F0Tg. index must be below MaxFans.
func FanKey(index int, suffix string) string {
	return fmt.Sprintf("F%d%s", index, suffix)
}
