package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

// SetChargeLimit writes the hardware charge limit and returns the value
// actually stored after clamping.
func (c *Client) SetChargeLimit(ctx context.Context, percent int) (int, error) {
	var resp types.LimitResponse
	if err := c.putInto(ctx, "/charge-limit", percent, &resp); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to set charge limit")
	}
	return resp.Limit, nil
}

func (c *Client) EnableCharging(ctx context.Context, enabled bool) error {
	_, err := c.Put(ctx, "/charging", enabled)
	return pkgerrors.Wrapf(err, "failed to set charging to %t", enabled)
}

func (c *Client) SetDischarge(ctx context.Context, discharging bool) error {
	_, err := c.Put(ctx, "/discharge", discharging)
	return pkgerrors.Wrapf(err, "failed to set discharge to %t", discharging)
}

// SetIndicatorColor writes a raw LED code (0 off, 1 green, 2 amber).
func (c *Client) SetIndicatorColor(ctx context.Context, code int) error {
	_, err := c.Put(ctx, "/indicator", code)
	return pkgerrors.Wrap(err, "failed to set indicator color")
}

func (c *Client) StartCalibrationSetup(ctx context.Context) error {
	_, err := c.Post(ctx, "/calibration-setup")
	return pkgerrors.Wrap(err, "failed to prepare calibration")
}

func (c *Client) BatteryCharge(ctx context.Context) (int, error) {
	var charge int
	if err := c.getInto(ctx, "/battery-charge", &charge); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to get battery charge")
	}
	return charge, nil
}

func (c *Client) BatteryTemperature(ctx context.Context) (float64, error) {
	var resp types.ValueResponse
	if err := c.getInto(ctx, "/battery-temperature", &resp); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to get battery temperature")
	}
	return resp.Value, nil
}

func (c *Client) FanCount(ctx context.Context) (int, error) {
	var n int
	if err := c.getInto(ctx, "/fans", &n); err != nil {
		return 0, pkgerrors.Wrap(err, "failed to get fan count")
	}
	return n, nil
}

func (c *Client) FanInfo(ctx context.Context, index int) (smc.FanInfo, error) {
	var info smc.FanInfo
	if err := c.getInto(ctx, fanPath(index, ""), &info); err != nil {
		return info, pkgerrors.Wrapf(err, "failed to get fan %d", index)
	}
	return info, nil
}

func (c *Client) SetFanMode(ctx context.Context, index int, mode types.FanMode) error {
	_, err := c.Put(ctx, fanPath(index, "/mode"), types.FanModeRequest{Mode: mode})
	return pkgerrors.Wrapf(err, "failed to set fan %d mode to %s", index, mode)
}

// SetFanTargetSpeed returns the clamped RPM that was written.
func (c *Client) SetFanTargetSpeed(ctx context.Context, index int, rpm int) (int, error) {
	var resp types.RPMResponse
	if err := c.putInto(ctx, fanPath(index, "/target"), types.RPMRequest{RPM: rpm}, &resp); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to set fan %d target", index)
	}
	return resp.RPM, nil
}

// SetFanConstantRPM forces the fan and pins it at rpm.
func (c *Client) SetFanConstantRPM(ctx context.Context, index int, rpm int) (int, error) {
	var resp types.RPMResponse
	if err := c.putInto(ctx, fanPath(index, "/constant"), types.RPMRequest{RPM: rpm}, &resp); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to set fan %d to constant speed", index)
	}
	return resp.RPM, nil
}

func (c *Client) AllKeys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := c.getInto(ctx, "/keys", &keys); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list keys")
	}
	return keys, nil
}

func (c *Client) SensorValue(ctx context.Context, key string) (float64, error) {
	var resp types.ValueResponse
	if err := c.getInto(ctx, "/sensors/"+key, &resp); err != nil {
		return 0, pkgerrors.Wrapf(err, "failed to read sensor %s", key)
	}
	return resp.Value, nil
}

func (c *Client) SetLowPowerMode(ctx context.Context, enabled bool) error {
	_, err := c.Put(ctx, "/low-power-mode", enabled)
	return pkgerrors.Wrapf(err, "failed to set low power mode to %t", enabled)
}

// SetSystemSleepPrevented holds or releases the daemon's sleep assertion.
func (c *Client) SetSystemSleepPrevented(ctx context.Context, prevent bool) error {
	_, err := c.Put(ctx, "/system-sleep", prevent)
	return pkgerrors.Wrap(err, "failed to change system sleep assertion")
}

func (c *Client) Capabilities(ctx context.Context) (smc.CapabilitySummary, error) {
	var caps smc.CapabilitySummary
	if err := c.getInto(ctx, "/capabilities", &caps); err != nil {
		return caps, pkgerrors.Wrap(err, "failed to get capabilities")
	}
	return caps, nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	if err := c.getInto(ctx, "/version", &v); err != nil {
		return "", pkgerrors.Wrap(err, "failed to get daemon version")
	}
	return v, nil
}

func (c *Client) getInto(ctx context.Context, path string, out any) error {
	b, err := c.Get(ctx, path)
	if err != nil {
		return err
	}
	return unmarshal(b, out)
}

func (c *Client) putInto(ctx context.Context, path string, in any, out any) error {
	b, err := c.Put(ctx, path, in)
	if err != nil {
		return err
	}
	return unmarshal(b, out)
}

func unmarshal(b []byte, out any) error {
	if err := json.Unmarshal(b, out); err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal response %q", string(b))
	}
	return nil
}

func fanPath(index int, suffix string) string {
	return fmt.Sprintf("/fans/%s%s", strconv.Itoa(index), suffix)
}
