package smc

import (
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FanInfo describes one fan as reported by the controller.
type FanInfo struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	MinRPM     int    `json:"minRPM"`
	MaxRPM     int    `json:"maxRPM"`
	CurrentRPM int    `json:"currentRPM"`
	TargetRPM  int    `json:"targetRPM"`
	Forced     bool   `json:"forced"`
}

// ClampRPM limits rpm to the fan's bounds.
func (f FanInfo) ClampRPM(rpm int) int {
	if f.MaxRPM < f.MinRPM {
		return rpm
	}
	return max(f.MinRPM, min(f.MaxRPM, rpm))
}

// ReadFanCount reads FNum.
func (c *Channel) ReadFanCount() (int, error) {
	v, err := c.ReadValue(FanCountKey)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// ReadFanInfo reads the descriptor of fan index. Only the bounds are
// mandatory; the name and live values fall back to defaults.
func (c *Channel) ReadFanInfo(index int) (FanInfo, error) {
	logrus.Tracef("ReadFanInfo(%d) called", index)

	info := FanInfo{Index: index}

	minRPM, err := c.ReadValue(FanKey(index, fanMinSuffix))
	if err != nil {
		return info, pkgerrors.Wrapf(err, "fan %d", index)
	}
	maxRPM, err := c.ReadValue(FanKey(index, fanMaxSuffix))
	if err != nil {
		return info, pkgerrors.Wrapf(err, "fan %d", index)
	}
	info.MinRPM = int(math.Round(minRPM))
	info.MaxRPM = int(math.Round(maxRPM))

	if name, err := c.ReadString(FanKey(index, fanIDSuffix)); err == nil && name != "" {
		info.Name = name
	} else {
		info.Name = fmt.Sprintf("Fan %d", index)
	}
	if v, err := c.ReadValue(FanKey(index, fanActualSuffix)); err == nil {
		info.CurrentRPM = int(math.Round(v))
	}
	if v, err := c.ReadValue(FanKey(index, fanTargetSuffix)); err == nil {
		info.TargetRPM = int(math.Round(v))
	}
	if v, err := c.ReadValue(FanKey(index, fanModeSuffix)); err == nil {
		info.Forced = v != 0
	}

	return info, nil
}

// WriteFanTarget writes rpm to F<i>Tg using whatever encoding the key
// reports. No clamping happens here.
func (c *Channel) WriteFanTarget(index int, rpm int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	code := FanKey(index, fanTargetSuffix)
	k, err := c.readKey(code)
	if err != nil {
		return err
	}

	var b []byte
	switch k.Type {
	case TypeFLT, TypeFPE2:
		b, err = Encode(float64(rpm), k.Type)
		if err != nil {
			return err
		}
	default:
		return pkgerrors.Wrapf(ErrUnsupportedType, "fan target key %s has type %q", code, string(k.Type))
	}

	logrus.WithFields(logrus.Fields{
		"fan":  index,
		"rpm":  rpm,
		"type": k.Type,
	}).Debug("writing fan target")

	return c.writeKey(code, b)
}
