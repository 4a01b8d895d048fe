package calibration

import (
	"fmt"
	"time"
)

const (
	// HoldDuration is how long the battery is held at full charge.
	HoldDuration = 2 * time.Hour
	// LowThreshold is the level the battery is drained to.
	LowThreshold = 10
)

// Kind names a calibration state.
type Kind string

const (
	KindIdle               Kind = "idle"
	KindChargingToFull     Kind = "chargingToFull"
	KindHoldingAtFull      Kind = "holdingAtFull"
	KindDischargingToLow   Kind = "dischargingToLow"
	KindFinalChargeToLimit Kind = "finalChargeToLimit"
	KindDone               Kind = "done"
	KindError              Kind = "error"
)

// State is a calibration state. HoldRemaining is only meaningful for
// KindHoldingAtFull and Message only for KindError.
type State struct {
	Kind          Kind          `json:"kind"`
	HoldRemaining time.Duration `json:"holdRemaining,omitempty"`
	Message       string        `json:"message,omitempty"`
}

func Idle() State               { return State{Kind: KindIdle} }
func ChargingToFull() State     { return State{Kind: KindChargingToFull} }
func DischargingToLow() State   { return State{Kind: KindDischargingToLow} }
func FinalChargeToLimit() State { return State{Kind: KindFinalChargeToLimit} }
func Done() State               { return State{Kind: KindDone} }

// HoldingAtFull returns the hold state with remaining time left.
func HoldingAtFull(remaining time.Duration) State {
	return State{Kind: KindHoldingAtFull, HoldRemaining: max(0, remaining)}
}

// Failed returns the terminal error state.
func Failed(message string) State {
	return State{Kind: KindError, Message: message}
}

// Active reports whether a calibration run is in progress.
func (s State) Active() bool {
	switch s.Kind {
	case KindChargingToFull, KindHoldingAtFull, KindDischargingToLow, KindFinalChargeToLimit:
		return true
	default:
		return false
	}
}

// Progress estimates how far the current step is, in [0, 1].
func (s State) Progress(level, originalLimit int) float64 {
	var p float64
	switch s.Kind {
	case KindChargingToFull:
		p = float64(level) / 100
	case KindHoldingAtFull:
		p = 1 - s.HoldRemaining.Seconds()/HoldDuration.Seconds()
	case KindDischargingToLow:
		p = 1 - float64(level-LowThreshold)/float64(100-LowThreshold)
	case KindFinalChargeToLimit:
		if originalLimit <= 0 {
			return 0
		}
		p = float64(level) / float64(originalLimit)
	case KindDone:
		return 1
	default:
		return 0
	}
	return max(0, min(1, p))
}

func (s State) String() string {
	switch s.Kind {
	case KindHoldingAtFull:
		return fmt.Sprintf("%s(%s)", s.Kind, s.HoldRemaining.Truncate(time.Second))
	case KindError:
		return fmt.Sprintf("%s(%s)", s.Kind, s.Message)
	default:
		return string(s.Kind)
	}
}

// Description is a human readable label for the state.
func (s State) Description() string {
	switch s.Kind {
	case KindIdle:
		return "Not calibrating"
	case KindChargingToFull:
		return "Charging to 100%"
	case KindHoldingAtFull:
		return fmt.Sprintf("Holding at 100%% (%s left)", s.HoldRemaining.Truncate(time.Second))
	case KindDischargingToLow:
		return fmt.Sprintf("Discharging to %d%%", LowThreshold)
	case KindFinalChargeToLimit:
		return "Charging back to limit"
	case KindDone:
		return "Calibration complete"
	case KindError:
		return "Calibration failed: " + s.Message
	default:
		return string(s.Kind)
	}
}

// Status is the calibration view served by the agent.
type Status struct {
	State         State     `json:"state"`
	Description   string    `json:"description"`
	Progress      float64   `json:"progress"`
	OriginalLimit int       `json:"originalLimit,omitempty"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
	NextScheduled time.Time `json:"nextScheduled,omitempty"`
	LastScheduled time.Time `json:"lastScheduled,omitempty"`
}
