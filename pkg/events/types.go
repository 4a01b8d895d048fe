package events

import (
	"encoding/json"

	"github.com/cshariq/Sapphire-sub003/pkg/calibration"
)

// Event name constants
const (
	ChargeState         = "charge.state"
	CalibrationState    = "calibration.state"
	CalibrationUpcoming = "calibration.upcoming"
	FanUpdate           = "fan.update"
	TaskExecuted        = "task.executed"
	Warning             = "warning"
)

// Event is a generic SSE event from the agent.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// ChargeStateEvent is the payload for charge.state.
type ChargeStateEvent struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Level int    `json:"level"`
	Ts    int64  `json:"ts"`
}

// CalibrationStateEvent is the payload for calibration.state.
type CalibrationStateEvent struct {
	From     calibration.State `json:"from"`
	To       calibration.State `json:"to"`
	Progress float64           `json:"progress"`
	Ts       int64             `json:"ts"`
}

// FanUpdateEvent is the payload for fan.update.
type FanUpdateEvent struct {
	Index      int    `json:"index"`
	Mode       string `json:"mode"`
	CurrentRPM int    `json:"currentRPM"`
	TargetRPM  int    `json:"targetRPM,omitempty"`
}

// TaskExecutedEvent is the payload for task.executed.
type TaskExecutedEvent struct {
	TaskID  string `json:"taskID"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
	Ts      int64  `json:"ts"`
}

// WarningEvent is the payload for warning.
type WarningEvent struct {
	Message string `json:"message"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.CalibrationStateEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.From, payload.To)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
