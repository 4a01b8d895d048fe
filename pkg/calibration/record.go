package calibration

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Record is the persisted form of a calibration run.
type Record struct {
	State         State     `json:"state"`
	OriginalLimit int       `json:"originalLimit"`
	StartedAt     time.Time `json:"startedAt"`
	// HoldEndsAt is set while holding at full so the remaining time
	// survives a restart.
	HoldEndsAt time.Time `json:"holdEndsAt,omitempty"`
}

// LoadRecord reads a record from path. A missing file yields an idle record.
func LoadRecord(path string) (Record, error) {
	rec := Record{State: Idle()}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rec, nil
		}
		return rec, pkgerrors.Wrapf(err, "failed to read calibration state %s", path)
	}
	if len(b) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{State: Idle()}, pkgerrors.Wrapf(err, "failed to parse calibration state %s", path)
	}
	if rec.State.Kind == "" {
		rec.State = Idle()
	}
	return rec, nil
}

// SaveRecord writes rec to path.
func SaveRecord(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create directory for %s", path)
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal calibration state")
	}
	return pkgerrors.Wrapf(os.WriteFile(path, b, 0644), "failed to write calibration state %s", path)
}
