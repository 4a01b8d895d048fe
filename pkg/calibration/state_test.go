package calibration

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestActive(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{Idle(), false},
		{ChargingToFull(), true},
		{HoldingAtFull(time.Minute), true},
		{DischargingToLow(), true},
		{FinalChargeToLimit(), true},
		{Done(), false},
		{Failed("boom"), false},
	}
	for _, tt := range tests {
		if got := tt.state.Active(); got != tt.want {
			t.Errorf("%s.Active() = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name  string
		state State
		level int
		limit int
		want  float64
	}{
		{"charging half way", ChargingToFull(), 50, 80, 0.5},
		{"hold just started", HoldingAtFull(HoldDuration), 100, 80, 0},
		{"hold quarter left", HoldingAtFull(HoldDuration / 4), 100, 80, 0.75},
		{"discharging from full", DischargingToLow(), 100, 80, 0},
		{"discharging at threshold", DischargingToLow(), 10, 80, 1},
		{"discharging below threshold", DischargingToLow(), 5, 80, 1},
		{"final charge", FinalChargeToLimit(), 40, 80, 0.5},
		{"final charge without limit", FinalChargeToLimit(), 40, 0, 0},
		{"done", Done(), 80, 80, 1},
		{"error", Failed("x"), 80, 80, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.state.Progress(tt.level, tt.limit)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Progress() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHoldingAtFullNeverNegative(t *testing.T) {
	if s := HoldingAtFull(-time.Second); s.HoldRemaining != 0 {
		t.Errorf("expected 0, got %s", s.HoldRemaining)
	}
}

func TestRecordPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "calibration.json")

	rec, err := LoadRecord(path)
	if err != nil {
		t.Fatal(err)
	}
	if rec.State.Kind != KindIdle {
		t.Fatalf("missing file should load as idle, got %s", rec.State)
	}

	end := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := Record{
		State:         HoldingAtFull(30 * time.Minute),
		OriginalLimit: 80,
		StartedAt:     end.Add(-3 * time.Hour),
		HoldEndsAt:    end,
	}
	if err := SaveRecord(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadRecord(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != want.State || got.OriginalLimit != 80 || !got.HoldEndsAt.Equal(end) {
		t.Errorf("LoadRecord() = %+v, want %+v", got, want)
	}
}
