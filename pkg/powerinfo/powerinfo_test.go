package powerinfo

import (
	"errors"
	"testing"

	"github.com/distatus/battery"
)

func TestFromBattery(t *testing.T) {
	tests := []struct {
		name string
		bat  battery.Battery
		want Telemetry
	}{
		{
			name: "charging",
			bat:  battery.Battery{State: battery.Charging, Current: 40, Full: 50},
			want: Telemetry{Level: 80, Charging: true, PluggedIn: true},
		},
		{
			name: "on battery",
			bat:  battery.Battery{State: battery.Discharging, Current: 12.5, Full: 50},
			want: Telemetry{Level: 25},
		},
		{
			name: "held at limit",
			bat:  battery.Battery{State: battery.Unknown, Current: 40, Full: 50},
			want: Telemetry{Level: 80, PluggedIn: true},
		},
		{
			name: "unknown capacity",
			bat:  battery.Battery{State: battery.Full},
			want: Telemetry{PluggedIn: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bat := tt.bat
			if got := FromBattery(&bat); got != tt.want {
				t.Errorf("FromBattery() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBatteryMonitorNoBattery(t *testing.T) {
	m := &BatteryMonitor{getAll: func() ([]*battery.Battery, error) { return nil, nil }}
	if _, err := m.Read(); err == nil {
		t.Fatal("expected error when no battery is present")
	}

	m.getAll = func() ([]*battery.Battery, error) { return nil, errors.New("boom") }
	if _, err := m.Read(); err == nil {
		t.Fatal("expected error to propagate")
	}
}

type fakeMonitor struct {
	t   Telemetry
	err error
}

func (f *fakeMonitor) Read() (Telemetry, error) { return f.t, f.err }

func TestWatcherNotifiesOnChange(t *testing.T) {
	m := &fakeMonitor{t: Telemetry{Level: 50, PluggedIn: true}}
	w := NewWatcher(m, 0)
	sub := w.Subscribe()

	if !w.Poll() {
		t.Fatal("first sample should count as a change")
	}
	if got := <-sub; got.Level != 50 {
		t.Fatalf("got level %d", got.Level)
	}

	if w.Poll() {
		t.Fatal("identical sample should not notify")
	}

	m.t.Level = 51
	w.Poll()
	m.t.Level = 52
	w.Poll()
	if got := <-sub; got.Level != 52 {
		t.Fatalf("subscriber should see the latest sample, got %d", got.Level)
	}

	m.err = errors.New("unavailable")
	if w.Poll() {
		t.Fatal("failed read should not notify")
	}
	if last, ok := w.Latest(); !ok || last.Level != 52 {
		t.Fatalf("Latest() = %+v, %v", last, ok)
	}
}
