// Package powerinfo reads battery telemetry from the operating system.
package powerinfo

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultPollInterval is how often Watch samples the battery.
const DefaultPollInterval = 5 * time.Second

// Telemetry is one battery sample.
type Telemetry struct {
	Level     int  `json:"level"`
	Charging  bool `json:"charging"`
	PluggedIn bool `json:"pluggedIn"`
}

// Monitor provides battery telemetry.
type Monitor interface {
	Read() (Telemetry, error)
}

// BatteryMonitor reads the first system battery.
type BatteryMonitor struct {
	getAll func() ([]*battery.Battery, error)
}

var _ Monitor = &BatteryMonitor{}

// NewBatteryMonitor returns a Monitor backed by the OS battery API.
func NewBatteryMonitor() *BatteryMonitor {
	return &BatteryMonitor{getAll: battery.GetAll}
}

func (m *BatteryMonitor) Read() (Telemetry, error) {
	batteries, err := m.getAll()
	if err != nil {
		return Telemetry{}, pkgerrors.Wrap(err, "failed to read battery")
	}
	if len(batteries) == 0 {
		return Telemetry{}, pkgerrors.New("no batteries found")
	}

	// Laptops this runs on carry a single battery.
	return FromBattery(batteries[0]), nil
}

// FromBattery converts an OS battery reading.
func FromBattery(bat *battery.Battery) Telemetry {
	t := Telemetry{
		Charging:  bat.State == battery.Charging,
		PluggedIn: bat.State != battery.Discharging && bat.State != battery.Empty,
	}
	if bat.Full > 0 {
		t.Level = int(math.Round(bat.Current / bat.Full * 100))
		t.Level = max(0, min(100, t.Level))
	}
	return t
}

// Watcher polls a Monitor and delivers changed samples to its subscribers.
type Watcher struct {
	monitor  Monitor
	interval time.Duration

	mu     sync.RWMutex
	last   Telemetry
	valid  bool
	notify []chan Telemetry
}

// NewWatcher returns a watcher polling m every interval.
func NewWatcher(m Monitor, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{monitor: m, interval: interval}
}

// Subscribe returns a channel receiving every changed sample. Slow readers
// only see the latest one.
func (w *Watcher) Subscribe() <-chan Telemetry {
	ch := make(chan Telemetry, 1)
	w.mu.Lock()
	w.notify = append(w.notify, ch)
	w.mu.Unlock()
	return ch
}

// Latest returns the last good sample.
func (w *Watcher) Latest() (Telemetry, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last, w.valid
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll()
		}
	}
}

// Poll takes one sample and reports whether it differed from the last one.
func (w *Watcher) Poll() bool {
	t, err := w.monitor.Read()
	if err != nil {
		logrus.WithError(err).Debug("battery telemetry unavailable")
		return false
	}

	w.mu.Lock()
	changed := !w.valid || t != w.last
	w.last = t
	w.valid = true
	subs := w.notify
	w.mu.Unlock()

	if !changed {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"level":     t.Level,
		"charging":  t.Charging,
		"pluggedIn": t.PluggedIn,
	}).Debug("battery telemetry changed")

	for _, ch := range subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- t:
		default:
		}
	}
	return true
}
