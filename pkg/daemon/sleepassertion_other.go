//go:build !darwin

package daemon

import "github.com/sirupsen/logrus"

// noopInhibitor only tracks state; there is no power management assertion
// API to call outside macOS.
type noopInhibitor struct {
	held bool
}

func newSleepInhibitor() SleepInhibitor {
	return &noopInhibitor{}
}

func (n *noopInhibitor) Prevent() error {
	if !n.held {
		logrus.Debug("system sleep assertion is not supported on this platform, recording only")
	}
	n.held = true
	return nil
}

func (n *noopInhibitor) Allow() error {
	n.held = false
	return nil
}
