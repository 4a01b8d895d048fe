package daemon

import (
	"os/exec"
	"strings"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CommandRunner runs an external program and returns its combined output.
type CommandRunner func(name string, args ...string) ([]byte, error)

func execCommand(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// SetLowPowerMode toggles macOS Low Power Mode through pmset.
func (s *Service) SetLowPowerMode(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := "0"
	if enabled {
		value = "1"
	}

	out, err := s.runCommand("pmset", "-a", "lowpowermode", value)
	s.metrics.observe("setLowPowerMode", err)
	if err != nil {
		var exitErr *exec.ExitError
		if pkgerrors.As(err, &exitErr) {
			return pkgerrors.Errorf("pmset exited with status %d: %s", exitErr.ExitCode(), strings.TrimSpace(string(out)))
		}
		return pkgerrors.Wrap(err, "failed to run pmset")
	}

	logrus.WithField("enabled", enabled).Info("low power mode set")
	return nil
}
