// Package daemon installs and removes the launchd jobs that keep the
// privileged daemon and the per-user agent running.
package daemon

import (
	"os"
	"os/exec"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"howett.net/plist"
)

const (
	DaemonLabel = "com.sapphire.smcctl.daemon"
	AgentLabel  = "com.sapphire.smcctl.agent"

	SystemPlistDir = "/Library/LaunchDaemons"
)

// Job is one launchd job definition.
type Job struct {
	Label             string   `plist:"Label"`
	ProgramArguments  []string `plist:"ProgramArguments"`
	RunAtLoad         bool     `plist:"RunAtLoad"`
	KeepAlive         bool     `plist:"KeepAlive"`
	StandardOutPath   string   `plist:"StandardOutPath,omitempty"`
	StandardErrorPath string   `plist:"StandardErrorPath,omitempty"`
	ProcessType       string   `plist:"ProcessType,omitempty"`
}

// seams for tests
var (
	launchctl = func(args ...string) error {
		out, err := exec.Command("/bin/launchctl", args...).CombinedOutput()
		if err != nil {
			return pkgerrors.Wrapf(err, "launchctl %v: %s", args, out)
		}
		return nil
	}
	chownRoot = func(path string) error { return os.Chown(path, 0, 0) }
)

// DaemonJob is the system-wide job running exe as the privileged daemon.
func DaemonJob(exe string) Job {
	return Job{
		Label:             DaemonLabel,
		ProgramArguments:  []string{exe, "daemon"},
		RunAtLoad:         true,
		KeepAlive:         true,
		StandardOutPath:   "/var/log/smcctl.log",
		StandardErrorPath: "/var/log/smcctl.log",
		ProcessType:       "Interactive",
	}
}

// AgentJob is the per-user job running exe as the agent.
func AgentJob(exe, logDir string) Job {
	return Job{
		Label:             AgentLabel,
		ProgramArguments:  []string{exe, "agent"},
		RunAtLoad:         true,
		KeepAlive:         true,
		StandardOutPath:   filepath.Join(logDir, "smcctl-agent.log"),
		StandardErrorPath: filepath.Join(logDir, "smcctl-agent.log"),
	}
}

// PlistPath is where job's definition lives inside dir.
func PlistPath(dir string, job Job) string {
	return filepath.Join(dir, job.Label+".plist")
}

// Encode renders job as an XML property list.
func Encode(job Job) ([]byte, error) {
	b, err := plist.MarshalIndent(job, plist.XMLFormat, "\t")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to encode %s", job.Label)
	}
	return b, nil
}

// CurrentExecutable returns the absolute path of the running binary.
func CurrentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to get the path to the current executable")
	}
	exe, err = filepath.Abs(exe)
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to get the absolute path to the current executable")
	}
	return exe, nil
}

// Install writes job into dir and loads it. System jobs (dir ==
// SystemPlistDir) are owned by root:wheel.
func Install(dir string, job Job) error {
	path := PlistPath(dir, job)

	b, err := Encode(job)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", dir)
	}
	if _, err := os.Stat(path); err == nil {
		return pkgerrors.Errorf("%s already exists, uninstall first", path)
	}

	logrus.WithField("path", path).Info("writing launchd job")
	if err := os.WriteFile(path, b, 0644); err != nil {
		return pkgerrors.Wrapf(err, "failed to write %s", path)
	}
	if dir == SystemPlistDir {
		if err := chownRoot(path); err != nil {
			return pkgerrors.Wrapf(err, "failed to chown %s", path)
		}
	}

	logrus.WithField("label", job.Label).Info("loading launchd job")
	if err := launchctl("load", path); err != nil {
		return pkgerrors.Wrapf(err, "failed to load %s", path)
	}
	return nil
}

// Uninstall unloads job and removes its definition. A job that is not
// installed is not an error.
func Uninstall(dir string, job Job) error {
	path := PlistPath(dir, job)

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			logrus.WithField("path", path).Debug("launchd job not installed")
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to stat %s", path)
	}

	logrus.WithField("label", job.Label).Info("unloading launchd job")
	if err := launchctl("unload", path); err != nil {
		logrus.WithError(err).Warn("failed to unload launchd job, removing it anyway")
	}
	if err := os.Remove(path); err != nil {
		return pkgerrors.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}
