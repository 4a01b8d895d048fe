package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/client"
	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/powerinfo"
)

// Options are the command line inputs of the agent.
type Options struct {
	SettingsPath   string
	StatePath      string
	HistoryPath    string
	DaemonSocket   string
	UnixSocketPath string
}

// Run serves the agent until SIGINT or SIGTERM.
func Run(opts Options) error {
	settings, err := config.NewSettingsFile(opts.SettingsPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse settings during startup")
	}
	logrus.WithFields(settings.LogrusFields()).Info("settings loaded")

	// Receive SIGHUP to reload settings
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := settings.Load(); err != nil {
				logrus.Errorf("failed to reload settings: %v", err)
				continue
			}
			logrus.WithFields(settings.LogrusFields()).Info("settings reloaded")
		}
	}()

	if err := os.MkdirAll(filepath.Dir(opts.HistoryPath), 0755); err != nil {
		return pkgerrors.Wrap(err, "failed to create state directory")
	}
	history, err := OpenHistory(opts.HistoryPath)
	if err != nil {
		logrus.WithError(err).Warn("task history unavailable, scheduled tasks disabled")
		history = nil
	} else {
		defer history.Close()
	}

	hw := client.NewClient(opts.DaemonSocket)
	defer hw.Close()

	a := New(hw, settings, powerinfo.NewBatteryMonitor(), history, opts.StatePath)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Handler: NewRouter(a),
	}

	if err := os.Remove(opts.UnixSocketPath); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrapf(err, "failed to remove stale socket %s", opts.UnixSocketPath)
	}
	listener, err := net.Listen("unix", opts.UnixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", opts.UnixSocketPath)
	}
	defer os.Remove(opts.UnixSocketPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logrus.WithField("unix", opts.UnixSocketPath).Info("agent listening")
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("agent server stopped")
			cancel()
		}
	}()

	runErr := a.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("failed to shut down agent server")
	}
	if err := settings.Save(); err != nil {
		logrus.WithError(err).Warn("failed to save settings")
	}

	logrus.Info("agent stopped")
	return runErr
}
