package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cshariq/Sapphire-sub003/pkg/config"
	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/trust"
)

// Options are the command line inputs of the daemon.
type Options struct {
	ConfigPath     string
	UnixSocketPath string
	AllowNonRoot   bool
	// Simulate serves an in-memory controller instead of the real one.
	Simulate bool
	// Resolver overrides the platform code signature resolver.
	Resolver trust.Resolver
}

// Run opens the controller and serves the RPC surface until SIGINT or
// SIGTERM.
func Run(opts Options) error {
	conf, err := config.NewDaemonFile(opts.ConfigPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	var ch *smc.Channel
	if opts.Simulate {
		logrus.Warn("using the simulated controller, no hardware will be touched")
		ch = smc.NewChannel(smc.NewDefaultSimulator())
	} else {
		ch = smc.New()
	}
	if err := ch.Open(); err != nil {
		// Nothing can be actuated without the controller.
		return pkgerrors.Wrap(err, "failed to open controller")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := NewMetrics(reg)

	svc := NewService(ch, WithMetrics(metrics))

	var gatherer prometheus.Gatherer
	if conf.EnableMetrics() {
		gatherer = reg
	}
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Handler:           NewRouter(svc, metrics, gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A stale socket from a crashed daemon would make Listen fail.
	if err := os.Remove(opts.UnixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to remove stale socket")
	}
	l, err := net.Listen("unix", opts.UnixSocketPath)
	if err != nil {
		_ = svc.Close()
		return pkgerrors.Wrapf(err, "failed to listen on %s", opts.UnixSocketPath)
	}

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", opts.UnixSocketPath)
		if err := os.Chmod(opts.UnixSocketPath, 0777); err != nil {
			_ = svc.Close()
			return pkgerrors.Wrapf(err, "failed to change permissions of %s", opts.UnixSocketPath)
		}
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = trust.DefaultResolver()
	}
	gate := trust.NewGate(resolver)
	if _, err := gate.Self(); err != nil {
		// Every connection would be refused.
		logrus.WithError(err).Error("failed to resolve own code signature")
	}
	tl := trust.NewListener(l, gate)
	tl.OnReject = func(pid int, err error) {
		logrus.WithError(err).WithField("pid", pid).Warn("rejected connection from unverified caller")
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(tl); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("http server stopped: %v", err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("releasing controller")
	if err := svc.Close(); err != nil {
		logrus.Errorf("failed to close controller: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
