package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cshariq/Sapphire-sub003/pkg/client"
	"github.com/cshariq/Sapphire-sub003/pkg/version"
)

var (
	logLevel     = "info"
	daemonSocket = "/var/run/smcctl.sock"
	configPath   = "/etc/smcctl.json"
	agentDir     = defaultAgentDir()
	agentSocket  = filepath.Join(agentDir, "agent.sock")
)

var (
	gBasic        = "Basic:"
	gAdvanced     = "Advanced:"
	gFans         = "Fans:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gAdvanced,
		gFans,
		gInstallation,
	}
)

// requestTimeout bounds every round trip made by a CLI command.
const requestTimeout = 10 * time.Second

func defaultAgentDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "smcctl")
	}
	return filepath.Join(home, ".config", "smcctl")
}

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func daemonClient() *client.Client {
	return client.NewClient(daemonSocket)
}

func agentClient() *client.Client {
	return client.NewClient(agentSocket)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, requestTimeout)
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: the smcctl daemon (or agent) is not running")
		fmt.Fprintln(os.Stderr, "Is it running? Have you installed it with 'sudo smcctl install'?")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or reinstall the daemon with the '--allow-non-root-access' flag to grant permissions to your user")
	case errors.Is(err, client.ErrConnectionLost):
		fmt.Fprintln(os.Stderr, "\nError: the connection was closed mid-request")
		fmt.Fprintln(os.Stderr, "  - The daemon refuses binaries whose code signature differs from its own")
	}
}

func main() {
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(2)
	}

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

// skipVersionCheck lists commands that do not talk to a running daemon.
var skipVersionCheck = map[string]bool{
	"daemon":    true,
	"agent":     true,
	"install":   true,
	"uninstall": true,
	"version":   true,
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smcctl",
		Short: "smcctl controls battery charging and fans through the SMC",
		Long: `smcctl controls battery charging and fans through the System Management Controller.

A privileged daemon owns the controller; an unprivileged agent applies your
charging policy, calibration runs, fan curves and scheduled tasks.`,
		SilenceUsage: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			if err := setupLogger(); err != nil {
				return err
			}
			if skipVersionCheck[c.Name()] {
				return nil
			}

			ctx, cancel := requestContext(c)
			defer cancel()
			hw := daemonClient()
			defer hw.Close()

			daemonVersion, err := hw.Version(ctx)
			switch {
			case err == nil && daemonVersion != version.Version:
				logrus.WithFields(logrus.Fields{
					"clientVersion": version.Version,
					"daemonVersion": daemonVersion,
				}).Warn("version mismatch between client and daemon, smcctl may not work as expected")
			case errors.Is(err, client.ErrNotFound):
				logrus.Error("smcctl daemon is too old to report its version")
			}
			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "daemon config file path")
	globalFlags.StringVar(&daemonSocket, "daemon-socket", daemonSocket, "daemon unix socket path")
	globalFlags.StringVar(&agentSocket, "agent-socket", agentSocket, "agent unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewAgentCommand(),
		NewVersionCommand(),
		NewLimitCommand(),
		NewStatusCommand(),
		NewCalibrationCommand(),
		NewChargingCommand(),
		NewDischargeCommand(),
		NewLEDCommand(),
		NewKeysCommand(),
		NewSensorCommand(),
		NewLowPowerCommand(),
		NewFanCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
