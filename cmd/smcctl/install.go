package main

import (
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cshariq/Sapphire-sub003/pkg/config"
	daemonutils "github.com/cshariq/Sapphire-sub003/pkg/utils/daemon"
)

func userLaunchAgentsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to find home directory")
	}
	return filepath.Join(home, "Library", "LaunchAgents"), nil
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	allowNonRootAccess := false
	installAgent := false

	cmd := &cobra.Command{
		Use:     "install",
		Short:   "Install smcctl to launchd",
		GroupID: gInstallation,
		Long: `Install the smcctl daemon to launchd (system-wide, requires root), or with
--agent the per-user agent (run as yourself, without sudo).

By default only root may open the daemon socket. --allow-non-root-access
widens the socket permissions; callers must still be signed with the same
code signature as the daemon.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, err := daemonutils.CurrentExecutable()
			if err != nil {
				return err
			}

			if installAgent {
				dir, err := userLaunchAgentsDir()
				if err != nil {
					return err
				}
				if err := os.MkdirAll(agentDir, 0755); err != nil {
					return pkgerrors.Wrapf(err, "failed to create %s", agentDir)
				}
				if err := daemonutils.Install(dir, daemonutils.AgentJob(exe, agentDir)); err != nil {
					return fmt.Errorf("failed to install agent: %w", err)
				}
				logrus.Info("agent installation succeeded")
				return nil
			}

			conf, err := config.NewDaemonFile(configPath)
			if err != nil {
				return err
			}
			conf.SetAllowNonRootAccess(allowNonRootAccess)

			if err := daemonutils.Install(daemonutils.SystemPlistDir, daemonutils.DaemonJob(exe)); err != nil {
				if os.Geteuid() != 0 {
					logrus.Errorf("you must run this command as root")
				}
				return fmt.Errorf("failed to install daemon: %w", err)
			}
			if err := conf.Save(); err != nil {
				return pkgerrors.Wrapf(err, "failed to save config")
			}

			logrus.Info("installation succeeded")
			cmd.Printf("`launchd' will use the current binary (%s) at startup, so do not move it. If you do, run `smcctl install' again.\n", exe)
			return nil
		},
	}

	cmd.Flags().BoolVar(&allowNonRootAccess, "allow-non-root-access", false, "Allow non-root users to connect to the daemon socket.")
	cmd.Flags().BoolVar(&installAgent, "agent", false, "Install the per-user agent instead of the daemon.")

	return cmd
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	uninstallAgent := false

	cmd := &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall smcctl from launchd",
		GroupID: gInstallation,
		Long: `Uninstall the smcctl daemon (requires root), or with --agent the per-user agent.

Charging is re-enabled and forced discharge is switched off before the
daemon is removed, so the machine is not left unable to charge.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if uninstallAgent {
				dir, err := userLaunchAgentsDir()
				if err != nil {
					return err
				}
				if err := daemonutils.Uninstall(dir, daemonutils.AgentJob("", agentDir)); err != nil {
					return fmt.Errorf("failed to uninstall agent: %w", err)
				}
				logrus.Info("agent removed")
				return nil
			}

			ctx, cancel := requestContext(cmd)
			hw := daemonClient()
			if _, err := hw.SetChargeLimit(ctx, 100); err != nil {
				logrus.WithError(err).Warn("failed to reset charge limit")
			}
			if err := hw.SetDischarge(ctx, false); err != nil {
				logrus.WithError(err).Warn("failed to stop forced discharge")
			}
			if err := hw.EnableCharging(ctx, true); err != nil {
				logrus.WithError(err).Debug("failed to re-enable charging")
			}
			_ = hw.Close()
			cancel()

			if err := daemonutils.Uninstall(daemonutils.SystemPlistDir, daemonutils.DaemonJob("")); err != nil {
				return fmt.Errorf("failed to uninstall daemon: %w. Are you root?", err)
			}

			logrus.Info("smcctl daemon removed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&uninstallAgent, "agent", false, "Uninstall the per-user agent instead of the daemon.")

	return cmd
}
