package main

import (
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cshariq/Sapphire-sub003/pkg/agent"
	"github.com/cshariq/Sapphire-sub003/pkg/daemon"
	"github.com/cshariq/Sapphire-sub003/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	opts := daemon.Options{}

	cmd := &cobra.Command{
		Use:     "daemon",
		Hidden:  true,
		Short:   "Run the privileged daemon in the foreground",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("smcctl daemon starting")

			opts.ConfigPath = configPath
			opts.UnixSocketPath = daemonSocket
			return daemon.Run(opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.AllowNonRoot, "always-allow-non-root-access", false,
		"Always allow non-root users to connect to the daemon socket. Callers must still carry the daemon's code signature.")
	f.BoolVar(&opts.Simulate, "simulate", false, "Serve an in-memory controller instead of the real one.")

	return cmd
}

// NewAgentCommand .
func NewAgentCommand() *cobra.Command {
	opts := agent.Options{
		SettingsPath: filepath.Join(agentDir, "settings.json"),
		StatePath:    filepath.Join(agentDir, "calibration.json"),
		HistoryPath:  filepath.Join(agentDir, "history.db"),
	}

	cmd := &cobra.Command{
		Use:     "agent",
		Hidden:  true,
		Short:   "Run the per-user agent in the foreground",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("smcctl agent starting")

			opts.DaemonSocket = daemonSocket
			opts.UnixSocketPath = agentSocket
			return agent.Run(opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.SettingsPath, "settings", opts.SettingsPath, "agent settings file")
	f.StringVar(&opts.StatePath, "calibration-state", opts.StatePath, "calibration state file")
	f.StringVar(&opts.HistoryPath, "history", opts.HistoryPath, "task history database")

	return cmd
}
