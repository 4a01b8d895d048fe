package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cshariq/Sapphire-sub003/pkg/types"
)

func NewFanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fan",
		Short:   "Inspect and drive the fans",
		GroupID: gFans,
		Long: `Inspect and drive the fans directly through the daemon.

A mode configured in the agent is re-applied on its next poll.`,
	}

	cmd.AddCommand(
		newFanListCommand(),
		newFanAutoCommand(),
		newFanRPMCommand("constant", "Force a fan to a constant speed"),
		newFanRPMCommand("target", "Write a fan's target speed"),
	)
	return cmd
}

func newFanListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List fans and their speeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			hw := daemonClient()
			defer hw.Close()

			n, err := hw.FanCount(ctx)
			if err != nil {
				return fmt.Errorf("failed to count fans: %w", err)
			}
			if n == 0 {
				cmd.Println("This machine has no fans.")
				return nil
			}

			for i := 0; i < n; i++ {
				info, err := hw.FanInfo(ctx, i)
				if err != nil {
					logrus.WithError(err).WithField("fan", i).Warn("failed to read fan")
					continue
				}
				mode := color.GreenString("auto")
				if info.Forced {
					mode = color.YellowString("forced")
				}
				cmd.Printf("%s %s\n", bold("Fan %d:", info.Index), info.Name)
				cmd.Printf("  Mode: %s\n", mode)
				cmd.Printf("  Current: %s rpm\n", bold("%s", humanize.Comma(int64(info.CurrentRPM))))
				if info.Forced {
					cmd.Printf("  Target: %s rpm\n", bold("%s", humanize.Comma(int64(info.TargetRPM))))
				}
				cmd.Printf("  Range: %s-%s rpm\n", humanize.Comma(int64(info.MinRPM)), humanize.Comma(int64(info.MaxRPM)))
			}
			return nil
		},
	}
}

func newFanAutoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "auto [index]",
		Short: "Return a fan to automatic control",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIntArg(args[0], "fan index")
			if err != nil {
				return err
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			hw := daemonClient()
			defer hw.Close()

			if err := hw.SetFanMode(ctx, index, types.FanModeAuto); err != nil {
				return fmt.Errorf("failed to set fan %d to auto: %w", index, err)
			}
			logrus.Infof("fan %d returned to automatic control", index)
			return nil
		},
	}
}

func newFanRPMCommand(use, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [index] [rpm]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIntArg(args[0], "fan index")
			if err != nil {
				return err
			}
			rpm, err := parseIntArg(args[1], "rpm")
			if err != nil {
				return err
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			hw := daemonClient()
			defer hw.Close()

			set := hw.SetFanTargetSpeed
			if use == "constant" {
				set = hw.SetFanConstantRPM
			}
			written, err := set(ctx, index, rpm)
			if err != nil {
				return fmt.Errorf("failed to set fan %d speed: %w", index, err)
			}
			if written != rpm {
				logrus.Warnf("%d rpm is outside the fan's range, clamped to %d rpm", rpm, written)
			}
			logrus.Infof("fan %d set to %d rpm", index, written)
			return nil
		},
	}
}
