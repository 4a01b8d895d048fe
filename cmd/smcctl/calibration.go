package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cshariq/Sapphire-sub003/pkg/calibration"
)

func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		Short:   "Run or inspect a battery calibration",
		GroupID: gBasic,
		Long: `Calibrate the battery gauge: charge to 100%, hold there for two hours,
drain to 10%, then charge back to your limit.

Calibration runs inside the agent, which must be running.`,
	}

	cmd.AddCommand(
		newCalibrationActionCommand("start", "Start a calibration run", "/calibration/start"),
		newCalibrationActionCommand("cancel", "Cancel the running calibration", "/calibration/cancel"),
		&cobra.Command{
			Use:   "status",
			Short: "Show calibration progress",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, cancel := requestContext(cmd)
				defer cancel()
				ag := agentClient()
				defer ag.Close()

				b, err := ag.Get(ctx, "/calibration")
				if err != nil {
					return fmt.Errorf("failed to get calibration status: %w", err)
				}
				return printCalibration(cmd, b)
			},
		},
	)
	return cmd
}

func newCalibrationActionCommand(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			ag := agentClient()
			defer ag.Close()

			b, err := ag.Post(ctx, path)
			if err != nil {
				return fmt.Errorf("failed to %s calibration: %w", use, err)
			}
			return printCalibration(cmd, b)
		},
	}
}

func printCalibration(cmd *cobra.Command, b []byte) error {
	var st calibration.Status
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("failed to decode calibration status: %w", err)
	}

	state := bold("%s", st.State.Kind)
	switch st.State.Kind {
	case calibration.KindDone:
		state = color.GreenString("%s", st.State.Kind)
	case calibration.KindError:
		state = color.RedString("%s", st.State.Kind)
	}

	cmd.Printf("State: %s\n", state)
	cmd.Printf("  %s\n", st.Description)
	if st.State.Active() {
		cmd.Printf("  Progress: %s\n", bold("%.0f%%", st.Progress*100))
		cmd.Printf("  Started: %s\n", humanize.Time(st.StartedAt))
		cmd.Printf("  Will restore limit: %s\n", bold("%d%%", st.OriginalLimit))
	}
	if st.State.Kind == calibration.KindHoldingAtFull {
		cmd.Printf("  Hold remaining: %s\n", st.State.HoldRemaining.Round(time.Second))
	}
	if !st.LastScheduled.IsZero() {
		cmd.Printf("Last scheduled run: %s (%s)\n", st.LastScheduled.Format(time.DateTime), humanize.Time(st.LastScheduled))
	}
	if !st.NextScheduled.IsZero() {
		cmd.Printf("Next scheduled run: %s (%s)\n", st.NextScheduled.Format(time.DateTime), humanize.Time(st.NextScheduled))
	}
	return nil
}
