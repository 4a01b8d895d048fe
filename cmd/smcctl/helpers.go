package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func parseIntArg(arg string, valueName string) (int, error) {
	value, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}
	return value, nil
}

// newEnableDisableCommand builds "<use> enable|disable" around set.
func newEnableDisableCommand(use, short, long, group string, set func(ctx context.Context, enabled bool) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use,
		Short:   short,
		Long:    long,
		GroupID: group,
	}

	sub := func(verb string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   verb,
			Short: verb + " " + use,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, cancel := requestContext(cmd)
				defer cancel()
				if err := set(ctx, enabled); err != nil {
					return fmt.Errorf("failed to %s %s: %w", verb, use, err)
				}
				logrus.Infof("successfully %sd %s", verb, use)
				return nil
			},
		}
	}

	cmd.AddCommand(sub("enable", true), sub("disable", false))
	return cmd
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
