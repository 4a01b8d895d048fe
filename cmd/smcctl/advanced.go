package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cshariq/Sapphire-sub003/pkg/agent"
	"github.com/cshariq/Sapphire-sub003/pkg/smc"
)

func NewChargingCommand() *cobra.Command {
	return newEnableDisableCommand(
		"charging",
		"battery charging",
		`Enable or inhibit charging through the charge control key.

Models without a direct charging switch report UnsupportedOperation; use
"smcctl limit" there.`,
		gAdvanced,
		func(ctx context.Context, enabled bool) error {
			hw := daemonClient()
			defer hw.Close()
			return hw.EnableCharging(ctx, enabled)
		},
	)
}

func NewDischargeCommand() *cobra.Command {
	return newEnableDisableCommand(
		"discharge",
		"forced discharge",
		`Run the machine from the battery even while plugged in.`,
		gAdvanced,
		func(ctx context.Context, enabled bool) error {
			hw := daemonClient()
			defer hw.Close()
			return hw.SetDischarge(ctx, enabled)
		},
	)
}

func NewLowPowerCommand() *cobra.Command {
	return newEnableDisableCommand(
		"low-power",
		"low power mode",
		`Toggle the system's low power mode.`,
		gAdvanced,
		func(ctx context.Context, enabled bool) error {
			hw := daemonClient()
			defer hw.Close()
			return hw.SetLowPowerMode(ctx, enabled)
		},
	)
}

var ledNames = map[string]int{
	"off":   agent.LEDOff,
	"green": agent.LEDGreen,
	"amber": agent.LEDAmber,
}

func NewLEDCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "led [off|green|amber|code]",
		Short:   "Set the MagSafe indicator",
		GroupID: gAdvanced,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, ok := ledNames[strings.ToLower(args[0])]
			if !ok {
				var err error
				if code, err = parseIntArg(args[0], "LED code"); err != nil {
					return err
				}
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			hw := daemonClient()
			defer hw.Close()

			if err := hw.SetIndicatorColor(ctx, code); err != nil {
				return fmt.Errorf("failed to set indicator: %w", err)
			}
			logrus.Infof("indicator set to %d", code)
			return nil
		},
	}
}

func NewKeysCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "keys",
		Short:   "List every controller key",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()
			hw := daemonClient()
			defer hw.Close()

			keys, err := hw.AllKeys(ctx)
			if err != nil {
				return fmt.Errorf("failed to enumerate keys: %w", err)
			}
			for _, k := range keys {
				cmd.Println(k)
			}
			return nil
		},
	}
}

func NewSensorCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "sensor [key]",
		Short:   "Read a temperature sensor",
		GroupID: gAdvanced,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if len(key) != 4 {
				return fmt.Errorf("invalid key %q: keys are four characters", key)
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			hw := daemonClient()
			defer hw.Close()

			v, err := hw.SensorValue(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			cmd.Printf("%s (%s): %s\n", key, smc.SensorName(key), bold("%.2f", v))
			return nil
		},
	}
}
