package main

import (
	"encoding/json"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cshariq/Sapphire-sub003/pkg/agent"
	"github.com/cshariq/Sapphire-sub003/pkg/client"
	"github.com/cshariq/Sapphire-sub003/pkg/smc"
	"github.com/cshariq/Sapphire-sub003/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewLimitCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "limit [percentage]",
		Short:   "Write the hardware charge limit",
		GroupID: gBasic,
		Long: `Write the hardware charge limit key.

The value is clamped to 20-100. The agent's charging policy may move the
limit again on its next evaluation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := parseIntArg(args[0], "limit")
			if err != nil {
				return err
			}

			ctx, cancel := requestContext(cmd)
			defer cancel()
			hw := daemonClient()
			defer hw.Close()

			stored, err := hw.SetChargeLimit(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to set limit: %w", err)
			}
			if stored != limit {
				logrus.Warnf("limit %d%% is out of range, clamped to %d%%", limit, stored)
			}
			logrus.Infof("successfully set battery charge limit to %d%%", stored)
			return nil
		},
	}
}

type statusData struct {
	caps        smc.CapabilitySummary
	charge      int
	temperature float64
	state       *agent.StateResponse
}

// fetchStatusData issues the daemon reads concurrently. The agent is
// optional.
func fetchStatusData(cmd *cobra.Command) (*statusData, error) {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	hw := daemonClient()
	defer hw.Close()
	ag := agentClient()
	defer ag.Close()

	capsF := client.Async(func() (smc.CapabilitySummary, error) { return hw.Capabilities(ctx) })
	chargeF := client.Async(func() (int, error) { return hw.BatteryCharge(ctx) })
	tempF := client.Async(func() (float64, error) { return hw.BatteryTemperature(ctx) })
	stateF := client.Async(func() ([]byte, error) { return ag.Get(ctx, "/state") })

	caps := <-capsF
	if caps.Err != nil {
		return nil, fmt.Errorf("failed to get capabilities: %w", caps.Err)
	}
	data := &statusData{caps: caps.Value}

	if r := <-chargeF; r.Err == nil {
		data.charge = r.Value
	} else {
		logrus.WithError(r.Err).Debug("battery charge unavailable")
	}
	if r := <-tempF; r.Err == nil {
		data.temperature = r.Value
	} else {
		logrus.WithError(r.Err).Debug("battery temperature unavailable")
	}
	if r := <-stateF; r.Err == nil {
		var st agent.StateResponse
		if err := json.Unmarshal(r.Value, &st); err == nil {
			data.state = &st
		}
	} else {
		logrus.WithError(r.Err).Debug("agent unavailable")
	}

	return data, nil
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Show controller capabilities, battery and charging state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData(cmd)
			if err != nil {
				return err
			}

			cmd.Println(bold("Controller:"))
			cmd.Printf("  Charge control: %s %s\n", bool2Text(data.caps.ChargeControlKey != ""), data.caps.ChargeControlKey)
			cmd.Printf("  Charge limit key: %s %s\n", bool2Text(data.caps.ChargeLimitKey != ""), data.caps.ChargeLimitKey)
			cmd.Printf("  Discharge control: %s %s\n", bool2Text(data.caps.DischargeControlKey != ""), data.caps.DischargeControlKey)
			cmd.Printf("  MagSafe LED: %s %s\n", bool2Text(data.caps.MagSafeLEDKey != ""), data.caps.MagSafeLEDKey)
			cmd.Printf("  Fans: %s\n", bold("%d", data.caps.FanCount))
			cmd.Printf("  Keys: %s\n", bold("%s", humanize.Comma(int64(data.caps.KeyCount))))
			cmd.Println()

			cmd.Println(bold("Battery:"))
			cmd.Printf("  Hardware charge: %s\n", bold("%d%%", data.charge))
			cmd.Printf("  Temperature: %s\n", bold("%.1f °C", data.temperature))
			cmd.Println()

			if data.state == nil {
				cmd.Println(bold("Agent: ") + color.YellowString("not running"))
				return nil
			}

			st := data.state
			cmd.Println(bold("Charging:"))
			cmd.Printf("  State: %s\n", chargeStateText(st.Charge.State))
			cmd.Printf("  Level: %s\n", bold("%d%%", st.Charge.Level))
			if !st.Charge.HeatUntil.IsZero() {
				cmd.Printf("  Heat protection until: %s\n", humanize.Time(st.Charge.HeatUntil))
			}
			cmd.Println()

			p := st.Policy
			cmd.Println(bold("Policy:"))
			cmd.Printf("  Charge limit: %s\n", bold("%d%%", p.ChargeLimit))
			cmd.Printf("  Sailing mode: %s", bool2Text(p.SailingMode))
			if p.SailingMode {
				cmd.Printf(" (resume below %d%%)", p.ChargeLimit-p.SailingOffset)
			}
			cmd.Println()
			cmd.Printf("  Heat protection: %s", bool2Text(p.HeatProtection))
			if p.HeatProtection {
				cmd.Printf(" (%.0f °C)", p.HeatThreshold)
			}
			cmd.Println()
			cmd.Printf("  Discharge to limit: %s\n", bool2Text(p.DischargeToLimit))
			cmd.Printf("  Control MagSafe LED: %s\n", bool2Text(p.LED.Control))
			return nil
		},
	}
}

func chargeStateText(s agent.ChargeState) string {
	switch s {
	case agent.StateCharging:
		return color.GreenString(string(s))
	case agent.StateDischarging, agent.StateHeatProtection, agent.StateCalibrationFailed:
		return color.RedString(string(s))
	case agent.StateCalibrating, agent.StateCalibrationDone:
		return color.CyanString(string(s))
	case agent.StateUnknown:
		return "unknown"
	default:
		return bold("%s", s)
	}
}
