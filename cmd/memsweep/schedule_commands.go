package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"memsweep/internal/config"
	"memsweep/internal/ipc"
)

func newScheduleCommands(ctx *commandContext) []*cobra.Command {
	var next bool
	intervalCmd := &cobra.Command{
		Use:   "interval [minutes]",
		Short: "Set the periodic clean interval (0 disables it)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if next == (len(args) == 1) {
				return errors.New("provide either minutes or --next")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				var minutes int
				if next {
					status, err := client.Status()
					if err != nil {
						return err
					}
					minutes = nextInterval(status.Status.Scheduler.IntervalMinutes)
				} else {
					parsed, err := strconv.Atoi(args[0])
					if err != nil || parsed < 0 || parsed > config.MaxIntervalMinutes {
						return fmt.Errorf("invalid interval %q: expected 0-%d minutes", args[0], config.MaxIntervalMinutes)
					}
					minutes = parsed
				}
				resp, err := client.Configure(ipc.ConfigureRequest{IntervalMinutes: &minutes})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Policy.IntervalMinutes == 0 {
					fmt.Fprintln(out, "Periodic cleaning disabled")
					return nil
				}
				fmt.Fprintf(out, "Cleaning every %d minutes\n", resp.Policy.IntervalMinutes)
				return nil
			})
		},
	}
	intervalCmd.Flags().BoolVar(&next, "next", false, "Advance to the next interval preset")

	var off bool
	var cooldown int
	thresholdCmd := &cobra.Command{
		Use:   "threshold [percent]",
		Short: "Configure high usage cleaning",
		Long: "Enable high usage cleaning at the given memory load percentage, disable it\n" +
			"with --off, or change the minimum minutes between threshold cleans with --cooldown.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.ConfigureRequest{}
			switch {
			case off && len(args) == 1:
				return errors.New("--off cannot be combined with a percentage")
			case off:
				disabled := false
				req.HighUsageEnabled = &disabled
			case len(args) == 1:
				percent, err := strconv.Atoi(args[0])
				if err != nil || percent < 1 || percent > 100 {
					return fmt.Errorf("invalid threshold %q: expected 1-100", args[0])
				}
				enabled := true
				req.HighUsageEnabled = &enabled
				req.ThresholdPercent = &percent
			}
			if cmd.Flags().Changed("cooldown") {
				if cooldown < 0 || cooldown > config.MaxCooldownMinutes {
					return fmt.Errorf("--cooldown must be between 0 and %d", config.MaxCooldownMinutes)
				}
				req.CooldownMinutes = &cooldown
			}
			if req.HighUsageEnabled == nil && req.CooldownMinutes == nil {
				return errors.New("provide a percentage, --off, or --cooldown")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Configure(req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !resp.Policy.HighUsageEnabled {
					fmt.Fprintln(out, "High usage cleaning disabled")
					return nil
				}
				fmt.Fprintf(out, "Cleaning at %d%% memory load (cooldown %d minutes)\n",
					resp.Policy.ThresholdPercent, resp.Policy.CooldownMinutes)
				return nil
			})
		},
	}
	thresholdCmd.Flags().BoolVar(&off, "off", false, "Disable high usage cleaning")
	thresholdCmd.Flags().IntVar(&cooldown, "cooldown", 0, "Minutes between threshold cleans")

	return []*cobra.Command{intervalCmd, thresholdCmd}
}

// nextInterval returns the preset after current, wrapping to the first.
// Values between presets advance to the next larger one.
func nextInterval(current int) int {
	for _, option := range config.IntervalOptions {
		if option > current {
			return option
		}
	}
	return config.IntervalOptions[0]
}
