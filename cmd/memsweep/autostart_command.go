package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"memsweep/internal/autostart"
)

func newAutostartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "autostart [on|off]",
		Short:     "Start memsweep when you log in",
		Long:      "Without an argument, report whether memsweep starts at login. \"on\" writes an\nXDG autostart entry that runs `memsweep run`; \"off\" removes it.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				enabled, err := autostart.Enabled()
				if err != nil {
					return err
				}
				path, err := autostart.Path()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Start at login: %s (%s)\n", yesNo(enabled), path)
				return nil
			}
			if args[0] == "off" {
				path, err := autostart.Disable()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Autostart disabled (%s removed)\n", path)
				return nil
			}
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			configPath := ""
			if ctx.configPath() != "" {
				configPath = ctx.configFile
			}
			path, err := autostart.Enable(exe, configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Autostart enabled: %s\n", path)
			return nil
		},
	}
}
