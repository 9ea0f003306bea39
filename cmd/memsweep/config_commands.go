package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"memsweep/internal/config"
)

var skipConfigLoad = map[string]string{"skipConfigLoad": "true"}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Create or check the memsweep configuration",
	}
	configCmd.AddCommand(newConfigInitCommand(), newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var target string
	var force, printOnly bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the annotated sample configuration",
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if printOnly {
				_, err := io.WriteString(out, config.SampleConfig())
				return err
			}

			path, err := resolveInitPath(target)
			if err != nil {
				return err
			}
			if !force {
				_, statErr := os.Stat(path)
				switch {
				case statErr == nil:
					return fmt.Errorf("%s already exists; pass --force to replace it", path)
				case !errors.Is(statErr, fs.ErrNotExist):
					return fmt.Errorf("check config path: %w", statErr)
				}
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", path)
			fmt.Fprintln(out, "Set notifications.ntfy_topic to receive clean summaries.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing configuration file")
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the sample to stdout instead of writing it")
	return cmd
}

func resolveInitPath(target string) (string, error) {
	if target = strings.TrimSpace(target); target == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(target)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Load the configuration and print the effective scheduler settings",
		Annotations: skipConfigLoad,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(ctx.configPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "Config path: %s\n", path)
			} else {
				fmt.Fprintf(out, "Config path: %s (not found, using defaults)\n", path)
			}
			for _, line := range effectiveSettings(cfg) {
				fmt.Fprintln(out, "  "+line)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func effectiveSettings(cfg *config.Config) []string {
	interval := "disabled"
	if cfg.Scheduler.IntervalMinutes > 0 {
		interval = fmt.Sprintf("every %d minutes", cfg.Scheduler.IntervalMinutes)
	}
	threshold := "disabled"
	if cfg.Scheduler.HighUsageEnabled {
		threshold = fmt.Sprintf("%d%% (cooldown %d minutes)", cfg.Scheduler.ThresholdPercent, cfg.Scheduler.CooldownMinutes)
	}
	return []string{
		"Interval:       " + interval,
		"High usage:     " + threshold,
		"Auto actions:   " + strings.Join(cfg.Scheduler.AutoActions, ", "),
		"Manual actions: " + strings.Join(cfg.Scheduler.ManualActions, ", "),
		"State dir:      " + cfg.Paths.StateDir,
	}
}
