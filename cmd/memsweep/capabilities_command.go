package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"memsweep/internal/api"
	"memsweep/internal/daemon"
	"memsweep/internal/ipc"
	"memsweep/internal/logging"
	"memsweep/internal/reclaim"
)

func newCapabilitiesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "List reclaim capabilities and where they are used",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(); err != nil {
				return err
			}
			names, policy := localCapabilities(ctx)
			if client, err := ipc.Dial(ctx.socketPath()); err == nil {
				defer client.Close()
				if resp, err := client.Capabilities(); err == nil {
					names = resp.Names
				}
				if status, err := client.Status(); err == nil {
					policy = status.Status.Scheduler.Policy
				}
			}

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{
					name,
					yesNo(slices.Contains(policy.AutoActions, name)),
					yesNo(slices.Contains(policy.ManualActions, name)),
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]column{{title: "Capability"}, {title: "Automatic"}, {title: "Manual"}},
				rows,
			))
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

func localCapabilities(ctx *commandContext) ([]string, api.Policy) {
	cfg := ctx.configValue()
	if cfg == nil {
		return nil, api.Policy{}
	}
	registry := reclaim.NewLinuxRegistry(reclaim.OptionsFromConfig(cfg, logging.NewNop()))
	return registry.Names(), api.FromPolicy(daemon.PolicyFromConfig(cfg))
}
