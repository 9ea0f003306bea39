package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"memsweep/internal/ipc"
	"memsweep/internal/memory"
	"memsweep/internal/notifications"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var actions []string
	var wait bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Run a manual cleaning pass",
		Long: "Ask the running daemon to clean now. Without --action the configured\n" +
			"manual actions run; repeat --action to run specific capabilities in order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Clean(ipc.CleanRequest{Actions: actions, Wait: wait})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Pass == nil {
					fmt.Fprintf(out, "Clean started (pass %s)\n", shortID(resp.PassID))
					return nil
				}
				pass := resp.Pass
				fmt.Fprintf(out, "%s (pass %s)\n", notifications.Summary(pass.FreedBytes), shortID(pass.ID))
				if pass.SampleError != "" {
					fmt.Fprintf(out, "Memory sampling failed: %s\n", pass.SampleError)
				} else {
					fmt.Fprintf(out, "Used %s -> %s\n",
						memory.FormatMegabytes(pass.BytesBefore), memory.FormatMegabytes(pass.BytesAfter))
				}
				for _, failure := range pass.Failures {
					fmt.Fprintf(out, "  %s failed: %s\n", failure.Capability, failure.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&actions, "action", "a", nil, "Capability to run (repeatable)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the pass to finish and report the result")
	addJSONFlag(cmd, &jsonOut, "the pass result")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
