package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"memsweep/internal/api"
	"memsweep/internal/ipc"
	"memsweep/internal/memory"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent cleaning passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Passes) == 0 {
					fmt.Fprintln(out, "No passes recorded")
					return nil
				}
				fmt.Fprint(out, renderHistoryTable(resp.Passes))
				fmt.Fprintln(out)
				fmt.Fprintf(out, "%d passes, %s freed in total\n",
					resp.Totals.Passes, memory.FormatMegabytes(resp.Totals.FreedBytes))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of passes to show")
	addJSONFlag(cmd, &jsonOut, "history")
	return cmd
}

func renderHistoryTable(passes []api.Pass) string {
	rows := make([][]string, 0, len(passes))
	for _, pass := range passes {
		started := ""
		if t := api.ParseTime(pass.StartedAt); !t.IsZero() {
			started = t.Local().Format("2006-01-02 15:04:05")
		}
		freed := memory.FormatMegabytes(pass.FreedBytes)
		if pass.SampleError != "" {
			freed = "n/a"
		}
		failed := ""
		if len(pass.Failures) > 0 {
			names := make([]string, 0, len(pass.Failures))
			for _, f := range pass.Failures {
				names = append(names, f.Capability)
			}
			failed = strings.Join(names, ", ")
		}
		rows = append(rows, []string{
			shortID(pass.ID),
			started,
			pass.Trigger,
			freed,
			fmt.Sprintf("%d", len(pass.Actions)),
			failed,
		})
	}
	return renderTable([]column{
		{title: "Pass"},
		{title: "Started"},
		{title: "Trigger"},
		{title: "Freed", numeric: true},
		{title: "Actions", numeric: true},
		{title: "Failed"},
	}, rows)
}
