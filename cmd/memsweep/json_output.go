package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func addJSONFlag(cmd *cobra.Command, target *bool, what string) {
	cmd.Flags().BoolVar(target, "json", false, fmt.Sprintf("Output %s as JSON", what))
}

// writeJSON prints v to stdout with two-space indentation and a trailing newline.
func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	data = append(data, '\n')
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
