package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"MiniChat/internal/telemetry"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "MiniChat v%s\n", telemetry.ServiceVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
