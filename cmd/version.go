package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l0n3m4n/exposerver/pkg/telemetry"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", telemetry.ServiceName, telemetry.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
