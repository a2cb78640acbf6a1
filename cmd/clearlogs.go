package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/l0n3m4n/exposerver/pkg/accesslog"
)

var clearLogsCmd = &cobra.Command{
	Use:   "clear-logs",
	Short: "Remove the request log file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(viper.GetString("log.file"))
		if err != nil {
			return err
		}

		existed, err := accesslog.Clear(path)
		if err != nil {
			return err
		}
		if existed {
			fmt.Fprintf(cmd.OutOrStdout(), "Log file removed: %s\n", path)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Log file not found, nothing to clear: %s\n", path)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearLogsCmd)
}
