// File: cmd/logs.go
package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot/internal/observability"
)

func newLogsCmd() *cobra.Command {
	var follow bool
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path := cfg.Logger().LogFile
			if path == "" {
				return errors.New("logger.log_file is not set; nothing to show")
			}
			return observability.TailLogFile(cmd.Context(), path, follow, cmd.OutOrStdout())
		},
	}
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing appended lines")
	return logsCmd
}
