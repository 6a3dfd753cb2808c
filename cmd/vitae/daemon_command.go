package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vitae/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon lifecycle helpers",
	}

	var logLevel string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the processing daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Override configured log level")

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Check whether the daemon is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.apiClient().Health(cmd.Context()); err != nil {
				return fmt.Errorf("daemon unreachable: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon is up")
			return nil
		},
	}

	daemonCmd.AddCommand(runCmd)
	daemonCmd.AddCommand(pingCmd)
	return daemonCmd
}
