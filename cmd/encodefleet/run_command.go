package main

import (
	"github.com/spf13/cobra"

	"encodefleet/internal/daemonrun"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the encodefleet daemon in the foreground",
		Long: `Run the encodefleet daemon in the foreground.

The daemon registers this instance, schedules and executes jobs, and serves
the HTTP API on api.bind. A MASTER instance also dispatches notifications.
Stop it with Ctrl+C or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind := ctx.apiAddress(cfg); bind != cfg.API.Bind {
				cfg.API.Bind = bind
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    logLevel,
				Development: development,
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "dev", false, "Human-readable development logging")
	return cmd
}
