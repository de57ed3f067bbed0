// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webpilot/internal/control"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the executor and its control server",
		Long: `Starts the browser host, the step executor and the HTTP control server.
A program that was running when the previous process exited is restarted
from its first step unless executor.recover_on_start is false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			defer observability.Sync()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			comps, err := initializeComponents(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer comps.Shutdown()

			srv := control.NewServer(cfg.Control(), logger, comps.Executor, comps.Host, comps.Registry)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx)
			})
			if cfg.Executor().RecoverOnStart {
				g.Go(func() error {
					// A failed recovery is logged; the server keeps serving.
					if err := comps.Executor.Recover(gctx); err != nil {
						logger.Error("Failed to recover interrupted run", zap.Error(err))
					}
					return nil
				})
			}

			err = g.Wait()
			logger.Info("Shutting down executor and browser...")
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	serveCmd.Flags().String("addr", "", "control server listen address (overrides control.listen_addr)")
	serveCmd.Flags().Bool("headless", true, "run the browser without a window")
	serveCmd.Flags().String("driver", "", "browser driver: chromedp or rod")
	serveCmd.Flags().String("store", "", "run-state backend: file or postgres")
	serveCmd.Flags().String("state", "", "path of the run-state file")
	return serveCmd
}
