package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"v4v/internal/cli"
	apphttp "v4v/internal/http"
	"v4v/internal/log"
)

func serveCmd(rt *runtime) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and JSON API",
		Long: `Serve the dashboard from the local snapshot. POST /api/refresh fetches
from the wallet when NWC_URL (or a fixture wallet) is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			walletErr := rt.cfg.RequireWallet()
			if walletErr != nil {
				rt.logger.Warn("Wallet not configured, dashboard refresh disabled", log.FieldError, walletErr)
			}

			app, err := cli.NewApp(rt.cfg, rt.logger, cli.AppOptions{Wallet: walletErr == nil, Events: true})
			if err != nil {
				return err
			}
			defer app.Close()

			if addr == "" {
				addr = ":" + rt.cfg.Port
			}
			config := apphttp.DefaultConfig()
			config.Addr = addr
			config.RefreshTimeout = rt.cfg.FetchTimeout
			srv := apphttp.NewServer(config, app.Reports, rt.logger)

			ctx, done := cli.GracefulShutdown(cmd.Context(), rt.logger, 15*time.Second, func(ctx context.Context) {
				if err := srv.Shutdown(ctx); err != nil {
					rt.logger.Error("Server shutdown failed", log.FieldError, err)
				}
			})

			serveErr := make(chan error, 1)
			go func() {
				rt.logger.Info("Starting dashboard", "addr", addr, log.FieldSite, rt.cfg.Site)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}
			cli.WaitForShutdown(ctx, done)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default :$PORT)")
	return cmd
}
