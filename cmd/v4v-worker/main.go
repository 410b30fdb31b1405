package main

import (
	"context"
	"time"

	"v4v/internal/backend"
	"v4v/internal/cli"
	"v4v/internal/log"
	"v4v/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(log.Discard(), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, nil)
	logger.Info("Starting v4v-worker", log.FieldSite, cfg.Site)

	bcfg, err := backend.FromAppConfig(cfg)
	if err == nil {
		err = bcfg.Validate(backend.Targets{})
	}
	if err != nil {
		cli.Fatal(logger, "Invalid wallet configuration", err)
	}

	app, err := cli.NewApp(cfg, logger, cli.AppOptions{Wallet: true, Events: true})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize", err)
	}
	defer app.Close()

	if app.Publisher == nil {
		logger.Info("AMQP disabled, refreshing the snapshot without events")
	}

	w, err := worker.NewRefreshWorker(app.Reports, cfg.FetchSchedule, cfg.FetchTimeout, logger)
	if err != nil {
		cli.Fatal(logger, "Invalid fetch schedule", err)
	}

	ctx, done := cli.GracefulShutdown(context.Background(), logger, 30*time.Second, func(ctx context.Context) {
		select {
		case <-w.Stop().Done():
		case <-ctx.Done():
		}
	})

	// Catch up on anything received while the worker was down.
	logger.Info("Performing startup refresh...")
	if _, err := w.RunOnce(ctx); err != nil {
		logger.Error("Startup refresh failed", log.FieldError, err)
	}

	w.Start(ctx)
	cli.WaitForShutdown(ctx, done)
	logger.Info("v4v-worker stopped")
}
