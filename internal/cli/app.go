package cli

import (
	"context"
	"errors"

	"v4v/internal/amqp"
	"v4v/internal/backend"
	"v4v/internal/cache"
	"v4v/internal/config"
	"v4v/internal/log"
	"v4v/internal/price"
	"v4v/internal/services"
	"v4v/internal/titles"
	"v4v/internal/wallet"
)

// ErrNoWallet is returned by the placeholder opener used when a command runs
// without wallet access.
var ErrNoWallet = errors.New("wallet not configured for this command")

// AppOptions tunes how NewApp wires the pipeline.
type AppOptions struct {
	// Wallet opens the configured wallet backend. Without it only cached
	// data can be reported.
	Wallet bool
	// IgnoreCache pages the full wallet history.
	IgnoreCache bool
	// Events publishes report updates when AMQP is configured.
	Events bool
	// Progress receives the running count of new transactions.
	Progress chan<- int
}

// App holds the components every command builds from configuration.
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Backend   backend.Config
	Factory   backend.Factory
	Snapshot  *cache.TransactionCache
	Titles    *cache.TitleCache
	Pipeline  *services.FetchPipeline
	Reports   *services.ReportService
	Publisher *amqp.Client
}

// NewApp wires caches, wallet, price and title sources into a report service.
func NewApp(cfg *config.Config, logger *log.Logger, opts AppOptions) (*App, error) {
	if logger == nil {
		logger = log.Discard()
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := backend.NewFactory(logger)

	var opener wallet.Opener = wallet.OpenerFunc(func(context.Context) (wallet.Client, error) {
		return nil, ErrNoWallet
	})
	if opts.Wallet {
		if err := cfg.RequireWallet(); err != nil {
			return nil, err
		}
		if opener, err = factory.CreateWallet(bcfg); err != nil {
			return nil, err
		}
	}

	snapshot := cache.NewTransactionCache(cfg.TransactionsCachePath(), logger)
	titleCache := cache.NewTitleCache(cfg.TitlesCachePath(), cfg.TitlesTTL, logger)

	pipeline := services.NewFetchPipeline(services.FetchConfig{
		BatchSize:    cfg.BatchSize,
		BatchDelay:   cfg.BatchDelay,
		MaxBatches:   cfg.MaxBatches,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		IgnoreCache:  opts.IgnoreCache,
		Progress:     opts.Progress,
	}, opener, snapshot, logger)

	reports := services.NewReportService(cfg.Site, pipeline,
		price.NewClient(cfg.PriceURL, logger),
		titles.NewSource(cfg.FeedURL(), titleCache, logger),
		logger)

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Backend:  bcfg,
		Factory:  factory,
		Snapshot: snapshot,
		Titles:   titleCache,
		Pipeline: pipeline,
		Reports:  reports,
	}

	if opts.Events {
		if client := factory.CreatePublisher(bcfg); client != nil {
			app.Publisher = client
			reports.WithPublisher(client)
		}
	}
	return app, nil
}

// Close releases the broker connection.
func (a *App) Close() error {
	if a.Publisher != nil {
		return a.Publisher.Close()
	}
	return nil
}
