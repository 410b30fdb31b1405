package backend

import (
	"context"
	"errors"
	"fmt"

	"v4v/internal/amqp"
	"v4v/internal/log"
	"v4v/internal/services"
	gsheet "v4v/internal/sheets/google"
	"v4v/internal/storage"
	"v4v/internal/wallet"
	"v4v/internal/wallet/memory"
	"v4v/internal/wallet/nwc"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateWallet implements Factory.CreateWallet
func (f *DefaultFactory) CreateWallet(config Config) (wallet.Opener, error) {
	switch config.Wallet {
	case NWCWallet:
		opener, err := nwc.NewOpener(config.NWCURL, config.NWCTimeout, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize NWC wallet: %w", err)
		}
		f.logger.Info("Initialized NWC wallet", "timeout", config.NWCTimeout.String())
		return opener, nil

	case FixtureWallet:
		w, err := memory.NewFromFile(config.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load wallet fixture: %w", err)
		}
		f.logger.Info("Initialized fixture wallet", log.FieldFile, config.FixturePath)
		return w, nil

	default:
		return nil, fmt.Errorf("unsupported wallet backend: %s", config.Wallet)
	}
}

// CreateExporters implements Factory.CreateExporters. Exporters already
// opened are closed again when a later one fails.
func (f *DefaultFactory) CreateExporters(ctx context.Context, config Config, targets Targets) (*ExportResult, error) {
	var (
		exporters []services.Exporter
		cleanups  []CleanupFunc
	)
	cleanup := func() error {
		var errs []error
		for _, c := range cleanups {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	if targets.SQLite {
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite export: %w", err)
		}
		exporters = append(exporters, repo)
		cleanups = append(cleanups, repo.Close)
		f.logger.Info("Initialized SQLite export", "db_path", config.SQLiteDBPath)
	}

	if targets.Sheets {
		exp, err := gsheet.NewExporter(ctx, config.GoogleSpreadsheetID, config.GoogleSheetPrefix, f.logger)
		if err != nil {
			_ = cleanup()
			return nil, fmt.Errorf("failed to initialize Google Sheets export: %w", err)
		}
		exporters = append(exporters, exp)
		f.logger.Info("Initialized Google Sheets export", "spreadsheet_id", config.GoogleSpreadsheetID)
	}

	if len(exporters) == 0 {
		return nil, fmt.Errorf("no export target selected")
	}
	return &ExportResult{Exporters: exporters, Cleanup: cleanup}, nil
}

// CreatePublisher implements Factory.CreatePublisher. A broker that cannot be
// reached is logged and treated as disabled.
func (f *DefaultFactory) CreatePublisher(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
