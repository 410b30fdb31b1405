package backend

import (
	"context"
	"time"

	"v4v/internal/amqp"
	"v4v/internal/services"
	"v4v/internal/wallet"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// ExportResult contains the exporters that were opened and a cleanup function
// releasing them.
type ExportResult struct {
	Exporters []services.Exporter
	Cleanup   CleanupFunc
}

// Targets selects which exporters CreateExporters opens.
type Targets struct {
	SQLite bool
	Sheets bool
}

// Factory creates the wallet, export and event backends from configuration.
type Factory interface {
	// CreateWallet returns the opener for the configured wallet backend.
	CreateWallet(config Config) (wallet.Opener, error)
	// CreateExporters opens the requested export targets.
	CreateExporters(ctx context.Context, config Config, targets Targets) (*ExportResult, error)
	// CreatePublisher connects to the broker, or returns nil when events are disabled.
	CreatePublisher(config Config) *amqp.Client
}

// Config holds configuration for backend creation
type Config struct {
	// Wallet
	Wallet      WalletType
	NWCURL      string
	NWCTimeout  time.Duration
	FixturePath string

	// SQLite export
	SQLiteDBPath string

	// Google Sheets export
	GoogleSpreadsheetID string
	GoogleSheetPrefix   string

	// Events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// WalletType represents the type of wallet backend
type WalletType string

const (
	NWCWallet     WalletType = "nwc"
	FixtureWallet WalletType = "fixture"
)

// String implements fmt.Stringer
func (wt WalletType) String() string {
	return string(wt)
}

// IsValid returns true if the wallet type is valid
func (wt WalletType) IsValid() bool {
	switch wt {
	case NWCWallet, FixtureWallet:
		return true
	default:
		return false
	}
}
