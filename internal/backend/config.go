package backend

import (
	"fmt"
	"strings"

	"v4v/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	walletType := WalletType(appConfig.WalletBackend)
	if !walletType.IsValid() {
		return Config{}, fmt.Errorf("invalid wallet backend in config: %s (expected one of %s)",
			appConfig.WalletBackend, strings.Join(GetWalletTypeStrings(), ", "))
	}

	return Config{
		Wallet:      walletType,
		NWCURL:      appConfig.NWCURL,
		NWCTimeout:  appConfig.NWCTimeout,
		FixturePath: appConfig.WalletFixture,

		SQLiteDBPath: appConfig.ExportDB(),

		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleSheetPrefix:   appConfig.GoogleSheetPrefix,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate checks the settings each requested target depends on. The wallet
// is always checked; AMQP is optional and never fails validation.
func (c Config) Validate(targets Targets) error {
	if !c.Wallet.IsValid() {
		return fmt.Errorf("invalid wallet backend: %s", c.Wallet)
	}

	switch c.Wallet {
	case NWCWallet:
		if c.NWCURL == "" {
			return fmt.Errorf("NWC connection string is required for the nwc wallet")
		}
	case FixtureWallet:
		if c.FixturePath == "" {
			return fmt.Errorf("fixture path is required for the fixture wallet")
		}
	}

	if targets.SQLite && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite export")
	}
	if targets.Sheets && c.GoogleSpreadsheetID == "" {
		return fmt.Errorf("Google Spreadsheet ID is required for sheets export")
	}
	return nil
}

// GetWalletTypes returns all valid wallet types
func GetWalletTypes() []WalletType {
	return []WalletType{NWCWallet, FixtureWallet}
}

// GetWalletTypeStrings returns all valid wallet type strings
func GetWalletTypeStrings() []string {
	types := GetWalletTypes()
	strs := make([]string, len(types))
	for i, t := range types {
		strs[i] = t.String()
	}
	return strs
}
