package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const nwcScheme = "nostr+walletconnect"

type Config struct {
	// Site
	Site   string
	RSSURL string

	// Wallet
	WalletBackend string // "nwc" or "fixture"
	WalletFixture string
	NWCURL        string
	NWCTimeout    time.Duration

	// Fetch pipeline
	BatchSize    int
	BatchDelay   time.Duration
	MaxBatches   int
	MaxRetries   int
	RetryBackoff time.Duration
	FetchTimeout time.Duration

	// Cache
	CacheDir  string
	TitlesTTL time.Duration

	// Price
	PriceURL string

	// HTTP Server
	Port string

	// Logging
	LogLevel  string
	LogFormat string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Worker
	FetchSchedule string

	// Exports
	ExportDBPath        string
	GoogleSpreadsheetID string
	GoogleSheetPrefix   string

	// ConfigFile is the optional YAML file applied before environment variables.
	ConfigFile string

	loadErrs []string
}

// fileConfig is the YAML shape of the optional config file. Durations are
// Go duration strings ("300ms", "24h").
type fileConfig struct {
	Site          string `yaml:"site"`
	RSSURL        string `yaml:"rss_url"`
	WalletBackend string `yaml:"wallet_backend"`
	WalletFixture string `yaml:"wallet_fixture"`
	NWCURL        string `yaml:"nwc_url"`
	NWCTimeout    string `yaml:"nwc_timeout"`
	BatchSize     int    `yaml:"batch_size"`
	BatchDelay    string `yaml:"batch_delay"`
	MaxBatches    int    `yaml:"max_batches"`
	MaxRetries    *int   `yaml:"max_retries"`
	RetryBackoff  string `yaml:"retry_backoff"`
	FetchTimeout  string `yaml:"fetch_timeout"`
	CacheDir      string `yaml:"cache_dir"`
	TitlesTTL     string `yaml:"titles_ttl"`
	PriceURL      string `yaml:"price_url"`
	Port          string `yaml:"port"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	AMQPURL       string `yaml:"amqp_url"`
	AMQPExchange  string `yaml:"amqp_exchange"`
	AMQPQueue     string `yaml:"amqp_queue"`
	FetchSchedule string `yaml:"fetch_schedule"`
	ExportDBPath  string `yaml:"export_db_path"`
	SpreadsheetID string `yaml:"google_spreadsheet_id"`
	SheetPrefix   string `yaml:"google_sheet_prefix"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		WalletBackend:     "nwc",
		NWCTimeout:        30 * time.Second,
		BatchSize:         10,
		BatchDelay:        300 * time.Millisecond,
		MaxBatches:        20,
		MaxRetries:        2,
		RetryBackoff:      2 * time.Second,
		FetchTimeout:      5 * time.Minute,
		CacheDir:          defaultCacheDir(),
		TitlesTTL:         24 * time.Hour,
		PriceURL:          "https://api.coingecko.com/api/v3/simple/price?ids=bitcoin&vs_currencies=usd",
		Port:              "8081",
		LogLevel:          "info",
		LogFormat:         "text",
		AMQPExchange:      "v4v",
		AMQPQueue:         "v4v_reports",
		FetchSchedule:     "*/30 * * * *",
		GoogleSheetPrefix: "V4V",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// V4V_CONFIG_FILE, and environment variables, in that order of precedence.
// Problems reading the YAML file are reported by Validate.
func Load() *Config {
	cfg := Defaults()

	cfg.ConfigFile = getEnv("V4V_CONFIG_FILE", "")
	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			cfg.loadErrs = append(cfg.loadErrs, err.Error())
		}
	}

	cfg.Site = getEnv("V4V_SITE", cfg.Site)
	cfg.RSSURL = getEnv("V4V_RSS_URL", cfg.RSSURL)
	cfg.WalletBackend = getEnv("V4V_WALLET_BACKEND", cfg.WalletBackend)
	cfg.WalletFixture = getEnv("V4V_WALLET_FIXTURE", cfg.WalletFixture)
	cfg.NWCURL = getEnv("NWC_URL", cfg.NWCURL)
	cfg.NWCTimeout = getEnvDuration("V4V_NWC_TIMEOUT", cfg.NWCTimeout)

	cfg.BatchSize = getEnvInt("V4V_BATCH_SIZE", cfg.BatchSize)
	cfg.BatchDelay = getEnvDuration("V4V_BATCH_DELAY", cfg.BatchDelay)
	cfg.MaxBatches = getEnvInt("V4V_MAX_BATCHES", cfg.MaxBatches)
	cfg.MaxRetries = getEnvInt("V4V_MAX_RETRIES", cfg.MaxRetries)
	cfg.RetryBackoff = getEnvDuration("V4V_RETRY_BACKOFF", cfg.RetryBackoff)
	cfg.FetchTimeout = getEnvDuration("V4V_FETCH_TIMEOUT", cfg.FetchTimeout)

	cfg.CacheDir = getEnv("V4V_CACHE_DIR", cfg.CacheDir)
	cfg.TitlesTTL = getEnvDuration("V4V_TITLES_TTL", cfg.TitlesTTL)
	cfg.PriceURL = getEnv("V4V_PRICE_URL", cfg.PriceURL)

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.AMQPURL = getEnv("AMQP_URL", cfg.AMQPURL)
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", cfg.AMQPExchange)
	cfg.AMQPQueue = getEnv("AMQP_QUEUE", cfg.AMQPQueue)
	cfg.FetchSchedule = getEnv("FETCH_SCHEDULE", cfg.FetchSchedule)

	cfg.ExportDBPath = getEnv("V4V_EXPORT_DB", cfg.ExportDBPath)
	cfg.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", cfg.GoogleSpreadsheetID)
	cfg.GoogleSheetPrefix = getEnv("GOOGLE_SHEET_PREFIX", cfg.GoogleSheetPrefix)

	return cfg
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file '%s': %v", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("cannot parse config file '%s': %v", path, err)
	}

	setString(&c.Site, fc.Site)
	setString(&c.RSSURL, fc.RSSURL)
	setString(&c.WalletBackend, fc.WalletBackend)
	setString(&c.WalletFixture, fc.WalletFixture)
	setString(&c.NWCURL, fc.NWCURL)
	setString(&c.CacheDir, fc.CacheDir)
	setString(&c.PriceURL, fc.PriceURL)
	setString(&c.Port, fc.Port)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.AMQPURL, fc.AMQPURL)
	setString(&c.AMQPExchange, fc.AMQPExchange)
	setString(&c.AMQPQueue, fc.AMQPQueue)
	setString(&c.FetchSchedule, fc.FetchSchedule)
	setString(&c.ExportDBPath, fc.ExportDBPath)
	setString(&c.GoogleSpreadsheetID, fc.SpreadsheetID)
	setString(&c.GoogleSheetPrefix, fc.SheetPrefix)

	if fc.BatchSize != 0 {
		c.BatchSize = fc.BatchSize
	}
	if fc.MaxBatches != 0 {
		c.MaxBatches = fc.MaxBatches
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}

	var errs []string
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"nwc_timeout", fc.NWCTimeout, &c.NWCTimeout},
		{"batch_delay", fc.BatchDelay, &c.BatchDelay},
		{"retry_backoff", fc.RetryBackoff, &c.RetryBackoff},
		{"fetch_timeout", fc.FetchTimeout, &c.FetchTimeout},
		{"titles_ttl", fc.TitlesTTL, &c.TitlesTTL},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s '%s' in config file", d.name, d.raw))
			continue
		}
		*d.dst = parsed
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	errors := append([]string(nil), c.loadErrs...)

	// Validate site identifier
	site := strings.TrimSpace(c.Site)
	if site == "" {
		errors = append(errors, "site identifier is required (set V4V_SITE)")
	} else if strings.Contains(site, "://") || strings.ContainsAny(site, " \t") {
		errors = append(errors, fmt.Sprintf("invalid site '%s': must be a bare domain such as example.com", c.Site))
	}

	switch c.WalletBackend {
	case "nwc", "fixture":
	default:
		errors = append(errors, fmt.Sprintf("invalid wallet backend '%s': must be 'nwc' or 'fixture'", c.WalletBackend))
	}

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate fetch pipeline
	if c.BatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid batch size %d: must be at least 1", c.BatchSize))
	} else if c.BatchSize > 100 {
		errors = append(errors, fmt.Sprintf("invalid batch size %d: must be at most 100", c.BatchSize))
	}
	if c.MaxBatches < 1 {
		errors = append(errors, fmt.Sprintf("invalid max batches %d: must be at least 1", c.MaxBatches))
	}
	if c.MaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("invalid max retries %d: must not be negative", c.MaxRetries))
	}
	if c.BatchDelay < 0 {
		errors = append(errors, fmt.Sprintf("invalid batch delay %v: must not be negative", c.BatchDelay))
	}
	if c.RetryBackoff < 0 {
		errors = append(errors, fmt.Sprintf("invalid retry backoff %v: must not be negative", c.RetryBackoff))
	}
	if c.TitlesTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid titles TTL %v: must be positive", c.TitlesTTL))
	}

	if c.CacheDir == "" {
		errors = append(errors, "cache directory cannot be empty")
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := cron.ParseStandard(c.FetchSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid fetch schedule '%s': %v", c.FetchSchedule, err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// RequireWallet checks the wallet connection settings. Commands that talk to
// the wallet call it in addition to Validate.
func (c *Config) RequireWallet() error {
	if c.WalletBackend == "fixture" {
		if strings.TrimSpace(c.WalletFixture) == "" {
			return fmt.Errorf("wallet fixture file is required for the fixture backend (set V4V_WALLET_FIXTURE)")
		}
		return nil
	}
	if strings.TrimSpace(c.NWCURL) == "" {
		return fmt.Errorf("wallet connection string is required (set NWC_URL)")
	}
	u, err := url.Parse(c.NWCURL)
	if err != nil {
		return fmt.Errorf("invalid NWC_URL: %v", err)
	}
	if u.Scheme != nwcScheme {
		return fmt.Errorf("invalid NWC_URL scheme '%s': must be '%s'", u.Scheme, nwcScheme)
	}
	if c.NWCTimeout <= 0 {
		return fmt.Errorf("invalid NWC timeout %v: must be positive", c.NWCTimeout)
	}
	return nil
}

// TransactionsCachePath is the location of the transaction snapshot.
func (c *Config) TransactionsCachePath() string {
	return filepath.Join(c.CacheDir, "transactions.json")
}

// ExportDB returns the SQLite export database, defaulting to a file in the
// cache directory.
func (c *Config) ExportDB() string {
	if c.ExportDBPath != "" {
		return c.ExportDBPath
	}
	return filepath.Join(c.CacheDir, "exports.db")
}

// TitlesCachePath is the location of the title cache.
func (c *Config) TitlesCachePath() string {
	return filepath.Join(c.CacheDir, "titles.json")
}

// FeedURL returns the RSS feed used for titles, derived from the site when unset.
func (c *Config) FeedURL() string {
	if c.RSSURL != "" {
		return c.RSSURL
	}
	return "https://" + strings.TrimSpace(c.Site) + "/feed.xml"
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "v4v")
	}
	return ".v4v-cache"
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
