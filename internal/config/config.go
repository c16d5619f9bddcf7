// Package config defines the top-level configuration for the perpdesk
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PERPDESK_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Ostium   OstiumConfig   `toml:"ostium"`
	Trading  TradingConfig  `toml:"trading"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the signing wallet credentials. Either a raw private key
// or an encrypted key file plus password may be configured; with neither, the
// service runs read-only and trading endpoints refuse submissions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// OstiumConfig holds the venue endpoints and chain parameters.
type OstiumConfig struct {
	RPCURL          string `toml:"rpc_url"`
	ChainID         int64  `toml:"chain_id"`
	Network         string `toml:"network"`
	TradingContract string `toml:"trading_contract"`
	TokenContract   string `toml:"token_contract"`
	FaucetContract  string `toml:"faucet_contract"`
	SubgraphURL     string `toml:"subgraph_url"`
	SubgraphAPIKey  string `toml:"subgraph_api_key"`
	PriceFeedURL    string `toml:"price_feed_url"`
	PriceWSURL      string `toml:"price_ws_url"`
}

// TradingConfig holds the trade coordinator parameters.
type TradingConfig struct {
	// Slippage is the default slippage tolerance percentage for market
	// orders.
	Slippage float64 `toml:"slippage"`
	// Trader optionally names a delegated position owner whose positions
	// the signing wallet manages.
	Trader string `toml:"trader"`
	// TrackAttempts and TrackInterval bound the post-submission polling
	// for an order's terminal state.
	TrackAttempts int      `toml:"track_attempts"`
	TrackInterval duration `toml:"track_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters for the order log.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for order-log
// archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	// ArchiveEnabled turns on periodic order-log archival.
	ArchiveEnabled bool `toml:"archive_enabled"`
	// ArchiveRetentionDays is how long entries stay in PostgreSQL before
	// they move to the archive.
	ArchiveRetentionDays int `toml:"archive_retention_days"`
	// ArchiveInterval is how often the archiver runs.
	ArchiveInterval duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// the limiter.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Ostium: OstiumConfig{
			RPCURL:       "https://sepolia-rollup.arbitrum.io/rpc",
			ChainID:      421614,
			Network:      "arbitrum-sepolia",
			SubgraphURL:  "https://api.goldsky.com/api/public/project_ostium/subgraphs/ostium-testnet/prod/gn",
			PriceFeedURL: "https://metadata-backend.ostium.io",
			PriceWSURL:   "wss://metadata-backend.ostium.io/ws",
		},
		Trading: TradingConfig{
			Slippage:      1.0,
			TrackAttempts: 10,
			TrackInterval: duration{3 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "perpdesk",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:             "http://localhost:9000",
			Region:               "us-east-1",
			Bucket:               "perpdesk-data",
			UseSSL:               false,
			ForcePathStyle:       true,
			ArchiveEnabled:       false,
			ArchiveRetentionDays: 90,
			ArchiveInterval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   30,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"order_placed", "order_filled", "order_cancelled", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — optional, but an encrypted key file needs its password.
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Ostium endpoints
	if c.Ostium.RPCURL == "" {
		errs = append(errs, "ostium: rpc_url must not be empty")
	}
	if c.Ostium.ChainID <= 0 {
		errs = append(errs, "ostium: chain_id must be positive")
	}
	if c.Ostium.SubgraphURL == "" {
		errs = append(errs, "ostium: subgraph_url must not be empty")
	}
	if c.Ostium.PriceFeedURL == "" {
		errs = append(errs, "ostium: price_feed_url must not be empty")
	}
	hasWallet := c.Wallet.PrivateKey != "" || c.Wallet.EncryptedKeyPath != ""
	if hasWallet && c.Ostium.TradingContract == "" {
		errs = append(errs, "ostium: trading_contract is required when a wallet is configured")
	}

	// Trading
	if c.Trading.Slippage < 0 || c.Trading.Slippage > 100 {
		errs = append(errs, fmt.Sprintf("trading: slippage must be 0-100, got %g", c.Trading.Slippage))
	}
	if c.Trading.TrackAttempts < 1 {
		errs = append(errs, "trading: track_attempts must be >= 1")
	}
	if c.Trading.TrackInterval.Duration <= 0 {
		errs = append(errs, "trading: track_interval must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only required when archival is on.
	if c.S3.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archival is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archival is enabled")
		}
		if c.S3.ArchiveRetentionDays < 1 {
			errs = append(errs, "s3: archive_retention_days must be >= 1")
		}
		if c.S3.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "s3: archive_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	// Notify — a Telegram token needs its chat id.
	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
