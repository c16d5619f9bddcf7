package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PERPDESK_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PERPDESK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PERPDESK_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PERPDESK_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PERPDESK_WALLET_KEY_PASSWORD")

	// ── Ostium ──
	setStr(&cfg.Ostium.RPCURL, "PERPDESK_OSTIUM_RPC_URL")
	setInt64(&cfg.Ostium.ChainID, "PERPDESK_OSTIUM_CHAIN_ID")
	setStr(&cfg.Ostium.Network, "PERPDESK_OSTIUM_NETWORK")
	setStr(&cfg.Ostium.TradingContract, "PERPDESK_OSTIUM_TRADING_CONTRACT")
	setStr(&cfg.Ostium.TokenContract, "PERPDESK_OSTIUM_TOKEN_CONTRACT")
	setStr(&cfg.Ostium.FaucetContract, "PERPDESK_OSTIUM_FAUCET_CONTRACT")
	setStr(&cfg.Ostium.SubgraphURL, "PERPDESK_OSTIUM_SUBGRAPH_URL")
	setStr(&cfg.Ostium.SubgraphAPIKey, "PERPDESK_OSTIUM_SUBGRAPH_API_KEY")
	setStr(&cfg.Ostium.PriceFeedURL, "PERPDESK_OSTIUM_PRICE_FEED_URL")
	setStr(&cfg.Ostium.PriceWSURL, "PERPDESK_OSTIUM_PRICE_WS_URL")

	// ── Trading ──
	setFloat64(&cfg.Trading.Slippage, "PERPDESK_TRADING_SLIPPAGE")
	setStr(&cfg.Trading.Trader, "PERPDESK_TRADING_TRADER")
	setInt(&cfg.Trading.TrackAttempts, "PERPDESK_TRADING_TRACK_ATTEMPTS")
	setDuration(&cfg.Trading.TrackInterval, "PERPDESK_TRADING_TRACK_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PERPDESK_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PERPDESK_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PERPDESK_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PERPDESK_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PERPDESK_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PERPDESK_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PERPDESK_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "PERPDESK_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "PERPDESK_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PERPDESK_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PERPDESK_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PERPDESK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PERPDESK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PERPDESK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PERPDESK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PERPDESK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PERPDESK_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PERPDESK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PERPDESK_S3_REGION")
	setStr(&cfg.S3.Bucket, "PERPDESK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PERPDESK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PERPDESK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PERPDESK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PERPDESK_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.ArchiveEnabled, "PERPDESK_S3_ARCHIVE_ENABLED")
	setInt(&cfg.S3.ArchiveRetentionDays, "PERPDESK_S3_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.S3.ArchiveInterval, "PERPDESK_S3_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PERPDESK_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PERPDESK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PERPDESK_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PERPDESK_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PERPDESK_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PERPDESK_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PERPDESK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PERPDESK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PERPDESK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PERPDESK_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PERPDESK_MODE")
	setStr(&cfg.LogLevel, "PERPDESK_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
