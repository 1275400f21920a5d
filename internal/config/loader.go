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
// built-in defaults, applies TRADEENVY_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEENVY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Network, "TRADEENVY_NETWORK")

	// ── Node ──
	setStr(&cfg.Node.URL, "TRADEENVY_NODE_URL")
	setStr(&cfg.Node.URL, "NODE_URL") // compatibility alias
	setDuration(&cfg.Node.Timeout, "TRADEENVY_NODE_TIMEOUT")

	// ── Dune ──
	setStr(&cfg.Dune.APIKey, "TRADEENVY_DUNE_API_KEY")
	setStr(&cfg.Dune.APIKey, "DUNE_API_KEY") // compatibility alias
	setStr(&cfg.Dune.BaseURL, "TRADEENVY_DUNE_BASE_URL")
	setInt(&cfg.Dune.QuerySettle, "TRADEENVY_DUNE_QUERY_SETTLE")
	setInt(&cfg.Dune.QueryPrice, "TRADEENVY_DUNE_QUERY_PRICE")
	setUint64(&cfg.Dune.IntervalSettle, "TRADEENVY_DUNE_INTERVAL_LENGTH_SETTLE")
	setUint64(&cfg.Dune.IntervalPrice, "TRADEENVY_DUNE_INTERVAL_LENGTH_PRICE")
	setInt(&cfg.Dune.RetryAttempts, "TRADEENVY_DUNE_RETRY_ATTEMPTS")
	setDuration(&cfg.Dune.RetryDelay, "TRADEENVY_DUNE_RETRY_DELAY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADEENVY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADEENVY_POSTGRES_HOST")
	setStr(&cfg.Postgres.Host, "DB_HOST") // compatibility alias
	setInt(&cfg.Postgres.Port, "TRADEENVY_POSTGRES_PORT")
	setInt(&cfg.Postgres.Port, "DB_PORT")
	setStr(&cfg.Postgres.Database, "TRADEENVY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.Database, "DB_NAME")
	setStr(&cfg.Postgres.User, "TRADEENVY_POSTGRES_USER")
	setStr(&cfg.Postgres.User, "DB_USER")
	setStr(&cfg.Postgres.Password, "TRADEENVY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.Password, "DB_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADEENVY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADEENVY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADEENVY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADEENVY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADEENVY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADEENVY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEENVY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEENVY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEENVY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEENVY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEENVY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEENVY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEENVY_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEENVY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEENVY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEENVY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEENVY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEENVY_S3_FORCE_PATH_STYLE")

	// ── Envy ──
	setInt64(&cfg.Envy.GasEstimate, "TRADEENVY_ENVY_GAS_ESTIMATE")
	setStr(&cfg.Envy.TradePolicy, "TRADEENVY_ENVY_TRADE_POLICY")
	setInt(&cfg.Envy.Workers, "TRADEENVY_ENVY_WORKERS")
	setBool(&cfg.Envy.SkipFailed, "TRADEENVY_ENVY_SKIP_FAILED")
	setUint64(&cfg.Envy.ChunkBlocks, "TRADEENVY_ENVY_CHUNK_BLOCKS")

	// ── Ingest ──
	setUint64(&cfg.Ingest.MinBlock, "TRADEENVY_INGEST_MIN_BLOCK")
	setUint64(&cfg.Ingest.MaxBlock, "TRADEENVY_INGEST_MAX_BLOCK")

	// ── Report ──
	setStr(&cfg.Report.OutputDir, "TRADEENVY_REPORT_OUTPUT_DIR")
	setBool(&cfg.Report.Upload, "TRADEENVY_REPORT_UPLOAD")

	// ── Schedule ──
	setDuration(&cfg.Schedule.Interval, "TRADEENVY_SCHEDULE_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhook, "TRADEENVY_NOTIFY_DISCORD_WEBHOOK")
	setStr(&cfg.Notify.TelegramToken, "TRADEENVY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEENVY_NOTIFY_TELEGRAM_CHAT_ID")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEENVY_MODE")
	setStr(&cfg.LogLevel, "TRADEENVY_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(strings.ReplaceAll(v, "_", ""), 10, 64); err == nil {
			*dst = n
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
