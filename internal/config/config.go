// Package config defines the top-level configuration of the trade envy
// pipeline and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEENVY_* environment variables.
type Config struct {
	Network  string         `toml:"network"`
	Node     NodeConfig     `toml:"node"`
	Dune     DuneConfig     `toml:"dune"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Envy     EnvyConfig     `toml:"envy"`
	Ingest   IngestConfig   `toml:"ingest"`
	Report   ReportConfig   `toml:"report"`
	Schedule ScheduleConfig `toml:"schedule"`
	Registry RegistryConfig `toml:"registry"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// NodeConfig holds the JSON-RPC endpoint used for helper calls and receipts.
type NodeConfig struct {
	URL     string   `toml:"url"`
	Timeout duration `toml:"timeout"`
}

// DuneConfig holds analytics API parameters.
type DuneConfig struct {
	APIKey         string   `toml:"api_key"`
	BaseURL        string   `toml:"base_url"`
	QuerySettle    int      `toml:"query_settle"`
	QueryPrice     int      `toml:"query_price"`
	IntervalSettle uint64   `toml:"interval_length_settle"`
	IntervalPrice  uint64   `toml:"interval_length_price"`
	RetryAttempts  int      `toml:"retry_attempts"`
	RetryDelay     duration `toml:"retry_delay"`
	PollInterval   duration `toml:"poll_interval"`
	PageSize       int      `toml:"page_size"`
}

// PostgresConfig holds PostgreSQL connection parameters.
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

// RedisConfig holds Redis connection parameters. Redis is optional: without
// it the quote cache has no hot tier and runs are not locked.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EnvyConfig tunes the envy computation.
type EnvyConfig struct {
	GasEstimate int64  `toml:"gas_estimate"`
	TradePolicy string `toml:"trade_policy"`
	Workers     int    `toml:"workers"`
	SkipFailed  bool   `toml:"skip_failed"`
	ChunkBlocks uint64 `toml:"chunk_blocks"`
}

// IngestConfig bounds settlement and price ingestion.
type IngestConfig struct {
	MinBlock uint64 `toml:"min_block"`
	// MaxBlock caps ingestion; 0 means no cap.
	MaxBlock      uint64            `toml:"max_block"`
	BackoffBlocks map[string]uint64 `toml:"backoff_blocks"`
}

// ReportConfig controls report rendering.
type ReportConfig struct {
	OutputDir string `toml:"output_dir"`
	Upload    bool   `toml:"upload"`
}

// ScheduleConfig controls schedule mode.
type ScheduleConfig struct {
	Interval duration `toml:"interval"`
}

// RegistryConfig adds pools to the built-in registry of the network.
type RegistryConfig struct {
	Pools []PoolConfig `toml:"pools"`
}

// PoolConfig describes one extra pool.
type PoolConfig struct {
	Name          string      `toml:"name"`
	Address       string      `toml:"address"`
	CreationBlock uint64      `toml:"creation_block"`
	Token0        TokenConfig `toml:"token0"`
	Token1        TokenConfig `toml:"token1"`
}

// TokenConfig describes one token of an extra pool.
type TokenConfig struct {
	Name     string `toml:"name"`
	Address  string `toml:"address"`
	Decimals int    `toml:"decimals"`
}

// NotifyConfig configures run notifications. A channel is enabled by
// setting its credentials.
type NotifyConfig struct {
	DiscordWebhook string   `toml:"discord_webhook"`
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	Events         []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Network: "ethereum",
		Node: NodeConfig{
			Timeout: duration{30 * time.Second},
		},
		Dune: DuneConfig{
			BaseURL:        "https://api.dune.com",
			QuerySettle:    4448838,
			QueryPrice:     4468197,
			IntervalSettle: 10_000,
			IntervalPrice:  100_000,
			RetryAttempts:  5,
			RetryDelay:     duration{2 * time.Second},
			PollInterval:   duration{3 * time.Second},
			PageSize:       10_000,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "trade-envy",
			ForcePathStyle: true,
		},
		Envy: EnvyConfig{
			GasEstimate: 100_000,
			TradePolicy: "all",
			Workers:     1,
			ChunkBlocks: 10_000,
		},
		Ingest: IngestConfig{
			MinBlock:      20842476,
			BackoffBlocks: map[string]uint64{"ethereum": 1800},
		},
		Report: ReportConfig{
			OutputDir: "reports",
		},
		Schedule: ScheduleConfig{
			Interval: duration{7 * 24 * time.Hour},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"ingest":   true,
	"envy":     true,
	"report":   true,
	"full":     true,
	"schedule": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validPolicies = map[string]bool{
	"all":   true,
	"first": true,
}

// needsNode reports whether the mode calls the chain.
func (c *Config) needsNode() bool {
	return c.Mode != "report"
}

// needsDune reports whether the mode ingests from the analytics API.
func (c *Config) needsDune() bool {
	return c.Mode == "ingest" || c.Mode == "full" || c.Mode == "schedule"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: ingest, envy, report, full, schedule)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Network) == "" {
		errs = append(errs, "network must not be empty")
	}

	// Node
	if c.needsNode() && c.Node.URL == "" {
		errs = append(errs, "node: url is required for mode "+c.Mode)
	}

	// Dune
	if c.needsDune() {
		if c.Dune.APIKey == "" {
			errs = append(errs, "dune: api_key is required for mode "+c.Mode)
		}
		if c.Dune.QuerySettle <= 0 || c.Dune.QueryPrice <= 0 {
			errs = append(errs, "dune: query_settle and query_price must be positive")
		}
		if c.Dune.IntervalSettle == 0 || c.Dune.IntervalPrice == 0 {
			errs = append(errs, "dune: interval lengths must be > 0")
		}
		if c.Dune.RetryAttempts < 1 {
			errs = append(errs, "dune: retry_attempts must be >= 1")
		}
		if _, ok := c.Ingest.BackoffBlocks[strings.ToLower(c.Network)]; !ok {
			errs = append(errs, fmt.Sprintf("ingest: no backoff_blocks for network %q", c.Network))
		}
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
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.Report.Upload {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when report.upload is set")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when report.upload is set")
		}
	}

	// Envy
	if c.Envy.GasEstimate <= 0 {
		errs = append(errs, "envy: gas_estimate must be > 0")
	}
	if !validPolicies[strings.ToLower(c.Envy.TradePolicy)] {
		errs = append(errs, fmt.Sprintf("envy: unknown trade_policy %q (valid: all, first)", c.Envy.TradePolicy))
	}
	if c.Envy.Workers < 1 {
		errs = append(errs, "envy: workers must be >= 1")
	}
	if c.Envy.ChunkBlocks == 0 {
		errs = append(errs, "envy: chunk_blocks must be > 0")
	}

	// Ingest
	if c.Ingest.MaxBlock != 0 && c.Ingest.MaxBlock < c.Ingest.MinBlock {
		errs = append(errs, "ingest: max_block must not be below min_block")
	}

	// Schedule
	if c.Mode == "schedule" && c.Schedule.Interval.Duration <= 0 {
		errs = append(errs, "schedule: interval must be > 0")
	}

	// Registry
	for i, p := range c.Registry.Pools {
		if p.Name == "" {
			errs = append(errs, fmt.Sprintf("registry.pools[%d]: name must not be empty", i))
		}
		for _, f := range [][2]string{{"address", p.Address}, {"token0.address", p.Token0.Address}, {"token1.address", p.Token1.Address}} {
			if !common.IsHexAddress(f[1]) {
				errs = append(errs, fmt.Sprintf("registry.pools[%d]: invalid %s %q", i, f[0], f[1]))
			}
		}
		if p.Token0.Decimals < 0 || p.Token1.Decimals < 0 {
			errs = append(errs, fmt.Sprintf("registry.pools[%d]: decimals must be >= 0", i))
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
