package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/cowprotocol/cow-amm-trade-envy/internal/blob/s3"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/cache/redis"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/config"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/envy"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/estimator"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/notify"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/pipeline"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/platform/chain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/platform/dune"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/quote"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/registry"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/report"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/settlement"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/store/postgres"
)

// Dependencies bundles everything the modes need. Optional parts are nil
// when their backend is not configured.
type Dependencies struct {
	Registry *registry.Registry

	// Stores
	Settlements domain.SettlementStore
	Prices      domain.PriceStore
	Envy        domain.EnvyStore
	Responses   domain.ResponseCache

	// Optional backends
	Chain *chain.Client
	Locks domain.LockManager
	Blob  domain.BlobWriter

	// Pipeline stages
	Ingester  *pipeline.Ingester
	Runner    *envy.Runner
	Publisher *report.Publisher
	Notifier  *notify.Notifier
}

func (d *Dependencies) headers() chain.HeaderReader {
	if d.Chain == nil {
		return nil
	}
	return d.Chain
}

func needsChain(mode string) bool {
	return mode != "report"
}

func needsDune(mode string) bool {
	switch mode {
	case "ingest", "full", "schedule":
		return true
	default:
		return false
	}
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.DiscordWebhook != "" {
		senders = append(senders, notify.Discord{WebhookURL: cfg.DiscordWebhook})
	}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.Telegram{Token: cfg.TelegramToken, ChatID: cfg.TelegramChatID})
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewNotifier(senders, cfg.Events, logger)
}

// Wire constructs every dependency from cfg and returns a cleanup function
// releasing them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, reg *registry.Registry, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)
	network := reg.Network()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Registry: reg}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: postgres: %w", err))
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			return fail(fmt.Errorf("wire: postgres migrations: %w", err))
		}
	}

	pool := pgClient.Pool()
	deps.Settlements = postgres.NewSettlementStore(pool)
	deps.Prices = postgres.NewPriceStore(pool)
	deps.Envy = postgres.NewEnvyStore(pool)
	deps.Responses = postgres.NewResponseCacheStore(pool)

	// --- Redis: hot cache tier and run lock ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Responses = quote.NewTiered(redis.NewResponseCache(redisClient), deps.Responses, logger)
		deps.Locks = redis.NewLockManager(redisClient, logger)
	}

	// --- S3 (report upload only) ---
	if cfg.Report.Upload {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3Client.Health(ctx); err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.Blob = s3blob.NewWriter(s3Client, "")
	}
	deps.Publisher = report.NewPublisher(cfg.Report.OutputDir, deps.Blob, logger)
	deps.Notifier = newNotifier(cfg.Notify, logger)

	// --- Chain node ---
	if needsChain(mode) || cfg.Node.URL != "" {
		if cfg.Node.URL == "" {
			return fail(fmt.Errorf("wire: node.url is required for mode %s", mode))
		}
		c, err := chain.Dial(ctx, cfg.Node.URL, cfg.Node.Timeout.Duration, logger)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, c.Close)
		deps.Chain = c
	}

	// --- Ingestion ---
	if needsDune(mode) {
		duneClient := dune.NewClient(dune.Config{
			BaseURL:      cfg.Dune.BaseURL,
			APIKey:       cfg.Dune.APIKey,
			PollInterval: cfg.Dune.PollInterval.Duration,
			PageSize:     cfg.Dune.PageSize,
		}, logger)
		deps.Ingester = pipeline.NewIngester(pipeline.IngesterConfig{
			Network:        network,
			IntervalSettle: cfg.Dune.IntervalSettle,
			IntervalPrice:  cfg.Dune.IntervalPrice,
			MinBlock:       cfg.Ingest.MinBlock,
			MaxBlock:       cfg.Ingest.MaxBlock,
			BackoffBlocks:  cfg.Ingest.BackoffBlocks[network],
			RetryAttempts:  cfg.Dune.RetryAttempts,
			RetryDelay:     cfg.Dune.RetryDelay.Duration,
		},
			pipeline.NewDuneSource(duneClient, cfg.Dune.QuerySettle, cfg.Dune.QueryPrice),
			deps.Chain, deps.Settlements, deps.Prices, logger,
		)
	}

	// --- Envy computation ---
	if deps.Chain != nil {
		helpers, err := quote.HelperFor(network)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		quoter := quote.NewHelper(helpers, deps.Chain, deps.Responses, logger)
		rates := pipeline.NewStoredRates(network, reg.Native(), deps.Prices)
		usage := envy.NewLogInspector(network, deps.Chain, deps.Responses, logger)

		agg := envy.NewAggregator(envy.AggregatorConfig{
			Network:     network,
			Native:      reg.Native(),
			GasEstimate: cfg.Envy.GasEstimate,
			Policy:      envy.Policy(strings.ToLower(cfg.Envy.TradePolicy)),
		}, estimator.New(reg, quoter, rates, logger), usage, logger)

		deps.Runner = envy.NewRunner(envy.RunnerConfig{
			Network:     network,
			ChunkBlocks: cfg.Envy.ChunkBlocks,
			Workers:     cfg.Envy.Workers,
			SkipFailed:  cfg.Envy.SkipFailed,
		}, deps.Settlements, deps.Envy, settlement.NewDecoder(reg), agg, logger)
	}

	logger.Info("dependencies wired",
		"network", network,
		"pools", len(reg.Pools()),
		"redis", cfg.Redis.Enabled,
		"upload", cfg.Report.Upload,
		"notify", deps.Notifier != nil,
		"chain", deps.Chain != nil,
	)
	return deps, cleanup, nil
}
