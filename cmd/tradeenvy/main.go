// Command tradeenvy ingests CoW Protocol settlements, estimates how much
// surplus CoW AMM pools could have added to each trade and reports it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/app"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty to skip)")
	mode := flag.String("mode", "", "run mode: ingest, envy, report, full, schedule (overrides config)")
	network := flag.String("network", "", "network to process (overrides config)")
	start := flag.String("start", "", "start time, RFC3339 or YYYY-MM-DD")
	end := flag.String("end", "", "end time, RFC3339 or YYYY-MM-DD")
	startBlock := flag.Uint64("start-block", 0, "first block (takes precedence over -start)")
	endBlock := flag.Uint64("end-block", 0, "last block (takes precedence over -end)")
	pools := flag.String("pools", "", "comma-separated pool names to restrict to, e.g. USDC-WETH")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *network != "" {
		cfg.Network = *network
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	opts, err := buildOptions(*start, *end, *startBlock, *endBlock, *pools)
	if err != nil {
		logger.Error("invalid flags", slog.String("error", err.Error()))
		os.Exit(2)
	}

	redacted := config.RedactedConfig(cfg)
	logger.Info("trade envy starting",
		slog.String("mode", cfg.Mode),
		slog.String("network", cfg.Network),
		slog.String("config", *configPath),
		slog.String("node_url", redacted.Node.URL),
	)

	application := app.New(cfg, opts, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shut down gracefully")
			return
		}
		logger.Error("run failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		application.Close()
		os.Exit(1)
	}

	logger.Info("trade envy finished")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildOptions(start, end string, startBlock, endBlock uint64, pools string) (app.Options, error) {
	opts := app.Options{StartBlock: startBlock, EndBlock: endBlock}
	var err error
	if start != "" {
		if opts.StartTime, err = parseTime(start); err != nil {
			return opts, fmt.Errorf("-start: %w", err)
		}
	}
	if end != "" {
		if opts.EndTime, err = parseTime(end); err != nil {
			return opts, fmt.Errorf("-end: %w", err)
		}
	}
	for _, p := range strings.Split(pools, ",") {
		if p = strings.TrimSpace(p); p != "" {
			opts.Pools = append(opts.Pools, p)
		}
	}
	return opts, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC3339 or YYYY-MM-DD, got %q", s)
	}
	return t, nil
}
