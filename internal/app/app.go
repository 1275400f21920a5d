// Package app wires the trade envy pipeline together and runs it in the
// configured mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/config"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/registry"
)

// Options carries per-invocation overrides from the command line. Zero
// values mean "not set".
type Options struct {
	StartTime  time.Time
	EndTime    time.Time
	StartBlock uint64
	EndBlock   uint64
	// Pools restricts computation to the named pools.
	Pools []string
}

// App is the root application object. It owns the configuration, logger and
// the cleanup functions run on shutdown.
type App struct {
	cfg     *config.Config
	opts    Options
	logger  *slog.Logger
	closers []func()
}

// New creates a new App.
func New(cfg *config.Config, opts Options, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run validates the pool selection, wires dependencies and runs the
// configured mode until it finishes or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting",
		slog.String("mode", mode),
		slog.String("network", a.cfg.Network),
	)

	// Pool names are checked before anything connects.
	reg, err := buildRegistry(a.cfg, a.opts.Pools)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, reg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	rng, err := resolveRange(ctx, a.opts, deps.headers())
	if err != nil {
		return fmt.Errorf("app: resolve range: %w", err)
	}

	switch mode {
	case "ingest":
		return a.locked(ctx, deps, func(ctx context.Context) error {
			return a.IngestMode(ctx, deps, rng)
		})
	case "envy":
		return a.locked(ctx, deps, func(ctx context.Context) error {
			_, err := a.EnvyMode(ctx, deps, rng)
			return err
		})
	case "report":
		_, err := a.ReportMode(ctx, deps, rng, "")
		return err
	case "full":
		return a.FullMode(ctx, deps, rng)
	case "schedule":
		return a.ScheduleMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call more than once.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildRegistry builds the network registry extended with configured pools
// and restricted to names when given.
func buildRegistry(cfg *config.Config, names []string) (*registry.Registry, error) {
	extra, err := poolsFromConfig(cfg.Registry.Pools)
	if err != nil {
		return nil, err
	}
	reg, err := registry.ForNetwork(cfg.Network, extra...)
	if err != nil {
		return nil, err
	}
	return reg.Restrict(names)
}
