package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/envy"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/notify"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/pipeline"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/report"
)

// lockTTL bounds how long a crashed run can block the next one.
const lockTTL = 6 * time.Hour

// locked runs fn while holding the network's run lock. Without a lock
// manager fn runs unguarded.
func (a *App) locked(ctx context.Context, deps *Dependencies, fn func(context.Context) error) error {
	if deps.Locks == nil {
		return fn(ctx)
	}
	key := "envy:" + deps.Registry.Network()
	unlock, err := deps.Locks.Acquire(ctx, key, lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another run holds %s: %w", key, err)
		}
		return fmt.Errorf("app: acquire run lock: %w", err)
	}
	defer unlock()
	return fn(ctx)
}

// trackedTokens are the tokens whose prices are ingested: every pool token
// plus the native token.
func trackedTokens(deps *Dependencies) []domain.Token {
	tokens := deps.Registry.Tokens()
	native := deps.Registry.Native()
	for _, t := range tokens {
		if t.Address == native.Address {
			return tokens
		}
	}
	return append(tokens, native)
}

// IngestMode copies settlements and token prices into the stores. Without
// an explicit range it resumes after the last stored block.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies, rng blockRange) error {
	if deps.Ingester == nil {
		return errors.New("app: ingestion is not configured")
	}
	tokens := trackedTokens(deps)

	var settled, priced pipeline.IngestResult
	var err error
	if rng.explicit() {
		highest, herr := deps.Ingester.HighestBlock(ctx)
		if herr != nil {
			return herr
		}
		from, to := rng.bounds(a.cfg.Ingest.MinBlock, highest)
		if settled, err = deps.Ingester.IngestSettlementsRange(ctx, from, to); err != nil {
			return err
		}
		if priced, err = deps.Ingester.IngestPricesRange(ctx, tokens, from, to); err != nil {
			return err
		}
	} else {
		if settled, err = deps.Ingester.IngestSettlements(ctx); err != nil {
			return err
		}
		if priced, err = deps.Ingester.IngestPrices(ctx, tokens); err != nil {
			return err
		}
	}

	a.logger.InfoContext(ctx, "ingestion complete",
		slog.Uint64("from_block", settled.FromBlock),
		slog.Uint64("to_block", settled.ToBlock),
		slog.Int("settlements", settled.Rows),
		slog.Int("prices", priced.Rows),
	)
	return nil
}

// envyBounds resolves the block range envy and reports cover: from the
// configured first block up to the newest stored settlement.
func (a *App) envyBounds(ctx context.Context, deps *Dependencies, rng blockRange) (uint64, uint64, bool, error) {
	last, ok, err := deps.Settlements.LastBlock(ctx, deps.Registry.Network())
	if err != nil {
		return 0, 0, false, fmt.Errorf("app: last settlement block: %w", err)
	}
	if !ok && !rng.hasTo {
		return 0, 0, false, nil
	}
	from, to := rng.bounds(a.cfg.Ingest.MinBlock, last)
	return from, to, from <= to, nil
}

// EnvyMode computes envy for the stored settlements of the range.
func (a *App) EnvyMode(ctx context.Context, deps *Dependencies, rng blockRange) (envy.Summary, error) {
	if deps.Runner == nil {
		return envy.Summary{}, errors.New("app: envy computation needs a chain node")
	}
	from, to, ok, err := a.envyBounds(ctx, deps, rng)
	if err != nil {
		return envy.Summary{}, err
	}
	if !ok {
		a.logger.InfoContext(ctx, "no settlements to process")
		return envy.Summary{Network: deps.Registry.Network()}, nil
	}
	return deps.Runner.Run(ctx, from, to)
}

// ReportMode renders and publishes the stored records of the range. An empty
// runID gets a fresh one.
func (a *App) ReportMode(ctx context.Context, deps *Dependencies, rng blockRange, runID string) (report.Artifacts, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	network := deps.Registry.Network()
	from, to, ok, err := a.envyBounds(ctx, deps, rng)
	if err != nil {
		return report.Artifacts{}, err
	}

	var records []domain.EnvyRecord
	if ok {
		records, err = deps.Envy.ListRange(ctx, network, from, to)
		if err != nil {
			return report.Artifacts{}, fmt.Errorf("app: load envy records: %w", err)
		}
	}
	records = filterPools(records, deps)

	rep := report.Build(runID, network, from, to, records, time.Now())
	return deps.Publisher.Publish(ctx, rep)
}

// filterPools drops records of pools outside the active registry.
func filterPools(records []domain.EnvyRecord, deps *Dependencies) []domain.EnvyRecord {
	active := map[string]bool{}
	for _, p := range deps.Registry.Pools() {
		active[p.Key()] = true
	}
	out := records[:0]
	for _, r := range records {
		if active[r.PoolAddress] {
			out = append(out, r)
		}
	}
	return out
}

// FullMode ingests, computes envy and publishes a report under one lock.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, rng blockRange) error {
	return a.locked(ctx, deps, func(ctx context.Context) error {
		if err := a.IngestMode(ctx, deps, rng); err != nil {
			return err
		}
		sum, err := a.EnvyMode(ctx, deps, rng)
		if err != nil {
			return err
		}
		arts, err := a.ReportMode(ctx, deps, rng, sum.RunID)
		if err != nil {
			return err
		}

		path := arts.RemoteDir
		if path == "" {
			path = arts.Dir
		}
		if err := deps.Notifier.RunCompleted(ctx, notify.RunSummary{
			RunID:       sum.RunID,
			Network:     deps.Registry.Network(),
			FromBlock:   sum.FromBlock,
			ToBlock:     sum.ToBlock,
			Settlements: sum.Settlements,
			Records:     sum.Records,
			Failed:      sum.Failed,
			ReportPath:  path,
		}); err != nil {
			a.logger.WarnContext(ctx, "run notification failed", slog.String("error", err.Error()))
		}
		return nil
	})
}

// ScheduleMode runs FullMode immediately and then on every interval until
// ctx is cancelled. Failed runs are logged and retried at the next tick.
func (a *App) ScheduleMode(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Schedule.Interval.Duration
	a.logger.InfoContext(ctx, "schedule started", slog.Duration("interval", interval))

	runOnce := func() {
		if err := a.FullMode(ctx, deps, blockRange{}); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "scheduled run failed", slog.String("error", err.Error()))
			if nerr := deps.Notifier.RunFailed(ctx, deps.Registry.Network(), err); nerr != nil {
				a.logger.WarnContext(ctx, "failure notification failed", slog.String("error", nerr.Error()))
			}
		}
	}
	runOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("schedule stopped")
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}
