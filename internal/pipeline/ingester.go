package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/platform/dune"
)

// HeadReader returns the chain head.
type HeadReader interface {
	HeadBlock(ctx context.Context) (uint64, error)
}

// IngesterConfig tunes an Ingester.
type IngesterConfig struct {
	Network        string
	IntervalSettle uint64
	IntervalPrice  uint64
	// MinBlock is where ingestion starts when nothing is stored yet.
	MinBlock uint64
	// MaxBlock caps the highest ingested block. 0 means no cap.
	MaxBlock uint64
	// BackoffBlocks keeps ingestion this many blocks behind the head so
	// the analytics source has caught up.
	BackoffBlocks uint64
	RetryAttempts int
	RetryDelay    time.Duration
}

// IngestResult describes one ingestion pass.
type IngestResult struct {
	FromBlock uint64
	ToBlock   uint64
	Rows      int
}

// Ingester copies settlements and token prices from a Source into the
// stores, resuming after the last stored block.
type Ingester struct {
	cfg         IngesterConfig
	source      Source
	head        HeadReader
	settlements domain.SettlementStore
	prices      domain.PriceStore
	logger      *slog.Logger
}

// NewIngester creates an Ingester.
func NewIngester(cfg IngesterConfig, source Source, head HeadReader, settlements domain.SettlementStore, prices domain.PriceStore, logger *slog.Logger) *Ingester {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	return &Ingester{
		cfg:         cfg,
		source:      source,
		head:        head,
		settlements: settlements,
		prices:      prices,
		logger:      logger.With("component", "ingester", "network", cfg.Network),
	}
}

// HighestBlock is the newest block that is safe to ingest.
func (in *Ingester) HighestBlock(ctx context.Context) (uint64, error) {
	head, err := in.head.HeadBlock(ctx)
	if err != nil {
		return 0, fmt.Errorf("pipeline: highest block: %w", err)
	}
	highest := uint64(0)
	if head > in.cfg.BackoffBlocks {
		highest = head - in.cfg.BackoffBlocks
	}
	if in.cfg.MaxBlock > 0 && in.cfg.MaxBlock < highest {
		highest = in.cfg.MaxBlock
	}
	return highest, nil
}

// IngestSettlements fetches settlements from just after the last stored
// block up to HighestBlock.
func (in *Ingester) IngestSettlements(ctx context.Context) (IngestResult, error) {
	last, ok, err := in.settlements.LastBlock(ctx, in.cfg.Network)
	if err != nil {
		return IngestResult{}, fmt.Errorf("pipeline: last settlement block: %w", err)
	}
	from := in.cfg.MinBlock
	if ok {
		from = last + 1
	}
	to, err := in.HighestBlock(ctx)
	if err != nil {
		return IngestResult{}, err
	}
	return in.IngestSettlementsRange(ctx, from, to)
}

// IngestSettlementsRange fetches and upserts settlements in [from, to].
func (in *Ingester) IngestSettlementsRange(ctx context.Context, from, to uint64) (IngestResult, error) {
	res := IngestResult{FromBlock: from, ToBlock: to}
	if from > to {
		in.logger.Info("settlements up to date", "from_block", from, "to_block", to)
		return res, nil
	}

	for _, iv := range SplitIntervals(from, to, in.cfg.IntervalSettle) {
		var rows []domain.Settlement
		err := in.retry(ctx, "settlements", func() error {
			var ferr error
			rows, ferr = in.source.Settlements(ctx, in.cfg.Network, iv)
			return ferr
		})
		if err != nil {
			return res, fmt.Errorf("pipeline: ingest settlements: %w", err)
		}
		if err := in.settlements.UpsertBatch(ctx, in.cfg.Network, rows); err != nil {
			return res, fmt.Errorf("pipeline: store settlements %d-%d: %w", iv.Start, iv.End, err)
		}
		res.Rows += len(rows)
		in.logger.Info("settlements ingested",
			"start_block", iv.Start,
			"end_block", iv.End,
			"rows", len(rows),
		)
	}
	return res, nil
}

// IngestPrices brings the price series of every token up to HighestBlock.
// Each token resumes after its own last stored block.
func (in *Ingester) IngestPrices(ctx context.Context, tokens []domain.Token) (IngestResult, error) {
	to, err := in.HighestBlock(ctx)
	if err != nil {
		return IngestResult{}, err
	}
	total := IngestResult{FromBlock: to, ToBlock: to}
	for _, tok := range tokens {
		last, ok, err := in.prices.LastBlock(ctx, in.cfg.Network, tok.Address)
		if err != nil {
			return total, fmt.Errorf("pipeline: last price block for %s: %w", tok.Name, err)
		}
		from := in.cfg.MinBlock
		if ok {
			from = last + 1
		}
		res, err := in.ingestTokenPrices(ctx, tok, from, to)
		if err != nil {
			return total, err
		}
		total.Rows += res.Rows
		if from < total.FromBlock {
			total.FromBlock = from
		}
	}
	return total, nil
}

// IngestPricesRange fetches and upserts prices of every token in [from, to].
func (in *Ingester) IngestPricesRange(ctx context.Context, tokens []domain.Token, from, to uint64) (IngestResult, error) {
	total := IngestResult{FromBlock: from, ToBlock: to}
	for _, tok := range tokens {
		res, err := in.ingestTokenPrices(ctx, tok, from, to)
		if err != nil {
			return total, err
		}
		total.Rows += res.Rows
	}
	return total, nil
}

func (in *Ingester) ingestTokenPrices(ctx context.Context, tok domain.Token, from, to uint64) (IngestResult, error) {
	res := IngestResult{FromBlock: from, ToBlock: to}
	if from > to {
		in.logger.Info("prices up to date", "token", tok.Name, "from_block", from, "to_block", to)
		return res, nil
	}
	for _, iv := range SplitIntervals(from, to, in.cfg.IntervalPrice) {
		var points []domain.PricePoint
		err := in.retry(ctx, "prices", func() error {
			var ferr error
			points, ferr = in.source.Prices(ctx, in.cfg.Network, tok.Address, iv)
			return ferr
		})
		if err != nil {
			return res, fmt.Errorf("pipeline: ingest %s prices: %w", tok.Name, err)
		}
		if err := in.prices.UpsertBatch(ctx, in.cfg.Network, tok.Address, points); err != nil {
			return res, fmt.Errorf("pipeline: store %s prices %d-%d: %w", tok.Name, iv.Start, iv.End, err)
		}
		res.Rows += len(points)
		in.logger.Info("prices ingested",
			"token", tok.Name,
			"start_block", iv.Start,
			"end_block", iv.End,
			"rows", len(points),
		)
	}
	return res, nil
}

// retry runs op up to RetryAttempts times with a fixed delay. Invalid rows
// fail immediately.
func (in *Ingester) retry(ctx context.Context, what string, op func() error) error {
	wrapped := func() error {
		err := op()
		if errors.Is(err, dune.ErrInvalidRow) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		in.logger.Warn("fetch failed, retrying", "what", what, "error", err, "wait", wait)
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(in.cfg.RetryDelay), uint64(in.cfg.RetryAttempts-1)),
		ctx,
	)
	return backoff.RetryNotify(wrapped, policy, notify)
}
