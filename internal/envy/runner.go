package envy

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Decoder decodes stored settlement rows.
type Decoder interface {
	Decode(row domain.Settlement) (*domain.DecodedSettlement, error)
}

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	Network string
	// ChunkBlocks is how many blocks of settlements are loaded and
	// persisted at a time.
	ChunkBlocks uint64
	// Workers bounds concurrent settlement computations. 1 is sequential.
	Workers int
	// SkipFailed logs and counts settlements that fail instead of aborting
	// the run.
	SkipFailed bool
}

// Summary describes one envy run.
type Summary struct {
	RunID       string
	Network     string
	FromBlock   uint64
	ToBlock     uint64
	Settlements int
	Records     int
	Failed      int
}

// Runner computes and persists envy records over a block range.
type Runner struct {
	cfg         RunnerConfig
	settlements domain.SettlementStore
	envy        domain.EnvyStore
	decoder     Decoder
	agg         *Aggregator
	logger      *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, settlements domain.SettlementStore, envy domain.EnvyStore, decoder Decoder, agg *Aggregator, logger *slog.Logger) *Runner {
	if cfg.ChunkBlocks == 0 {
		cfg.ChunkBlocks = 10_000
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Runner{
		cfg:         cfg,
		settlements: settlements,
		envy:        envy,
		decoder:     decoder,
		agg:         agg,
		logger:      logger.With("component", "envy-runner"),
	}
}

// Run processes settlements with from <= block <= to. Records are upserted
// per chunk, so an aborted run leaves earlier chunks persisted and a rerun
// overwrites them with identical values.
func (r *Runner) Run(ctx context.Context, from, to uint64) (Summary, error) {
	sum := Summary{RunID: uuid.NewString(), Network: r.cfg.Network, FromBlock: from, ToBlock: to}
	if from > to {
		return sum, fmt.Errorf("envy: empty block range %d..%d", from, to)
	}
	log := r.logger.With("run_id", sum.RunID)
	log.Info("envy run starting", "from", from, "to", to, "workers", r.cfg.Workers)

	for start := from; start <= to; {
		end := min(start+r.cfg.ChunkBlocks-1, to)
		if err := r.runChunk(ctx, log, start, end, &sum); err != nil {
			return sum, err
		}
		if end == to {
			break
		}
		start = end + 1
	}

	log.Info("envy run finished",
		"settlements", sum.Settlements, "records", sum.Records, "failed", sum.Failed)
	return sum, nil
}

func (r *Runner) runChunk(ctx context.Context, log *slog.Logger, start, end uint64, sum *Summary) error {
	rows, err := r.settlements.ListRange(ctx, r.cfg.Network, start, end)
	if err != nil {
		return fmt.Errorf("envy: list settlements %d..%d: %w", start, end, err)
	}
	if len(rows) == 0 {
		return nil
	}

	results := make([][]domain.EnvyRecord, len(rows))
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range rows {
		i := i
		row := rows[i]
		g.Go(func() error {
			recs, err := r.process(gctx, row)
			if err != nil {
				if !r.cfg.SkipFailed {
					return err
				}
				failed.Add(1)
				log.Error("skipping settlement", "tx_hash", row.TxHash, "block", row.BlockNumber, "error", err)
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var batch []domain.EnvyRecord
	for _, recs := range results {
		batch = append(batch, recs...)
	}
	if len(batch) > 0 {
		if err := r.envy.UpsertBatch(ctx, batch); err != nil {
			return fmt.Errorf("envy: persist %d records: %w", len(batch), err)
		}
	}

	sum.Settlements += len(rows)
	sum.Records += len(batch)
	sum.Failed += int(failed.Load())
	log.Debug("chunk done", "from", start, "to", end, "settlements", len(rows), "records", len(batch))
	return nil
}

func (r *Runner) process(ctx context.Context, row domain.Settlement) ([]domain.EnvyRecord, error) {
	decoded, err := r.decoder.Decode(row)
	if err != nil {
		return nil, err
	}
	return r.agg.CalcEnvyPerSettlement(ctx, decoded)
}
