package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

// EnvyStore implements domain.EnvyStore using PostgreSQL.
type EnvyStore struct {
	pool *pgxpool.Pool
}

// NewEnvyStore creates a new EnvyStore backed by the given pool.
func NewEnvyStore(pool *pgxpool.Pool) *EnvyStore {
	return &EnvyStore{pool: pool}
}

var _ domain.EnvyStore = (*EnvyStore)(nil)

// UpsertBatch writes records keyed by (network, tx hash, trade index).
// Recomputed records overwrite earlier ones.
func (s *EnvyStore) UpsertBatch(ctx context.Context, records []domain.EnvyRecord) error {
	if len(records) == 0 {
		return nil
	}

	const query = `
		INSERT INTO trade_envy (
			network, tx_hash, trade_index, pool_address, pool_name,
			trade_envy, pool_already_used, solver, block_number, block_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (network, tx_hash, trade_index) DO UPDATE SET
			pool_address      = EXCLUDED.pool_address,
			pool_name         = EXCLUDED.pool_name,
			trade_envy        = EXCLUDED.trade_envy,
			pool_already_used = EXCLUDED.pool_already_used,
			solver            = EXCLUDED.solver,
			block_number      = EXCLUDED.block_number,
			block_time        = EXCLUDED.block_time,
			computed_at       = NOW()`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(query,
			r.Network, r.TxHash, r.TradeIndex, r.PoolAddress, r.PoolName,
			r.TradeEnvy, r.PoolAlreadyUsed, r.Solver, int64(r.BlockNumber), nullTime(r.BlockTime),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert envy %s/%d: %w", records[i].TxHash, records[i].TradeIndex, err)
		}
	}
	return nil
}

// ListRange returns records with from <= block <= to, ordered by block, tx
// hash and trade index.
func (s *EnvyStore) ListRange(ctx context.Context, network string, from, to uint64) ([]domain.EnvyRecord, error) {
	const query = `
		SELECT network, tx_hash, trade_index, pool_address, pool_name,
			trade_envy, pool_already_used, solver, block_number, block_time
		FROM trade_envy
		WHERE network = $1 AND block_number BETWEEN $2 AND $3
		ORDER BY block_number, tx_hash, trade_index`

	rows, err := s.pool.Query(ctx, query, network, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("postgres: list envy %d-%d: %w", from, to, err)
	}
	defer rows.Close()

	var out []domain.EnvyRecord
	for rows.Next() {
		var (
			r         domain.EnvyRecord
			block     int64
			blockTime *time.Time
		)
		if err := rows.Scan(
			&r.Network, &r.TxHash, &r.TradeIndex, &r.PoolAddress, &r.PoolName,
			&r.TradeEnvy, &r.PoolAlreadyUsed, &r.Solver, &block, &blockTime,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan envy record: %w", err)
		}
		r.BlockNumber = uint64(block)
		r.BlockTime = derefTime(blockTime)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list envy: %w", err)
	}
	return out, nil
}
