package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

var _ domain.SettlementStore = (*SettlementStore)(nil)

const settlementSelectCols = `tx_hash, contract_address, call_success, call_trace_address,
	block_time, block_number, tokens, clearing_prices, trades, interactions,
	gas_price, solver`

// UpsertBatch inserts rows, replacing any row with the same tx hash.
func (s *SettlementStore) UpsertBatch(ctx context.Context, network string, rows []domain.Settlement) error {
	if len(rows) == 0 {
		return nil
	}

	const query = `
		INSERT INTO settlements (
			network, tx_hash, contract_address, call_success, call_trace_address,
			block_time, block_number, tokens, clearing_prices, trades,
			interactions, gas_price, solver
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13
		)
		ON CONFLICT (network, tx_hash) DO UPDATE SET
			contract_address   = EXCLUDED.contract_address,
			call_success       = EXCLUDED.call_success,
			call_trace_address = EXCLUDED.call_trace_address,
			block_time         = EXCLUDED.block_time,
			block_number       = EXCLUDED.block_number,
			tokens             = EXCLUDED.tokens,
			clearing_prices    = EXCLUDED.clearing_prices,
			trades             = EXCLUDED.trades,
			interactions       = EXCLUDED.interactions,
			gas_price          = EXCLUDED.gas_price,
			solver             = EXCLUDED.solver,
			ingested_at        = NOW()`

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query,
			network, r.TxHash, r.ContractAddress, r.CallSuccess, r.CallTraceAddress,
			nullTime(r.BlockTime), int64(r.BlockNumber), r.Tokens, r.ClearingPrices, r.Trades,
			r.Interactions, r.GasPrice, r.Solver,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert settlement %s: %w", rows[i].TxHash, err)
		}
	}
	return nil
}

// LastBlock returns the highest stored settlement block of network.
func (s *SettlementStore) LastBlock(ctx context.Context, network string) (uint64, bool, error) {
	var last *int64
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(block_number) FROM settlements WHERE network = $1", network,
	).Scan(&last)
	if err != nil {
		return 0, false, fmt.Errorf("postgres: last settlement block: %w", err)
	}
	if last == nil {
		return 0, false, nil
	}
	return uint64(*last), true, nil
}

// ListRange returns settlements with from <= block <= to in block order.
func (s *SettlementStore) ListRange(ctx context.Context, network string, from, to uint64) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementSelectCols + ` FROM settlements
		WHERE network = $1 AND block_number BETWEEN $2 AND $3
		ORDER BY block_number, tx_hash`

	rows, err := s.pool.Query(ctx, query, network, int64(from), int64(to))
	if err != nil {
		return nil, fmt.Errorf("postgres: list settlements %d-%d: %w", from, to, err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var (
			st        domain.Settlement
			blockTime *time.Time
			block     int64
		)
		if err := rows.Scan(
			&st.TxHash, &st.ContractAddress, &st.CallSuccess, &st.CallTraceAddress,
			&blockTime, &block, &st.Tokens, &st.ClearingPrices, &st.Trades,
			&st.Interactions, &st.GasPrice, &st.Solver,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan settlement: %w", err)
		}
		st.BlockNumber = uint64(block)
		st.BlockTime = derefTime(blockTime)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list settlements: %w", err)
	}
	return out, nil
}
