package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

// PriceStore implements domain.PriceStore using PostgreSQL. Tokens are
// stored as lowercase hex.
type PriceStore struct {
	pool *pgxpool.Pool
}

// NewPriceStore creates a new PriceStore backed by the given pool.
func NewPriceStore(pool *pgxpool.Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

var _ domain.PriceStore = (*PriceStore)(nil)

// UpsertBatch inserts price points of token, replacing existing points at
// the same block.
func (s *PriceStore) UpsertBatch(ctx context.Context, network string, token common.Address, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	const query = `
		INSERT INTO token_prices (network, token, block_number, price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (network, token, block_number) DO UPDATE SET
			price = EXCLUDED.price`

	tok := domain.LowerHex(token)
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(query, network, tok, int64(p.BlockNumber), p.Price)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert %s price at %d: %w", tok, points[i].BlockNumber, err)
		}
	}
	return nil
}

// LastBlock returns the newest stored price block of token.
func (s *PriceStore) LastBlock(ctx context.Context, network string, token common.Address) (uint64, bool, error) {
	var last *int64
	err := s.pool.QueryRow(ctx,
		"SELECT MAX(block_number) FROM token_prices WHERE network = $1 AND token = $2",
		network, domain.LowerHex(token),
	).Scan(&last)
	if err != nil {
		return 0, false, fmt.Errorf("postgres: last price block: %w", err)
	}
	if last == nil {
		return 0, false, nil
	}
	return uint64(*last), true, nil
}

// PriceAt returns the latest price of token at or before block.
func (s *PriceStore) PriceAt(ctx context.Context, network string, token common.Address, block uint64) (float64, error) {
	const query = `
		SELECT price FROM token_prices
		WHERE network = $1 AND token = $2 AND block_number <= $3
		ORDER BY block_number DESC
		LIMIT 1`

	var price float64
	err := s.pool.QueryRow(ctx, query, network, domain.LowerHex(token), int64(block)).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: price of %s at %d: %w", domain.LowerHex(token), block, err)
	}
	return price, nil
}
