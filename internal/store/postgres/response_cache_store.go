package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

// ResponseCacheStore is the durable tier of the external-call cache.
type ResponseCacheStore struct {
	pool *pgxpool.Pool
}

// NewResponseCacheStore creates a new ResponseCacheStore.
func NewResponseCacheStore(pool *pgxpool.Pool) *ResponseCacheStore {
	return &ResponseCacheStore{pool: pool}
}

var _ domain.ResponseCache = (*ResponseCacheStore)(nil)

// Get returns the cached response for key or domain.ErrNotFound.
func (s *ResponseCacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, "SELECT response FROM response_cache WHERE key = $1", key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get cached response: %w", err)
	}
	return data, nil
}

// Put stores value under key. Concurrent writers of the same key all
// succeed; the last write wins.
func (s *ResponseCacheStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO response_cache (key, response) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET response = EXCLUDED.response, created_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("postgres: put cached response: %w", err)
	}
	return nil
}
