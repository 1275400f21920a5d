package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	json "github.com/goccy/go-json"
)

// Memo is a read-through memoizer over a ResponseCache, keyed by a typed key
// whose String method is its only encoding. Values are stored as
// JSON and kept forever. Safe for concurrent use when the cache is; two
// callers racing on one key both fetch and both upsert the same value.
type Memo[T any] struct {
	cache  domain.ResponseCache
	logger *slog.Logger
}

// NewMemo creates a Memo.
func NewMemo[T any](cache domain.ResponseCache, logger *slog.Logger) *Memo[T] {
	return &Memo[T]{cache: cache, logger: logger}
}

// Get returns the cached value for key, or calls fetch and stores its
// result. Cache read failures other than a miss are returned; a cached value
// that no longer decodes is refetched and overwritten.
func (m *Memo[T]) Get(ctx context.Context, key fmt.Stringer, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	k := key.String()

	raw, err := m.cache.Get(ctx, k)
	switch {
	case err == nil:
		var v T
		derr := json.Unmarshal(raw, &v)
		if derr == nil {
			return v, nil
		}
		m.logger.Warn("discarding undecodable cache entry", "key", k, "error", derr)
	case !errors.Is(err, domain.ErrNotFound):
		return zero, fmt.Errorf("quote: cache get: %w", err)
	}

	v, err := fetch(ctx)
	if err != nil {
		return zero, err
	}
	raw, err = json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("quote: encode response: %w", err)
	}
	if err := m.cache.Put(ctx, k, raw); err != nil {
		return zero, fmt.Errorf("quote: cache put: %w", err)
	}
	return v, nil
}
