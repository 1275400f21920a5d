package quote

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

// Tiered fronts a durable cold cache with an optional hot one. Writes go to
// the cold tier first so a hot-tier outage never loses a response.
type Tiered struct {
	hot    domain.ResponseCache
	cold   domain.ResponseCache
	logger *slog.Logger
}

var _ domain.ResponseCache = (*Tiered)(nil)

// NewTiered creates a Tiered cache. hot may be nil.
func NewTiered(hot, cold domain.ResponseCache, logger *slog.Logger) *Tiered {
	return &Tiered{hot: hot, cold: cold, logger: logger}
}

func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if t.hot != nil {
		v, err := t.hot.Get(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			t.logger.Warn("hot cache read failed", "key", key, "error", err)
		}
	}

	v, err := t.cold.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if t.hot != nil {
		if err := t.hot.Put(ctx, key, v); err != nil {
			t.logger.Warn("hot cache backfill failed", "key", key, "error", err)
		}
	}
	return v, nil
}

func (t *Tiered) Put(ctx context.Context, key string, value []byte) error {
	if err := t.cold.Put(ctx, key, value); err != nil {
		return err
	}
	if t.hot != nil {
		if err := t.hot.Put(ctx, key, value); err != nil {
			t.logger.Warn("hot cache write failed", "key", key, "error", err)
		}
	}
	return nil
}
