package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ResponseCache is the hot tier of the external-call cache. Historical
// responses never change, so entries carry no TTL; eviction is left to the
// server's maxmemory policy.
//
// Key schema:
//
//	envy:resp:{key} - raw response bytes
type ResponseCache struct {
	rdb *redis.Client
}

// NewResponseCache creates a ResponseCache backed by the given Client.
func NewResponseCache(c *Client) *ResponseCache {
	return &ResponseCache{rdb: c.rdb}
}

var _ domain.ResponseCache = (*ResponseCache)(nil)

func responseKey(key string) string { return "envy:resp:" + key }

// Get returns the cached bytes or domain.ErrNotFound.
func (rc *ResponseCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := rc.rdb.Get(ctx, responseKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get response %s: %w", key, err)
	}
	return data, nil
}

// Put stores value under key.
func (rc *ResponseCache) Put(ctx context.Context, key string, value []byte) error {
	if err := rc.rdb.Set(ctx, responseKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis: put response %s: %w", key, err)
	}
	return nil
}
