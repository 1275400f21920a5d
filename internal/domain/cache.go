package domain

import (
	"context"
	"time"
)

// ResponseCache stores serialized responses of external calls. Get returns
// ErrNotFound on a miss; Put must be an idempotent upsert so concurrent
// writers of the same key never fail.
type ResponseCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
