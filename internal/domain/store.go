package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementStore persists raw settlement rows per network.
type SettlementStore interface {
	UpsertBatch(ctx context.Context, network string, rows []Settlement) error
	// LastBlock returns the highest stored block; ok is false when the
	// network has no rows yet.
	LastBlock(ctx context.Context, network string) (block uint64, ok bool, err error)
	ListRange(ctx context.Context, network string, from, to uint64) ([]Settlement, error)
}

// PriceStore persists USD token prices keyed by block.
type PriceStore interface {
	UpsertBatch(ctx context.Context, network string, token common.Address, points []PricePoint) error
	LastBlock(ctx context.Context, network string, token common.Address) (block uint64, ok bool, err error)
	// PriceAt returns the most recent price at or before block, or
	// ErrNotFound.
	PriceAt(ctx context.Context, network string, token common.Address, block uint64) (float64, error)
}

// EnvyStore persists computed envy records.
type EnvyStore interface {
	UpsertBatch(ctx context.Context, records []EnvyRecord) error
	ListRange(ctx context.Context, network string, from, to uint64) ([]EnvyRecord, error)
}
