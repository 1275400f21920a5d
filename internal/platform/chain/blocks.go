package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// HeaderReader reads block headers.
type HeaderReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error)
}

// BlockAtOrAfter returns the first block whose timestamp is >= t, or the head
// block when t is in the future. Block timestamps are monotonic, so a binary
// search needs O(log head) header reads.
func BlockAtOrAfter(ctx context.Context, r HeaderReader, t time.Time) (uint64, error) {
	head, err := r.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: head: %w", err)
	}
	target := uint64(t.Unix())

	lo, hi := uint64(0), head
	for lo < hi {
		mid := lo + (hi-lo)/2
		h, err := r.HeaderByNumber(ctx, new(big.Int).SetUint64(mid))
		if err != nil {
			return 0, fmt.Errorf("chain: header %d: %w", mid, err)
		}
		if h.Time < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// BlockAtOrBefore returns the last block whose timestamp is <= t.
func BlockAtOrBefore(ctx context.Context, r HeaderReader, t time.Time) (uint64, error) {
	after, err := BlockAtOrAfter(ctx, r, t.Add(time.Second))
	if err != nil {
		return 0, err
	}
	h, err := r.HeaderByNumber(ctx, new(big.Int).SetUint64(after))
	if err != nil {
		return 0, fmt.Errorf("chain: header %d: %w", after, err)
	}
	if h.Time <= uint64(t.Unix()) || after == 0 {
		return after, nil
	}
	return after - 1, nil
}
