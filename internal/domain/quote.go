package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PoolQuoter returns the orders a pool's bonding curve would execute at the
// chain state of a given block.
type PoolQuoter interface {
	// QuoteFull returns the order the pool wants at exactly the two prices.
	QuoteFull(ctx context.Context, pool Pool, price0, price1 *big.Int, block uint64) (*PoolOrder, error)
	// QuotePartial returns the order delivering buyAmount of buyToken to the
	// pool. It returns (nil, nil) when no quote mechanism existed at block.
	QuotePartial(ctx context.Context, pool Pool, buyToken common.Address, buyAmount *big.Int, block uint64) (*PoolOrder, error)
}

// RateSource converts token amounts to the native unit of account.
type RateSource interface {
	// TokenToNativeRate returns usd(token) / usd(native) at or before block.
	TokenToNativeRate(ctx context.Context, token Token, block uint64) (*big.Rat, error)
}

// UsageInspector reports whether a pool took part in a settlement
// transaction.
type UsageInspector interface {
	PoolUsed(ctx context.Context, txHash string, pool Pool) (bool, error)
}

// Surplus is the value a pool would have added to one trade, in atomic units
// of the native token.
type Surplus struct {
	Amount *big.Rat
	Pool   Pool
}
