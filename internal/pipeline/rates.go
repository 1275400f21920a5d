package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

// StoredRates answers token-to-native rates from the ingested USD price
// series.
type StoredRates struct {
	network string
	native  domain.Token
	prices  domain.PriceStore
}

// NewStoredRates creates a StoredRates.
func NewStoredRates(network string, native domain.Token, prices domain.PriceStore) *StoredRates {
	return &StoredRates{network: network, native: native, prices: prices}
}

var _ domain.RateSource = (*StoredRates)(nil)

// TokenToNativeRate returns usd(token) / usd(native), both taken at the
// latest price point at or before block.
func (r *StoredRates) TokenToNativeRate(ctx context.Context, token domain.Token, block uint64) (*big.Rat, error) {
	if token.Address == r.native.Address {
		return big.NewRat(1, 1), nil
	}
	tokenUSD, err := r.usd(ctx, token, block)
	if err != nil {
		return nil, err
	}
	nativeUSD, err := r.usd(ctx, r.native, block)
	if err != nil {
		return nil, err
	}
	if nativeUSD.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s price is not positive at block %d", domain.ErrPriceUnavailable, r.native.Name, block)
	}
	return new(big.Rat).Quo(tokenUSD, nativeUSD), nil
}

func (r *StoredRates) usd(ctx context.Context, token domain.Token, block uint64) (*big.Rat, error) {
	p, err := r.prices.PriceAt(ctx, r.network, token.Address, block)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: no %s price at or before block %d", domain.ErrPriceUnavailable, token.Name, block)
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: %s price at %d: %w", token.Name, block, err)
	}
	v := new(big.Rat).SetFloat64(p)
	if v == nil {
		return nil, fmt.Errorf("%w: %s price is not finite", domain.ErrPriceUnavailable, token.Name)
	}
	return v, nil
}
