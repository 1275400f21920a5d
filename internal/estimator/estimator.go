// Package estimator computes the surplus a CoW AMM pool would have given a
// settlement trade had the trade been routed through the pool.
package estimator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/registry"
)

// Estimator evaluates single trades against the pools of one registry. It
// performs no retries; quoter and rate failures propagate to the caller.
type Estimator struct {
	reg    *registry.Registry
	quoter domain.PoolQuoter
	rates  domain.RateSource
	logger *slog.Logger
}

// New creates an Estimator.
func New(reg *registry.Registry, quoter domain.PoolQuoter, rates domain.RateSource, logger *slog.Logger) *Estimator {
	return &Estimator{
		reg:    reg,
		quoter: quoter,
		rates:  rates,
		logger: logger.With("component", "estimator"),
	}
}

// Estimate returns the surplus, in native atomic units, that the trade's pool
// would have added at the settlement's clearing prices. A nil Surplus with a
// nil error means the pool's quote is irrelevant to the trade: the pool wants
// the other direction or quoted nothing.
func (e *Estimator) Estimate(ctx context.Context, prices domain.ClearingPrices, trade *domain.Trade, block uint64) (*domain.Surplus, error) {
	pool, err := e.reg.PoolForPair(trade.BuyToken.Address, trade.SellToken.Address)
	if err != nil {
		return nil, fmt.Errorf("estimator: trade %d: %w", trade.Index, err)
	}

	price0, err := prices.Price(pool.Token0.Address)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	price1, err := prices.Price(pool.Token1.Address)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	q0, q1, err := ScalePrices(price0, price1)
	if err != nil {
		return nil, err
	}

	order, err := e.quoter.QuoteFull(ctx, pool, q0, q1, block)
	if err != nil {
		return nil, fmt.Errorf("estimator: quote %s at %d: %w", pool.Name, block, err)
	}
	if order == nil || !order.MirrorsTrade(trade) {
		return nil, nil
	}

	var selling, buying domain.Token
	switch {
	case trade.IsOneToZero(pool):
		selling, buying = pool.Token1, pool.Token0
	case trade.IsZeroToOne(pool):
		selling, buying = pool.Token0, pool.Token1
	default:
		return nil, fmt.Errorf("estimator: trade %d sells %s for %s, neither direction of pool %s",
			trade.Index, trade.SellToken.Name, trade.BuyToken.Name, pool.Name)
	}

	cowBuy := order.BuyAmount
	if cowBuy == nil || cowBuy.Sign() <= 0 {
		e.logger.Debug("pool quoted an empty order", "pool", pool.Name, "block", block)
		return nil, nil
	}
	maxBuy := minInt(trade.SellAmount, cowBuy)

	maxSell, err := e.sellAmount(ctx, pool, order, selling, maxBuy, block)
	if err != nil {
		return nil, err
	}

	sellingPrice, err := prices.Price(selling.Address)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	buyingPrice, err := prices.Price(buying.Address)
	if err != nil {
		return nil, fmt.Errorf("estimator: %w", err)
	}
	if buyingPrice.Sign() == 0 || price1.Sign() == 0 {
		return nil, fmt.Errorf("estimator: zero clearing price for pool %s: %w", pool.Name, domain.ErrMalformedSettlement)
	}

	// Amount of the buying token the trade gets at exactly the clearing
	// prices.
	executedBuy := new(big.Rat).SetFrac(new(big.Int).Mul(maxBuy, sellingPrice), buyingPrice)
	surplus := new(big.Rat).Sub(new(big.Rat).SetInt(maxSell), executedBuy)

	// Express the surplus in token1.
	if trade.IsOneToZero(pool) {
		surplus.Mul(surplus, new(big.Rat).SetFrac(price0, price1))
	}

	if !e.reg.IsNative(pool.Token1.Address) {
		rate, err := e.rates.TokenToNativeRate(ctx, pool.Token1, block)
		if err != nil {
			return nil, fmt.Errorf("estimator: %s rate at %d: %w", pool.Token1.Name, block, err)
		}
		surplus.Mul(surplus, rate)
		surplus.Mul(surplus, decimalShift(e.reg.Native().Decimals-pool.Token1.Decimals))
	}

	return &domain.Surplus{Amount: surplus, Pool: pool}, nil
}

// sellAmount resolves how much the pool would sell for maxBuy of selling.
// A full fill uses the quoted order as is. A partial fill asks the partial
// helper and, where it was not deployed yet, scales the full order
// linearly. The curve is not linear, so that fallback overstates the price
// for large fills.
func (e *Estimator) sellAmount(ctx context.Context, pool domain.Pool, order *domain.PoolOrder, selling domain.Token, maxBuy *big.Int, block uint64) (*big.Int, error) {
	if maxBuy.Cmp(order.BuyAmount) == 0 {
		return new(big.Int).Set(order.SellAmount), nil
	}

	partial, err := e.quoter.QuotePartial(ctx, pool, selling.Address, maxBuy, block)
	if err != nil {
		return nil, fmt.Errorf("estimator: partial quote %s at %d: %w", pool.Name, block, err)
	}
	if partial != nil {
		return new(big.Int).Set(partial.SellAmount), nil
	}

	e.logger.Debug("partial helper unavailable, scaling full order",
		"pool", pool.Name, "block", block, "fill", maxBuy.String(), "quoted", order.BuyAmount.String())
	scaled := new(big.Int).Mul(order.SellAmount, maxBuy)
	return scaled.Quo(scaled, order.BuyAmount), nil
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// decimalShift returns 10^exp as a rational; exp may be negative.
func decimalShift(exp int) *big.Rat {
	if exp >= 0 {
		return new(big.Rat).SetInt(new(big.Int).Exp(ten, big.NewInt(int64(exp)), nil))
	}
	return new(big.Rat).SetFrac(big.NewInt(1), new(big.Int).Exp(ten, big.NewInt(int64(-exp)), nil))
}
