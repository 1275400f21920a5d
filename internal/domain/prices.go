package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ClearingPrices maps a token to its uniform clearing price within one
// settlement. Prices are protocol fixed-point integers, not normalized by
// decimals. The zero value is an empty map.
type ClearingPrices struct {
	prices map[common.Address]*big.Int
}

// NewClearingPrices builds the map from two parallel lists. When a token
// occurs more than once, its first price wins.
func NewClearingPrices(tokens []common.Address, prices []*big.Int) (ClearingPrices, error) {
	if len(tokens) != len(prices) {
		return ClearingPrices{}, fmt.Errorf("%d tokens but %d prices: %w", len(tokens), len(prices), ErrMalformedSettlement)
	}
	m := make(map[common.Address]*big.Int, len(tokens))
	for i, tok := range tokens {
		if _, ok := m[tok]; ok {
			continue
		}
		m[tok] = new(big.Int).Set(prices[i])
	}
	return ClearingPrices{prices: m}, nil
}

// Price returns a copy of the clearing price of token.
func (c ClearingPrices) Price(token common.Address) (*big.Int, error) {
	p, ok := c.prices[token]
	if !ok {
		return nil, fmt.Errorf("%s: %w", LowerHex(token), ErrMissingPrice)
	}
	return new(big.Int).Set(p), nil
}

// Len returns the number of distinct tokens priced.
func (c ClearingPrices) Len() int { return len(c.prices) }

// DecodedSettlement is the structured form of a Settlement row. It is built
// once by the decoder and never mutated downstream. Trades keeps the
// original order and length; a nil entry is a trade no tracked pool can
// serve.
type DecodedSettlement struct {
	TxHash      string
	BlockNumber uint64
	BlockTime   time.Time
	GasPrice    *big.Int
	Solver      string
	Prices      ClearingPrices
	Trades      []*Trade
}

// Eligible returns the non-excluded trades in their original order.
func (d *DecodedSettlement) Eligible() []*Trade {
	out := make([]*Trade, 0, len(d.Trades))
	for _, t := range d.Trades {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
