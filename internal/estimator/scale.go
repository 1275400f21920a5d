package estimator

import (
	"fmt"
	"math/big"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

var (
	// PriceCeiling is the largest price the helper contract's curve math
	// accepts without overflowing.
	PriceCeiling = new(big.Int).Exp(big.NewInt(10), big.NewInt(45), nil)
	// PriceFloor is the smallest scaled price that still keeps enough
	// relative precision between the two prices.
	PriceFloor = big.NewInt(10_000)

	ten = big.NewInt(10)
)

// ScalePrices divides both prices by one common power of ten until neither
// exceeds PriceCeiling. Scaling that pushes either price under PriceFloor
// fails with domain.ErrPriceScaleExhausted. The inputs are not modified.
func ScalePrices(p0, p1 *big.Int) (*big.Int, *big.Int, error) {
	s0, s1 := new(big.Int).Set(p0), new(big.Int).Set(p1)
	scaled := 0
	for s0.Cmp(PriceCeiling) > 0 || s1.Cmp(PriceCeiling) > 0 {
		s0.Quo(s0, ten)
		s1.Quo(s1, ten)
		scaled++
	}
	if scaled > 0 && (s0.Cmp(PriceFloor) < 0 || s1.Cmp(PriceFloor) < 0) {
		return nil, nil, fmt.Errorf("estimator: prices (%s, %s) scaled by 1e%d fall below %s: %w",
			p0, p1, scaled, PriceFloor, domain.ErrPriceScaleExhausted)
	}
	return s0, s1, nil
}
