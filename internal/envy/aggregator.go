// Package envy turns decoded settlements into per-trade envy records.
package envy

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

// DefaultGasEstimate is the gas assumed for routing one trade through a pool.
const DefaultGasEstimate = 100_000

// Policy selects which eligible trades of a settlement produce records.
type Policy string

const (
	// PolicyAll emits a record for every eligible trade with a result.
	PolicyAll Policy = "all"
	// PolicyFirst stops at the first eligible trade with a result.
	PolicyFirst Policy = "first"
)

// SurplusEstimator estimates the surplus of one trade.
type SurplusEstimator interface {
	Estimate(ctx context.Context, prices domain.ClearingPrices, trade *domain.Trade, block uint64) (*domain.Surplus, error)
}

// Aggregator computes the envy records of single settlements.
type Aggregator struct {
	network     string
	native      domain.Token
	estimator   SurplusEstimator
	usage       domain.UsageInspector
	gasEstimate *big.Int
	policy      Policy
	logger      *slog.Logger
}

// AggregatorConfig holds the aggregator's tunables.
type AggregatorConfig struct {
	Network     string
	Native      domain.Token
	GasEstimate int64
	Policy      Policy
}

// NewAggregator creates an Aggregator. usage may be nil, in which case no
// pool is reported as already used.
func NewAggregator(cfg AggregatorConfig, estimator SurplusEstimator, usage domain.UsageInspector, logger *slog.Logger) *Aggregator {
	gas := cfg.GasEstimate
	if gas <= 0 {
		gas = DefaultGasEstimate
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyAll
	}
	return &Aggregator{
		network:     cfg.Network,
		native:      cfg.Native,
		estimator:   estimator,
		usage:       usage,
		gasEstimate: big.NewInt(gas),
		policy:      policy,
		logger:      logger.With("component", "envy"),
	}
}

// GasCost returns gasPrice times the per-trade gas estimate.
func (a *Aggregator) GasCost(gasPrice *big.Int) *big.Int {
	return new(big.Int).Mul(gasPrice, a.gasEstimate)
}

// CalcEnvyPerSettlement returns one record per eligible trade the estimator
// produced a result for. Negative envy is kept. A settlement with no
// eligible trades yields an empty slice.
func (a *Aggregator) CalcEnvyPerSettlement(ctx context.Context, s *domain.DecodedSettlement) ([]domain.EnvyRecord, error) {
	records := []domain.EnvyRecord{}
	used := map[string]bool{}

	for _, trade := range s.Eligible() {
		surplus, err := a.estimator.Estimate(ctx, s.Prices, trade, s.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("envy: settlement %s trade %d: %w", s.TxHash, trade.Index, err)
		}
		if surplus == nil {
			continue
		}

		poolKey := surplus.Pool.Key()
		already, ok := used[poolKey]
		if !ok && a.usage != nil {
			already, err = a.usage.PoolUsed(ctx, s.TxHash, surplus.Pool)
			if err != nil {
				return nil, fmt.Errorf("envy: settlement %s pool usage: %w", s.TxHash, err)
			}
			used[poolKey] = already
		}

		records = append(records, domain.EnvyRecord{
			Network:         a.network,
			TxHash:          s.TxHash,
			TradeIndex:      trade.Index,
			PoolAddress:     poolKey,
			PoolName:        surplus.Pool.Name,
			TradeEnvy:       a.tradeEnvy(surplus.Amount, s.GasPrice),
			PoolAlreadyUsed: already,
			Solver:          s.Solver,
			BlockNumber:     s.BlockNumber,
			BlockTime:       s.BlockTime,
		})
		if a.policy == PolicyFirst {
			break
		}
	}
	return records, nil
}

// tradeEnvy is (surplus - gas cost) in whole native units.
func (a *Aggregator) tradeEnvy(surplus *big.Rat, gasPrice *big.Int) float64 {
	net := new(big.Rat).Sub(surplus, new(big.Rat).SetInt(a.GasCost(gasPrice)))
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(a.native.Decimals)), nil)
	net.Quo(net, new(big.Rat).SetInt(unit))
	f, _ := net.Float64()
	return f
}
