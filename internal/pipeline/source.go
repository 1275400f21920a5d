package pipeline

import (
	"context"
	"fmt"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/platform/dune"
	"github.com/ethereum/go-ethereum/common"
)

// Source fetches raw settlement and price rows for a block interval.
type Source interface {
	Settlements(ctx context.Context, network string, iv Interval) ([]domain.Settlement, error)
	Prices(ctx context.Context, network string, token common.Address, iv Interval) ([]domain.PricePoint, error)
}

// DuneSource reads the two saved analytics queries.
type DuneSource struct {
	client      *dune.Client
	settleQuery int
	priceQuery  int
}

// NewDuneSource creates a DuneSource.
func NewDuneSource(client *dune.Client, settleQuery, priceQuery int) *DuneSource {
	return &DuneSource{client: client, settleQuery: settleQuery, priceQuery: priceQuery}
}

var _ Source = (*DuneSource)(nil)

// Settlements returns every settlement call in the interval.
func (s *DuneSource) Settlements(ctx context.Context, network string, iv Interval) ([]domain.Settlement, error) {
	params := map[string]any{
		"start_block": iv.Start,
		"end_block":   iv.End,
		"network":     network,
	}
	rows, err := dune.RunQuery[dune.SettlementRow](ctx, s.client, s.settleQuery, params)
	if err != nil {
		return nil, fmt.Errorf("settlements %d-%d: %w", iv.Start, iv.End, err)
	}

	out := make([]domain.Settlement, 0, len(rows))
	for _, r := range rows {
		if uint64(r.GasPrice) > 1<<63-1 {
			return nil, fmt.Errorf("settlements %d-%d: tx %s: %w: gas price overflows", iv.Start, iv.End, r.TxHash, dune.ErrInvalidRow)
		}
		out = append(out, domain.Settlement{
			TxHash:           r.TxHash,
			ContractAddress:  r.ContractAddress,
			CallSuccess:      r.CallSuccess,
			CallTraceAddress: string(r.CallTraceAddress),
			BlockTime:        r.BlockTime.Time,
			BlockNumber:      uint64(r.BlockNumber),
			Tokens:           string(r.Tokens),
			ClearingPrices:   string(r.ClearingPrices),
			Trades:           string(r.Trades),
			Interactions:     string(r.Interactions),
			GasPrice:         int64(r.GasPrice),
			Solver:           r.Solver,
		})
	}
	return out, nil
}

// Prices returns the USD price points of token in the interval.
func (s *DuneSource) Prices(ctx context.Context, network string, token common.Address, iv Interval) ([]domain.PricePoint, error) {
	params := map[string]any{
		"contract_address": domain.LowerHex(token),
		"network":          network,
		"start_block":      iv.Start,
		"end_block":        iv.End,
	}
	rows, err := dune.RunQuery[dune.PriceRow](ctx, s.client, s.priceQuery, params)
	if err != nil {
		return nil, fmt.Errorf("prices %s %d-%d: %w", domain.LowerHex(token), iv.Start, iv.End, err)
	}
	out := make([]domain.PricePoint, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.PricePoint{BlockNumber: uint64(r.BlockNumber), Price: *r.Price})
	}
	return out, nil
}
