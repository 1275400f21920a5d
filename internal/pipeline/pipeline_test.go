package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"testing"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/platform/dune"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSplitIntervals(t *testing.T) {
	tests := []struct {
		name              string
		start, end, width uint64
		want              []Interval
	}{
		{"empty", 10, 9, 5, nil},
		{"single block", 7, 7, 5, []Interval{{7, 7}}},
		{"exact multiple", 1, 10, 5, []Interval{{1, 5}, {6, 10}}},
		{"remainder", 1, 12, 5, []Interval{{1, 5}, {6, 10}, {11, 12}}},
		{"zero width", 3, 9, 0, []Interval{{3, 9}}},
		{"near max", ^uint64(0) - 2, ^uint64(0), 2, []Interval{{^uint64(0) - 2, ^uint64(0) - 1}, {^uint64(0), ^uint64(0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitIntervals(tt.start, tt.end, tt.width))
		})
	}
}

type fakeHead struct{ head uint64 }

func (f fakeHead) HeadBlock(context.Context) (uint64, error) { return f.head, nil }

type fakeSource struct {
	mu          sync.Mutex
	settleCalls []Interval
	priceCalls  map[common.Address][]Interval
	failures    int
	err         error
}

func (f *fakeSource) Settlements(_ context.Context, _ string, iv Interval) ([]domain.Settlement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	f.settleCalls = append(f.settleCalls, iv)
	return []domain.Settlement{{TxHash: "0x" + string(rune('a'+len(f.settleCalls))), BlockNumber: iv.End}}, nil
}

func (f *fakeSource) Prices(_ context.Context, _ string, token common.Address, iv Interval) ([]domain.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, f.err
	}
	if f.priceCalls == nil {
		f.priceCalls = map[common.Address][]Interval{}
	}
	f.priceCalls[token] = append(f.priceCalls[token], iv)
	return []domain.PricePoint{{BlockNumber: iv.Start, Price: 1}}, nil
}

type memSettlements struct {
	rows map[string]domain.Settlement
}

func (m *memSettlements) UpsertBatch(_ context.Context, _ string, rows []domain.Settlement) error {
	if m.rows == nil {
		m.rows = map[string]domain.Settlement{}
	}
	for _, r := range rows {
		m.rows[r.TxHash] = r
	}
	return nil
}

func (m *memSettlements) LastBlock(context.Context, string) (uint64, bool, error) {
	var last uint64
	for _, r := range m.rows {
		if r.BlockNumber > last {
			last = r.BlockNumber
		}
	}
	return last, len(m.rows) > 0, nil
}

func (m *memSettlements) ListRange(context.Context, string, uint64, uint64) ([]domain.Settlement, error) {
	return nil, nil
}

type memPrices struct {
	points map[common.Address]map[uint64]float64
}

func (m *memPrices) UpsertBatch(_ context.Context, _ string, token common.Address, points []domain.PricePoint) error {
	if m.points == nil {
		m.points = map[common.Address]map[uint64]float64{}
	}
	if m.points[token] == nil {
		m.points[token] = map[uint64]float64{}
	}
	for _, p := range points {
		m.points[token][p.BlockNumber] = p.Price
	}
	return nil
}

func (m *memPrices) LastBlock(_ context.Context, _ string, token common.Address) (uint64, bool, error) {
	var last uint64
	for b := range m.points[token] {
		if b > last {
			last = b
		}
	}
	return last, len(m.points[token]) > 0, nil
}

func (m *memPrices) PriceAt(_ context.Context, _ string, token common.Address, block uint64) (float64, error) {
	var blocks []uint64
	for b := range m.points[token] {
		if b <= block {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) == 0 {
		return 0, domain.ErrNotFound
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] > blocks[j] })
	return m.points[token][blocks[0]], nil
}

func newTestIngester(src Source, head uint64, st *memSettlements, pr *memPrices) *Ingester {
	return NewIngester(IngesterConfig{
		Network:        registry.NetworkEthereum,
		IntervalSettle: 100,
		IntervalPrice:  1000,
		MinBlock:       1000,
		BackoffBlocks:  50,
		RetryAttempts:  3,
	}, src, fakeHead{head: head}, st, pr, testLogger())
}

func TestHighestBlock(t *testing.T) {
	in := newTestIngester(&fakeSource{}, 1300, &memSettlements{}, &memPrices{})
	got, err := in.HighestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1250), got)

	in.cfg.MaxBlock = 1200
	got, err = in.HighestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1200), got)

	in.head = fakeHead{head: 10}
	got, err = in.HighestBlock(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got)
}

func TestIngestSettlements_ResumesAfterLastBlock(t *testing.T) {
	src := &fakeSource{}
	st := &memSettlements{}
	in := newTestIngester(src, 1300, st, &memPrices{})

	res, err := in.IngestSettlements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), res.FromBlock)
	assert.Equal(t, uint64(1250), res.ToBlock)
	assert.Equal(t, []Interval{{1000, 1099}, {1100, 1199}, {1200, 1250}}, src.settleCalls)
	assert.Equal(t, 3, res.Rows)

	// Head moved on; the next pass starts right after the last stored block.
	in.head = fakeHead{head: 1400}
	src.settleCalls = nil
	res, err = in.IngestSettlements(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Interval{{1251, 1350}}, src.settleCalls)
	assert.Equal(t, uint64(1251), res.FromBlock)
}

func TestIngestSettlements_UpToDate(t *testing.T) {
	src := &fakeSource{}
	in := newTestIngester(src, 1000, &memSettlements{}, &memPrices{})
	res, err := in.IngestSettlements(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Empty(t, src.settleCalls)
}

func TestIngest_RetriesTransientErrors(t *testing.T) {
	src := &fakeSource{failures: 2, err: errors.New("timeout")}
	in := newTestIngester(src, 1150, &memSettlements{}, &memPrices{})
	res, err := in.IngestSettlementsRange(context.Background(), 1000, 1050)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rows)
}

func TestIngest_GivesUpAfterAttempts(t *testing.T) {
	src := &fakeSource{failures: 3, err: errors.New("timeout")}
	in := newTestIngester(src, 1150, &memSettlements{}, &memPrices{})
	_, err := in.IngestSettlementsRange(context.Background(), 1000, 1050)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestIngest_InvalidRowIsNotRetried(t *testing.T) {
	src := &fakeSource{failures: 2, err: dune.ErrInvalidRow}
	in := newTestIngester(src, 2000, &memSettlements{}, &memPrices{})
	_, err := in.IngestPricesRange(context.Background(), []domain.Token{registry.WETH}, 1000, 1500)
	require.ErrorIs(t, err, dune.ErrInvalidRow)
	assert.Equal(t, 1, src.failures)
}

func TestIngestPrices_PerTokenResume(t *testing.T) {
	src := &fakeSource{}
	pr := &memPrices{}
	require.NoError(t, pr.UpsertBatch(context.Background(), "ethereum", registry.USDC.Address,
		[]domain.PricePoint{{BlockNumber: 1500, Price: 1}}))
	in := newTestIngester(src, 2550, &memSettlements{}, pr)

	res, err := in.IngestPrices(context.Background(), []domain.Token{registry.USDC, registry.WETH})
	require.NoError(t, err)
	assert.Equal(t, []Interval{{1501, 2500}}, src.priceCalls[registry.USDC.Address])
	assert.Equal(t, []Interval{{1000, 1999}, {2000, 2500}}, src.priceCalls[registry.WETH.Address])
	assert.Equal(t, uint64(1000), res.FromBlock)
	assert.Equal(t, 3, res.Rows)
}

func TestStoredRates(t *testing.T) {
	ctx := context.Background()
	pr := &memPrices{}
	require.NoError(t, pr.UpsertBatch(ctx, "ethereum", registry.WETH.Address, []domain.PricePoint{
		{BlockNumber: 100, Price: 2000},
		{BlockNumber: 200, Price: 4000},
	}))
	require.NoError(t, pr.UpsertBatch(ctx, "ethereum", registry.USDC.Address, []domain.PricePoint{
		{BlockNumber: 150, Price: 1},
	}))
	rates := NewStoredRates("ethereum", registry.WETH, pr)

	r, err := rates.TokenToNativeRate(ctx, registry.USDC, 180)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Cmp(big.NewRat(1, 2000)))

	r, err = rates.TokenToNativeRate(ctx, registry.USDC, 250)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Cmp(big.NewRat(1, 4000)))

	r, err = rates.TokenToNativeRate(ctx, registry.WETH, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Cmp(big.NewRat(1, 1)))

	_, err = rates.TokenToNativeRate(ctx, registry.USDC, 120)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = rates.TokenToNativeRate(ctx, registry.USDC, 99)
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}
