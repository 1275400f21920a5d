package settlement

import (
	"errors"
	"math/big"
	"testing"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	weth = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

func newDecoder(t *testing.T) *Decoder {
	t.Helper()
	reg, err := registry.ForNetwork(registry.NetworkEthereum)
	require.NoError(t, err)
	return NewDecoder(reg)
}

func bigInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

// usdcForWeth is a mainnet settlement where one USDC to WETH trade sits next
// to the USDC/WETH pool.
func usdcForWeth() domain.Settlement {
	return domain.Settlement{
		TxHash:         "0xb63483e4eb331b1475a80c594d83524a316dc17fa0c1125c4505ce128a369a26",
		BlockNumber:    20842479,
		GasPrice:       24742315967,
		Tokens:         "[" + usdc + " " + weth + " " + usdc + " " + weth + "]",
		ClearingPrices: "[3735232874593773216 9964452107 3735232874593773216 10000000000]",
		Trades:         `[{"sellTokenIndex":2,"buyTokenIndex":3,"receiver":"0xa0b23e0f09b70828574eb5c0e9ab4d95d929df47","sellAmount":10000000000,"buyAmount":3734607607620223402,"validTo":1727448113,"feeAmount":0,"flags":0,"executedAmount":10000000000}]`,
	}
}

func TestDecodeSupportedTrade(t *testing.T) {
	d := newDecoder(t)

	out, err := d.Decode(usdcForWeth())
	require.NoError(t, err)

	assert.Equal(t, "0xb63483e4eb331b1475a80c594d83524a316dc17fa0c1125c4505ce128a369a26", out.TxHash)
	assert.Equal(t, int64(24742315967), out.GasPrice.Int64())
	require.Len(t, out.Trades, 1)
	tr := out.Trades[0]
	require.NotNil(t, tr)
	assert.Equal(t, 0, tr.Index)
	assert.Equal(t, "USDC", tr.SellToken.Name)
	assert.Equal(t, "WETH", tr.BuyToken.Name)
	assert.Equal(t, "10000000000", tr.SellAmount.String())
	assert.Equal(t, "3734607607620223402", tr.BuyAmount.String())
	// Prices on the trade come from the trade's own (trailing) indices.
	assert.Equal(t, "10000000000", tr.BuyPrice.String())
	assert.True(t, tr.IsZeroToOne(registry.USDCWETH))

	assert.Equal(t, 2, out.Prices.Len())
	p, err := out.Prices.Price(registry.WETH.Address)
	require.NoError(t, err)
	assert.Equal(t, "9964452107", p.String())
}

func TestTrailingTradeEntriesExcludedFromPrices(t *testing.T) {
	d := newDecoder(t)
	row := usdcForWeth()
	// Trailing WETH entry differs from its genuine price and must be ignored.
	row.Tokens = "[" + usdc + " " + weth + " " + weth + " " + usdc + "]"
	row.ClearingPrices = "[1 2 777 888]"
	row.Trades = `[{"sellTokenIndex":2,"buyTokenIndex":3,"sellAmount":"5","buyAmount":"6"}]`

	out, err := d.Decode(row)
	require.NoError(t, err)

	p, err := out.Prices.Price(registry.WETH.Address)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Int64())
	p, err = out.Prices.Price(registry.USDC.Address)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Int64())
}

func TestClearingPricesFirstOccurrenceWins(t *testing.T) {
	usdcAddr, wethAddr := registry.USDC.Address, registry.WETH.Address

	ucp, err := domain.NewClearingPrices(
		[]common.Address{usdcAddr, wethAddr, usdcAddr},
		[]*big.Int{big.NewInt(10), big.NewInt(20), big.NewInt(30)},
	)
	require.NoError(t, err)
	p, err := ucp.Price(usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.Int64())

	_, err = domain.NewClearingPrices([]common.Address{usdcAddr}, nil)
	assert.ErrorIs(t, err, domain.ErrMalformedSettlement)
}

func TestPoolActivationBoundary(t *testing.T) {
	d := newDecoder(t)
	tests := []struct {
		name     string
		block    uint64
		included bool
	}{
		{"at creation block", registry.USDCWETH.CreationBlock, false},
		{"first active block", registry.USDCWETH.CreationBlock + 1, true},
		{"before creation", registry.USDCWETH.CreationBlock - 100, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row := usdcForWeth()
			row.BlockNumber = tc.block
			out, err := d.Decode(row)
			require.NoError(t, err)
			require.Len(t, out.Trades, 1)
			assert.Equal(t, tc.included, out.Trades[0] != nil)
		})
	}
}

func TestUnsupportedTradesBecomePlaceholders(t *testing.T) {
	d := newDecoder(t)
	row := domain.Settlement{
		TxHash:      "0x36ade13a244741d6b0de1133ac7a4203a816fb9de6c780767648179547ac25d2",
		BlockNumber: 20842704,
		GasPrice:    18884935879,
		Tokens: "[0x4104b135dbc9609fc1a9490e61369036497660c8 0x4c9edd5852cd905f086c759e8383e09bff1e68b3 " +
			"0x9d39a5de30e57443bff2a8307a4256c8797a3497 " + usdc + " " + weth + " 0xdac17f958d2ee523a2206206994597c13d831ec7 " +
			usdc + " 0xdac17f958d2ee523a2206206994597c13d831ec7 0x4c9edd5852cd905f086c759e8383e09bff1e68b3 " +
			"0x9d39a5de30e57443bff2a8307a4256c8797a3497 " + weth + " 0x4104b135dbc9609fc1a9490e61369036497660c8]",
		ClearingPrices: "[3601938712054330286 16810796960059929659 18446744073709551616 16868235400140385204116331308895 " +
			"44586737895357512086485 16872030776699377561091098976055 32617326123 32640364989 65745999728263775336556 " +
			"72176200608570553663488 4906726922711791030124 400000000000000000]",
		Trades: `[{"sellTokenIndex":6,"buyTokenIndex":7,"sellAmount":32640364989,"buyAmount":32454958994} ` +
			`{"sellTokenIndex":8,"buyTokenIndex":9,"sellAmount":500000000000000000000000,"buyAmount":455373406193078324225865} ` +
			`{"sellTokenIndex":10,"buyTokenIndex":11,"sellAmount":400000000000000000,"buyAmount":4881532747332483418091}]`,
	}

	out, err := d.Decode(row)
	require.NoError(t, err)
	assert.Len(t, out.Trades, 3)
	assert.Empty(t, out.Eligible())
	assert.Equal(t, 6, out.Prices.Len())
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Settlement)
	}{
		{"length mismatch", func(s *domain.Settlement) { s.ClearingPrices = "[1 2 3]" }},
		{"bad json", func(s *domain.Settlement) { s.Trades = `[{"sellTokenIndex":2,` }},
		{"empty trades", func(s *domain.Settlement) { s.Trades = "" }},
		{"index out of range", func(s *domain.Settlement) {
			s.Trades = `[{"sellTokenIndex":2,"buyTokenIndex":4,"sellAmount":1,"buyAmount":1}]`
		}},
		{"missing index", func(s *domain.Settlement) {
			s.Trades = `[{"sellTokenIndex":2,"sellAmount":1,"buyAmount":1}]`
		}},
		{"negative index", func(s *domain.Settlement) {
			s.Trades = `[{"sellTokenIndex":-1,"buyTokenIndex":3,"sellAmount":1,"buyAmount":1}]`
		}},
		{"bad amount", func(s *domain.Settlement) {
			s.Trades = `[{"sellTokenIndex":2,"buyTokenIndex":3,"sellAmount":"1e5","buyAmount":1}]`
		}},
		{"negative sell amount", func(s *domain.Settlement) {
			s.Trades = `[{"sellTokenIndex":2,"buyTokenIndex":3,"sellAmount":-10000000000,"buyAmount":1}]`
		}},
		{"negative buy amount", func(s *domain.Settlement) {
			s.Trades = `[{"sellTokenIndex":2,"buyTokenIndex":3,"sellAmount":1,"buyAmount":"-1"}]`
		}},
		{"bad address", func(s *domain.Settlement) { s.Tokens = "[0xnothex 0x01 0x02 0x03]" }},
		{"bad price", func(s *domain.Settlement) { s.ClearingPrices = "[1 2 x 4]" }},
		{"too many trades", func(s *domain.Settlement) {
			s.Trades = `[{"sellTokenIndex":2,"buyTokenIndex":3,"sellAmount":1,"buyAmount":1} {"sellTokenIndex":0,"buyTokenIndex":1,"sellAmount":1,"buyAmount":1} {"sellTokenIndex":0,"buyTokenIndex":1,"sellAmount":1,"buyAmount":1}]`
		}},
	}
	d := newDecoder(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			row := usdcForWeth()
			tc.mutate(&row)

			_, err := d.Decode(row)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMalformedSettlement)
			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, row.TxHash, de.TxHash)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"0xab", "0xcd"}, splitList("[0xAB 0xcd]"))
	assert.Equal(t, []string{"1", "2", "3"}, splitList("[1, 2,3]"))
	assert.Empty(t, splitList("[]"))
}
