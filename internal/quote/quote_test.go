package quote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/registry"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	puts   int
	getErr error
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	v, ok := c.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (c *memCache) Put(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.puts++
	return nil
}

type fakeCaller struct {
	calls  int
	msgs   []ethereum.CallMsg
	blocks []*big.Int
	out    []byte
	err    error
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.calls++
	f.msgs = append(f.msgs, msg)
	f.blocks = append(f.blocks, block)
	return f.out, f.err
}

type interaction struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

func packedOrder(t *testing.T, method string, o gpv2Order) []byte {
	t.Helper()
	parsed := fullABI
	if method == methodOrderFromBuyAmt {
		parsed = partialABI
	}
	out, err := parsed.Methods[method].Outputs.Pack(o, []interaction{}, []interaction{}, []byte{0xca, 0xfe})
	require.NoError(t, err)
	return out
}

func sampleOrder() gpv2Order {
	return gpv2Order{
		SellToken:  registry.WETH.Address,
		BuyToken:   registry.USDC.Address,
		Receiver:   common.Address{},
		SellAmount: big.NewInt(3_000_000_000_000_000),
		BuyAmount:  big.NewInt(10_000_000_000),
		ValidTo:    1727448113,
		FeeAmount:  big.NewInt(0),
		Kind:       [32]byte{0xf3},
	}
}

func TestKeyString(t *testing.T) {
	k, err := NewKey("Ethereum", EthereumHelpers.FullHelper, methodOrder, registry.USDCWETH.Address,
		fullParams{Prices: []string{"1", "2"}}, 20842479)
	require.NoError(t, err)
	assert.Equal(t,
		`ethereum/0x3ff0041a614a9e6bf392cbb961c97da214e9cb31/order/0xf08d4dea369c456d26a3168ff0024b904f2d8b91/{"prices":["1","2"]}/20842479`,
		k.String())

	other := k
	other.Block++
	assert.NotEqual(t, k.String(), other.String())
}

func TestHelperQuoteFullMemoizes(t *testing.T) {
	caller := &fakeCaller{out: packedOrder(t, methodOrder, sampleOrder())}
	cache := newMemCache()
	h := NewHelper(EthereumHelpers, caller, cache, discard)

	for i := 0; i < 2; i++ {
		order, err := h.QuoteFull(context.Background(), registry.USDCWETH, big.NewInt(5), big.NewInt(7), 20842479)
		require.NoError(t, err)
		require.NotNil(t, order)
		assert.Equal(t, registry.WETH.Address, order.SellToken)
		assert.Equal(t, registry.USDC.Address, order.BuyToken)
		assert.Equal(t, "3000000000000000", order.SellAmount.String())
		assert.Equal(t, "10000000000", order.BuyAmount.String())
		assert.Equal(t, uint32(1727448113), order.ValidTo)
		assert.Equal(t, []byte{0xca, 0xfe}, []byte(order.Signature))
	}

	assert.Equal(t, 1, caller.calls)
	assert.Equal(t, 1, cache.puts)
	require.Len(t, caller.msgs, 1)
	assert.Equal(t, EthereumHelpers.FullHelper, *caller.msgs[0].To)
	assert.Equal(t, uint64(20842479), caller.blocks[0].Uint64())

	// The call data encodes the pool and both prices.
	args, err := fullABI.Methods[methodOrder].Inputs.Unpack(caller.msgs[0].Data[4:])
	require.NoError(t, err)
	assert.Equal(t, registry.USDCWETH.Address, args[0])
	assert.Equal(t, []*big.Int{big.NewInt(5), big.NewInt(7)}, args[1])
}

func TestHelperQuotePartialBeforeDeployment(t *testing.T) {
	caller := &fakeCaller{}
	h := NewHelper(EthereumHelpers, caller, newMemCache(), discard)

	order, err := h.QuotePartial(context.Background(), registry.USDCWETH, registry.WETH.Address, big.NewInt(1), EthereumHelpers.PartialDeployBlock)
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.Zero(t, caller.calls)
}

func TestHelperQuotePartial(t *testing.T) {
	o := sampleOrder()
	o.SellToken, o.BuyToken = registry.USDC.Address, registry.WETH.Address
	o.SellAmount = big.NewInt(33376932)
	caller := &fakeCaller{out: packedOrder(t, methodOrderFromBuyAmt, o)}
	h := NewHelper(EthereumHelpers, caller, newMemCache(), discard)

	order, err := h.QuotePartial(context.Background(), registry.USDCWETH, registry.WETH.Address, big.NewInt(1e16), 21500516)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, int64(33376932), order.SellAmount.Int64())
	assert.Equal(t, EthereumHelpers.PartialHelper, *caller.msgs[0].To)
}

func TestHelperCallFailureNotCached(t *testing.T) {
	boom := errors.New("node down")
	caller := &fakeCaller{err: boom}
	cache := newMemCache()
	h := NewHelper(EthereumHelpers, caller, cache, discard)

	_, err := h.QuoteFull(context.Background(), registry.USDCWETH, big.NewInt(5), big.NewInt(7), 1)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, cache.puts)
}

func TestMemoPropagatesCacheFailure(t *testing.T) {
	cache := newMemCache()
	cache.getErr = errors.New("connection reset")
	m := NewMemo[int](cache, discard)

	_, err := m.Get(context.Background(), Key{Network: "ethereum"}, func(context.Context) (int, error) {
		t.Fatal("fetch must not run when the cache is unreachable")
		return 0, nil
	})
	assert.Error(t, err)
}

func TestMemoRefetchesUndecodableEntry(t *testing.T) {
	cache := newMemCache()
	key := Key{Network: "ethereum", Function: "f"}
	cache.data[key.String()] = []byte("{not json")
	m := NewMemo[int](cache, discard)

	v, err := m.Get(context.Background(), key, func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, []byte("42"), cache.data[key.String()])
}

func TestTieredBackfillsHot(t *testing.T) {
	hot, cold := newMemCache(), newMemCache()
	cold.data["k"] = []byte("v")
	tc := NewTiered(hot, cold, discard)

	v, err := tc.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	assert.Equal(t, []byte("v"), hot.data["k"])

	_, err = tc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, tc.Put(context.Background(), "n", []byte("w")))
	assert.Equal(t, []byte("w"), cold.data["n"])
	assert.Equal(t, []byte("w"), hot.data["n"])
}

func TestTieredWithoutHot(t *testing.T) {
	cold := newMemCache()
	tc := NewTiered(nil, cold, discard)
	require.NoError(t, tc.Put(context.Background(), "k", []byte("v")))
	v, err := tc.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestHotReadFailureFallsBackToCold(t *testing.T) {
	hot, cold := newMemCache(), newMemCache()
	hot.getErr = errors.New("redis down")
	cold.data["k"] = []byte("v")

	v, err := NewTiered(hot, cold, discard).Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestHelperFor(t *testing.T) {
	cfg, err := HelperFor("ethereum")
	require.NoError(t, err)
	assert.Equal(t, EthereumHelpers, cfg)

	_, err = HelperFor("arbitrum")
	assert.ErrorIs(t, err, domain.ErrUnsupportedNetwork)
}
