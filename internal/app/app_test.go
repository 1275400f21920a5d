package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/config"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeHeaders has one block every 12 seconds starting at genesis.
type fakeHeaders struct {
	genesis time.Time
	head    uint64
}

func (f fakeHeaders) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f fakeHeaders) HeaderByNumber(_ context.Context, n *big.Int) (*types.Header, error) {
	return &types.Header{Number: n, Time: uint64(f.genesis.Unix()) + 12*n.Uint64()}, nil
}

func TestResolveRange(t *testing.T) {
	genesis := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := fakeHeaders{genesis: genesis, head: 1000}
	ctx := context.Background()

	r, err := resolveRange(ctx, Options{}, nil)
	require.NoError(t, err)
	assert.False(t, r.explicit())

	r, err = resolveRange(ctx, Options{StartBlock: 10, EndBlock: 20}, nil)
	require.NoError(t, err)
	assert.Equal(t, blockRange{from: 10, to: 20, hasFrom: true, hasTo: true}, r)

	r, err = resolveRange(ctx, Options{
		StartTime: genesis.Add(25 * time.Second),
		EndTime:   genesis.Add(125 * time.Second),
	}, h)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), r.from)
	assert.Equal(t, uint64(10), r.to)

	_, err = resolveRange(ctx, Options{StartTime: genesis}, nil)
	assert.ErrorIs(t, err, errNeedsNode)

	_, err = resolveRange(ctx, Options{StartBlock: 30, EndBlock: 20}, nil)
	assert.Error(t, err)
}

func TestBlockRangeBounds(t *testing.T) {
	from, to := blockRange{}.bounds(5, 9)
	assert.Equal(t, []uint64{5, 9}, []uint64{from, to})

	from, to = blockRange{from: 7, hasFrom: true}.bounds(5, 9)
	assert.Equal(t, []uint64{7, 9}, []uint64{from, to})
}

func TestBuildRegistry(t *testing.T) {
	cfg := config.Defaults()
	cfg.Registry.Pools = []config.PoolConfig{{
		Name:          "WBTC-WETH",
		Address:       "0x1111111111111111111111111111111111111111",
		CreationBlock: 100,
		Token0:        config.TokenConfig{Name: "WBTC", Address: "0x2260fac5e5542a773aa44fbcfedf7c193bc2c599", Decimals: 8},
		Token1:        config.TokenConfig{Name: "WETH", Address: registry.WETH.Address.Hex(), Decimals: 18},
	}}

	reg, err := buildRegistry(&cfg, nil)
	require.NoError(t, err)
	assert.Len(t, reg.Pools(), 2)

	reg, err = buildRegistry(&cfg, []string{"WBTC-WETH"})
	require.NoError(t, err)
	require.Len(t, reg.Pools(), 1)
	assert.Equal(t, "WBTC-WETH", reg.Pools()[0].Name)

	_, err = buildRegistry(&cfg, []string{"DAI-WETH"})
	assert.ErrorIs(t, err, domain.ErrUnknownPool)

	cfg.Network = "gnosis"
	_, err = buildRegistry(&cfg, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedNetwork)
}

func TestTrackedTokensIncludeNative(t *testing.T) {
	reg, err := registry.ForNetwork(registry.NetworkEthereum)
	require.NoError(t, err)
	tokens := trackedTokens(&Dependencies{Registry: reg})

	var names []string
	for _, tok := range tokens {
		names = append(names, tok.Name)
	}
	assert.ElementsMatch(t, []string{"USDC", "WETH"}, names)
}

func TestFilterPools(t *testing.T) {
	reg, err := registry.ForNetwork(registry.NetworkEthereum)
	require.NoError(t, err)
	records := []domain.EnvyRecord{
		{TxHash: "0x1", PoolAddress: registry.USDCWETH.Key()},
		{TxHash: "0x2", PoolAddress: "0xdead"},
	}
	out := filterPools(records, &Dependencies{Registry: reg})
	require.Len(t, out, 1)
	assert.Equal(t, "0x1", out[0].TxHash)
}

type fakeLocks struct {
	held     map[string]bool
	released []string
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if f.held[key] {
		return nil, fmt.Errorf("lock %s: %w", key, domain.ErrLockHeld)
	}
	f.held[key] = true
	return func() {
		delete(f.held, key)
		f.released = append(f.released, key)
	}, nil
}

func TestLocked(t *testing.T) {
	reg, err := registry.ForNetwork(registry.NetworkEthereum)
	require.NoError(t, err)
	cfg := config.Defaults()
	a := New(&cfg, Options{}, testLogger())
	locks := &fakeLocks{held: map[string]bool{}}
	deps := &Dependencies{Registry: reg, Locks: locks}

	ran := false
	err = a.locked(context.Background(), deps, func(context.Context) error {
		ran = true
		assert.True(t, locks.held["envy:ethereum"])
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"envy:ethereum"}, locks.released)

	locks.held["envy:ethereum"] = true
	err = a.locked(context.Background(), deps, func(context.Context) error {
		t.Fatal("must not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// No lock manager: runs unguarded.
	boom := errors.New("boom")
	err = a.locked(context.Background(), &Dependencies{Registry: reg}, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestEnvyModeWithoutChain(t *testing.T) {
	reg, err := registry.ForNetwork(registry.NetworkEthereum)
	require.NoError(t, err)
	cfg := config.Defaults()
	a := New(&cfg, Options{}, testLogger())
	_, err = a.EnvyMode(context.Background(), &Dependencies{Registry: reg}, blockRange{})
	assert.Error(t, err)
}

func TestNewNotifier(t *testing.T) {
	assert.Nil(t, newNotifier(config.NotifyConfig{}, testLogger()))
	assert.Nil(t, newNotifier(config.NotifyConfig{TelegramToken: "tg"}, testLogger()), "telegram needs a chat id")

	n := newNotifier(config.NotifyConfig{DiscordWebhook: "https://discord.example/hook"}, testLogger())
	require.NotNil(t, n)
}
