// Package quote asks the CoW AMM helper contracts which order a pool wants at
// a historical block, memoizing every response.
package quote

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ContractCaller executes read-only calls at a block. *ethclient.Client
// satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// HelperConfig locates the helper contracts of one network.
type HelperConfig struct {
	Network       string
	FullHelper    common.Address
	PartialHelper common.Address
	// PartialDeployBlock is the block the partial helper was deployed at;
	// it cannot be queried at or before it.
	PartialDeployBlock uint64
}

// EthereumHelpers are the mainnet helper deployments.
var EthereumHelpers = HelperConfig{
	Network:            "ethereum",
	FullHelper:         common.HexToAddress("0x3FF0041A614A9E6Bf392cbB961C97DA214E9CB31"),
	PartialHelper:      common.HexToAddress("0x03362f847b4fabc12e1ce98b6b59f94401e4588e"),
	PartialDeployBlock: 20963124,
}

// HelperFor returns the helper deployment of a network.
func HelperFor(network string) (HelperConfig, error) {
	switch network {
	case EthereumHelpers.Network:
		return EthereumHelpers, nil
	default:
		return HelperConfig{}, fmt.Errorf("quote: helpers on %q: %w", network, domain.ErrUnsupportedNetwork)
	}
}

// Helper implements domain.PoolQuoter over the helper contracts.
type Helper struct {
	cfg    HelperConfig
	caller ContractCaller
	orders *Memo[*domain.PoolOrder]
	logger *slog.Logger
}

var _ domain.PoolQuoter = (*Helper)(nil)

// NewHelper creates a Helper whose responses are memoized in cache.
func NewHelper(cfg HelperConfig, caller ContractCaller, cache domain.ResponseCache, logger *slog.Logger) *Helper {
	logger = logger.With("component", "quote")
	return &Helper{
		cfg:    cfg,
		caller: caller,
		orders: NewMemo[*domain.PoolOrder](cache, logger),
		logger: logger,
	}
}

type fullParams struct {
	Prices []string `json:"prices"`
}

type partialParams struct {
	BuyAmount string `json:"buyAmount"`
	BuyToken  string `json:"buyToken"`
}

// QuoteFull calls order(pool, [price0, price1]) at block.
func (h *Helper) QuoteFull(ctx context.Context, pool domain.Pool, price0, price1 *big.Int, block uint64) (*domain.PoolOrder, error) {
	key, err := NewKey(h.cfg.Network, h.cfg.FullHelper, methodOrder, pool.Address,
		fullParams{Prices: []string{price0.String(), price1.String()}}, block)
	if err != nil {
		return nil, err
	}
	return h.orders.Get(ctx, key, func(ctx context.Context) (*domain.PoolOrder, error) {
		return h.call(ctx, fullABI, h.cfg.FullHelper, methodOrder, block,
			pool.Address, []*big.Int{price0, price1})
	})
}

// QuotePartial calls orderFromBuyAmount(pool, buyToken, buyAmount) at block.
// Blocks at or before the partial helper's deployment yield (nil, nil).
func (h *Helper) QuotePartial(ctx context.Context, pool domain.Pool, buyToken common.Address, buyAmount *big.Int, block uint64) (*domain.PoolOrder, error) {
	if block <= h.cfg.PartialDeployBlock {
		return nil, nil
	}
	key, err := NewKey(h.cfg.Network, h.cfg.PartialHelper, methodOrderFromBuyAmt, pool.Address,
		partialParams{BuyAmount: buyAmount.String(), BuyToken: domain.LowerHex(buyToken)}, block)
	if err != nil {
		return nil, err
	}
	return h.orders.Get(ctx, key, func(ctx context.Context) (*domain.PoolOrder, error) {
		return h.call(ctx, partialABI, h.cfg.PartialHelper, methodOrderFromBuyAmt, block,
			pool.Address, buyToken, buyAmount)
	})
}

func (h *Helper) call(ctx context.Context, parsed abi.ABI, contract common.Address, method string, block uint64, args ...any) (*domain.PoolOrder, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("quote: pack %s: %w", method, err)
	}
	to := contract
	out, err := h.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, new(big.Int).SetUint64(block))
	if err != nil {
		return nil, fmt.Errorf("quote: call %s at %d: %w", method, block, err)
	}
	h.logger.Debug("helper call", "method", method, "block", block, "bytes", len(out))
	return decodeOrder(parsed, method, out)
}

func decodeOrder(parsed abi.ABI, method string, out []byte) (*domain.PoolOrder, error) {
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("quote: unpack %s: %w", method, err)
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("quote: %s returned %d values, want 4", method, len(values))
	}
	o := *abi.ConvertType(values[0], new(gpv2Order)).(*gpv2Order)
	sig, _ := values[3].([]byte)

	return &domain.PoolOrder{
		SellToken:         o.SellToken,
		BuyToken:          o.BuyToken,
		Receiver:          o.Receiver,
		SellAmount:        o.SellAmount,
		BuyAmount:         o.BuyAmount,
		ValidTo:           o.ValidTo,
		AppData:           common.Hash(o.AppData),
		FeeAmount:         o.FeeAmount,
		Kind:              common.Hash(o.Kind),
		PartiallyFillable: o.PartiallyFillable,
		Signature:         sig,
	}, nil
}
