package envy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/quote"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ReceiptFetcher fetches transaction receipts. *ethclient.Client satisfies
// it.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// receiptKey caches the logs of one transaction.
type receiptKey struct {
	network string
	txHash  string
}

func (k receiptKey) String() string {
	return "receipt/" + k.network + "/" + strings.ToLower(k.txHash)
}

type cachedLog struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
}

// LogInspector decides pool usage from a settlement's receipt logs: a pool
// took part when its address appears inside any log topic.
type LogInspector struct {
	network  string
	receipts ReceiptFetcher
	logs     *quote.Memo[[]cachedLog]
	logger   *slog.Logger
}

var _ domain.UsageInspector = (*LogInspector)(nil)

// NewLogInspector creates a LogInspector caching receipts in cache.
func NewLogInspector(network string, receipts ReceiptFetcher, cache domain.ResponseCache, logger *slog.Logger) *LogInspector {
	logger = logger.With("component", "usage")
	return &LogInspector{
		network:  network,
		receipts: receipts,
		logs:     quote.NewMemo[[]cachedLog](cache, logger),
		logger:   logger,
	}
}

// PoolUsed reports whether pool shows up in the logs of txHash.
func (l *LogInspector) PoolUsed(ctx context.Context, txHash string, pool domain.Pool) (bool, error) {
	logs, err := l.logs.Get(ctx, receiptKey{network: l.network, txHash: txHash}, func(ctx context.Context) ([]cachedLog, error) {
		receipt, err := l.receipts.TransactionReceipt(ctx, common.HexToHash(txHash))
		if err != nil {
			return nil, fmt.Errorf("envy: receipt %s: %w", txHash, err)
		}
		out := make([]cachedLog, 0, len(receipt.Logs))
		for _, lg := range receipt.Logs {
			out = append(out, cachedLog{Address: lg.Address, Topics: lg.Topics})
		}
		return out, nil
	})
	if err != nil {
		return false, err
	}

	needle := strings.TrimPrefix(pool.Key(), "0x")
	for _, lg := range logs {
		for _, topic := range lg.Topics {
			if strings.Contains(strings.ToLower(topic.Hex()), needle) {
				return true, nil
			}
		}
	}
	return false, nil
}
