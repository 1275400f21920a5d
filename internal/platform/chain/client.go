// Package chain wraps the JSON-RPC node used for historical helper calls,
// receipts and block lookups.
package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is a node client with a per-call timeout.
type Client struct {
	eth     *ethclient.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Dial connects to url, retrying a few times with a fixed delay, and checks
// the node answers eth_blockNumber.
func Dial(ctx context.Context, url string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	logger = logger.With("component", "chain")
	var eth *ethclient.Client

	op := func() error {
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return err
		}
		hctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if _, err := c.BlockNumber(hctx); err != nil {
			c.Close()
			return fmt.Errorf("fetch head: %w", err)
		}
		eth = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("node not reachable, retrying", "error", err, "wait", wait)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 3), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("chain: dial: %w", err)
	}
	return &Client{eth: eth, timeout: timeout, logger: logger}, nil
}

// Close releases the connection.
func (c *Client) Close() {
	c.eth.Close()
}

// HeadBlock returns the latest block number.
func (c *Client) HeadBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: head block: %w", err)
	}
	return n, nil
}

// BlockNumber satisfies HeaderReader.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.HeadBlock(ctx)
}

// HeaderByNumber returns the header of block n (latest when n is nil).
func (c *Client) HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.eth.HeaderByNumber(ctx, n)
}

// CallContract executes eth_call at blockNumber.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.eth.CallContract(ctx, msg, blockNumber)
}

// TransactionReceipt fetches the receipt of txHash.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.eth.TransactionReceipt(ctx, txHash)
}
