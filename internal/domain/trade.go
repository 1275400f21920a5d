package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Trade is one settlement trade whose token pair is covered by a tracked
// pool. Index is the trade's position in the settlement's trade list.
type Trade struct {
	Index      int
	BuyToken   Token
	SellToken  Token
	BuyAmount  *big.Int
	SellAmount *big.Int
	BuyPrice   *big.Int
	SellPrice  *big.Int
}

// IsZeroToOne reports whether the trade sells pool.Token0 for pool.Token1.
func (t *Trade) IsZeroToOne(pool Pool) bool {
	return t.SellToken.Address == pool.Token0.Address && t.BuyToken.Address == pool.Token1.Address
}

// IsOneToZero reports whether the trade sells pool.Token1 for pool.Token0.
func (t *Trade) IsOneToZero(pool Pool) bool {
	return t.SellToken.Address == pool.Token1.Address && t.BuyToken.Address == pool.Token0.Address
}

// PoolOrder is the order a pool's bonding curve wants to execute, as returned
// by the on-chain helper contracts. It is never mutated after decoding.
type PoolOrder struct {
	SellToken         common.Address `json:"sellToken"`
	BuyToken          common.Address `json:"buyToken"`
	Receiver          common.Address `json:"receiver"`
	SellAmount        *big.Int       `json:"sellAmount"`
	BuyAmount         *big.Int       `json:"buyAmount"`
	ValidTo           uint32         `json:"validTo"`
	AppData           common.Hash    `json:"appData"`
	FeeAmount         *big.Int       `json:"feeAmount"`
	Kind              common.Hash    `json:"kind"`
	PartiallyFillable bool           `json:"partiallyFillable"`
	Signature         hexutil.Bytes  `json:"signature"`
}

// MirrorsTrade reports whether the order is the exact counterparty of t: the
// pool sells what the trade buys and buys what the trade sells.
func (o PoolOrder) MirrorsTrade(t *Trade) bool {
	return o.SellToken == t.BuyToken.Address && o.BuyToken == t.SellToken.Address
}
