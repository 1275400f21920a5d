package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativePlaceholder is the address the settlement contract uses to denote the
// chain's native coin (as opposed to its wrapped ERC-20 form).
var NativePlaceholder = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Token is an ERC-20 token tracked by a registry. Identity is by address.
type Token struct {
	Name     string
	Address  common.Address
	Decimals int
}

// Key returns the lowercased hex address used for storage and lookups.
func (t Token) Key() string {
	return LowerHex(t.Address)
}

// Pool is a CoW AMM pool trading exactly two tokens.
type Pool struct {
	Name          string
	Address       common.Address
	Token0        Token
	Token1        Token
	CreationBlock uint64
}

// FirstActiveBlock is the first block at which the pool contract can take
// part in a settlement.
func (p Pool) FirstActiveBlock() uint64 {
	return p.CreationBlock + 1
}

// ActiveAt reports whether the pool existed before the given block.
func (p Pool) ActiveAt(block uint64) bool {
	return block > p.CreationBlock
}

// Contains reports whether token is one of the pool's two tokens.
func (p Pool) Contains(token common.Address) bool {
	return p.Token0.Address == token || p.Token1.Address == token
}

// Key returns the lowercased hex pool address.
func (p Pool) Key() string {
	return LowerHex(p.Address)
}

// LowerHex renders an address as lowercase 0x-prefixed hex.
func LowerHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}
