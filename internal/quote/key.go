package quote

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
)

// Key identifies one external read call at a block. Two calls with equal
// keys always return the same response because historical state is fixed.
type Key struct {
	Network  string
	Contract common.Address
	Function string
	Pool     common.Address
	// Params is the canonical JSON encoding of the call arguments besides
	// the pool.
	Params string
	Block  uint64
}

// NewKey builds a Key, encoding params canonically. Params should be a
// struct (fixed field order) with string-encoded integers.
func NewKey(network string, contract common.Address, function string, pool common.Address, params any, block uint64) (Key, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Key{}, fmt.Errorf("quote: encode params of %s: %w", function, err)
	}
	return Key{
		Network:  strings.ToLower(network),
		Contract: contract,
		Function: function,
		Pool:     pool,
		Params:   string(raw),
		Block:    block,
	}, nil
}

// String renders the key as the storage key. It is the only place keys are
// formatted.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%d",
		k.Network,
		strings.ToLower(k.Contract.Hex()),
		k.Function,
		strings.ToLower(k.Pool.Hex()),
		k.Params,
		k.Block,
	)
}
