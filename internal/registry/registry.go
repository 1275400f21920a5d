// Package registry holds the static token and pool reference data for a
// network. A Registry is immutable once built and safe for concurrent use.
package registry

import (
	"fmt"
	"sort"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

type pairKey struct {
	a, b common.Address
}

// unordered returns the key of a token pair independent of order.
func unordered(x, y common.Address) pairKey {
	if x.Cmp(y) > 0 {
		x, y = y, x
	}
	return pairKey{a: x, b: y}
}

// Registry is the set of tracked pools of one network plus the tokens they
// trade.
type Registry struct {
	network string
	native  domain.Token
	pools   []domain.Pool
	byPair  map[pairKey]domain.Pool
	byName  map[string]domain.Pool
	tokens  map[common.Address]domain.Token
}

// New builds a registry from a pool list. Pools sharing an unordered token
// pair, pools trading a token against itself, and tokens defined twice with
// different metadata are rejected.
func New(network string, native domain.Token, pools []domain.Pool) (*Registry, error) {
	r := &Registry{
		network: network,
		native:  native,
		pools:   make([]domain.Pool, 0, len(pools)),
		byPair:  make(map[pairKey]domain.Pool, len(pools)),
		byName:  make(map[string]domain.Pool, len(pools)),
		tokens:  make(map[common.Address]domain.Token, 2*len(pools)+1),
	}
	r.tokens[native.Address] = native

	for _, p := range pools {
		if p.Token0.Address == p.Token1.Address {
			return nil, fmt.Errorf("registry: pool %s trades %s against itself", p.Name, p.Token0.Name)
		}
		key := unordered(p.Token0.Address, p.Token1.Address)
		if existing, ok := r.byPair[key]; ok {
			return nil, fmt.Errorf("registry: pools %s and %s share a pair: %w", existing.Name, p.Name, domain.ErrDuplicatePool)
		}
		if _, ok := r.byName[p.Name]; ok {
			return nil, fmt.Errorf("registry: pool name %q: %w", p.Name, domain.ErrDuplicatePool)
		}
		for _, t := range []domain.Token{p.Token0, p.Token1} {
			if known, ok := r.tokens[t.Address]; ok && known != t {
				return nil, fmt.Errorf("registry: pool %s token %s: %s/%d vs %s/%d: %w",
					p.Name, domain.LowerHex(t.Address), t.Name, t.Decimals, known.Name, known.Decimals, domain.ErrConflictingToken)
			}
		}
		r.byPair[key] = p
		r.byName[p.Name] = p
		r.tokens[p.Token0.Address] = p.Token0
		r.tokens[p.Token1.Address] = p.Token1
		r.pools = append(r.pools, p)
	}
	return r, nil
}

// Network returns the network identifier the registry was built for.
func (r *Registry) Network() string { return r.network }

// Native returns the token used as the common unit of account.
func (r *Registry) Native() domain.Token { return r.native }

// IsNative reports whether addr is the native token or the protocol's
// native-coin placeholder.
func (r *Registry) IsNative(addr common.Address) bool {
	return addr == r.native.Address || addr == domain.NativePlaceholder
}

// Pools returns the tracked pools in registration order.
func (r *Registry) Pools() []domain.Pool {
	out := make([]domain.Pool, len(r.pools))
	copy(out, r.pools)
	return out
}

// PoolForPair returns the pool trading the two tokens, in either order.
func (r *Registry) PoolForPair(x, y common.Address) (domain.Pool, error) {
	p, ok := r.byPair[unordered(x, y)]
	if !ok {
		return domain.Pool{}, fmt.Errorf("registry: %s/%s: %w", domain.LowerHex(x), domain.LowerHex(y), domain.ErrUnsupportedPair)
	}
	return p, nil
}

// PairSupported reports whether some pool trades the two tokens.
func (r *Registry) PairSupported(x, y common.Address) bool {
	_, ok := r.byPair[unordered(x, y)]
	return ok
}

// Token looks up a tracked token by address.
func (r *Registry) Token(addr common.Address) (domain.Token, bool) {
	t, ok := r.tokens[addr]
	return t, ok
}

// Tokens returns every tracked token sorted by name.
func (r *Registry) Tokens() []domain.Token {
	out := make([]domain.Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Restrict returns a registry limited to the named pools. Unknown or repeated
// names are configuration errors. An empty list returns r unchanged.
func (r *Registry) Restrict(names []string) (*Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	seen := make(map[string]bool, len(names))
	pools := make([]domain.Pool, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("registry: pool %q listed twice: %w", name, domain.ErrDuplicatePool)
		}
		seen[name] = true
		p, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("registry: pool %q on %s: %w", name, r.network, domain.ErrUnknownPool)
		}
		pools = append(pools, p)
	}
	return New(r.network, r.native, pools)
}
