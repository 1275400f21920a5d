package app

import (
	"fmt"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/config"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

func poolsFromConfig(pcs []config.PoolConfig) ([]domain.Pool, error) {
	out := make([]domain.Pool, 0, len(pcs))
	for i, pc := range pcs {
		for _, addr := range []string{pc.Address, pc.Token0.Address, pc.Token1.Address} {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("registry.pools[%d]: invalid address %q", i, addr)
			}
		}
		out = append(out, domain.Pool{
			Name:          pc.Name,
			Address:       common.HexToAddress(pc.Address),
			CreationBlock: pc.CreationBlock,
			Token0:        tokenFromConfig(pc.Token0),
			Token1:        tokenFromConfig(pc.Token1),
		})
	}
	return out, nil
}

func tokenFromConfig(tc config.TokenConfig) domain.Token {
	return domain.Token{
		Name:     tc.Name,
		Address:  common.HexToAddress(tc.Address),
		Decimals: tc.Decimals,
	}
}
