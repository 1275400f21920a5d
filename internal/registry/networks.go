package registry

import (
	"fmt"
	"strings"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// NetworkEthereum is the identifier of Ethereum mainnet.
const NetworkEthereum = "ethereum"

var (
	USDC = domain.Token{
		Name:     "USDC",
		Address:  common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"),
		Decimals: 6,
	}
	WETH = domain.Token{
		Name:     "WETH",
		Address:  common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"),
		Decimals: 18,
	}

	// USDCWETH is the CoW AMM USDC/WETH pool on mainnet.
	USDCWETH = domain.Pool{
		Name:          "USDC-WETH",
		Address:       common.HexToAddress("0xf08d4dea369c456d26a3168ff0024b904f2d8b91"),
		Token0:        USDC,
		Token1:        WETH,
		CreationBlock: 20476566,
	}
)

type networkDefaults struct {
	native domain.Token
	pools  []domain.Pool
}

var networks = map[string]networkDefaults{
	NetworkEthereum: {
		native: WETH,
		pools:  []domain.Pool{USDCWETH},
	},
}

// Networks returns the identifiers of every built-in network.
func Networks() []string {
	out := make([]string, 0, len(networks))
	for name := range networks {
		out = append(out, name)
	}
	return out
}

// ForNetwork builds the registry of a built-in network, extended with extra
// pools (typically from configuration).
func ForNetwork(network string, extra ...domain.Pool) (*Registry, error) {
	d, ok := networks[strings.ToLower(network)]
	if !ok {
		return nil, fmt.Errorf("registry: %q: %w", network, domain.ErrUnsupportedNetwork)
	}
	pools := make([]domain.Pool, 0, len(d.pools)+len(extra))
	pools = append(pools, d.pools...)
	pools = append(pools, extra...)
	return New(strings.ToLower(network), d.native, pools)
}
