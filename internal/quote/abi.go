package quote

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Both helpers return (GPv2Order.Data, Interaction[] pre, Interaction[] post,
// bytes signature).
const helperOutputs = `[
	{"name":"order","type":"tuple","components":[
		{"name":"sellToken","type":"address"},
		{"name":"buyToken","type":"address"},
		{"name":"receiver","type":"address"},
		{"name":"sellAmount","type":"uint256"},
		{"name":"buyAmount","type":"uint256"},
		{"name":"validTo","type":"uint32"},
		{"name":"appData","type":"bytes32"},
		{"name":"feeAmount","type":"uint256"},
		{"name":"kind","type":"bytes32"},
		{"name":"partiallyFillable","type":"bool"},
		{"name":"sellTokenBalance","type":"bytes32"},
		{"name":"buyTokenBalance","type":"bytes32"}]},
	{"name":"preInteractions","type":"tuple[]","components":[
		{"name":"target","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"callData","type":"bytes"}]},
	{"name":"postInteractions","type":"tuple[]","components":[
		{"name":"target","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"callData","type":"bytes"}]},
	{"name":"sig","type":"bytes"}
]`

const fullHelperABI = `[{"type":"function","name":"order","stateMutability":"view",
	"inputs":[{"name":"pool","type":"address"},{"name":"prices","type":"uint256[]"}],
	"outputs":` + helperOutputs + `}]`

const partialHelperABI = `[{"type":"function","name":"orderFromBuyAmount","stateMutability":"view",
	"inputs":[{"name":"pool","type":"address"},{"name":"buyToken","type":"address"},{"name":"buyAmount","type":"uint256"}],
	"outputs":` + helperOutputs + `}]`

const (
	methodOrder           = "order"
	methodOrderFromBuyAmt = "orderFromBuyAmount"
)

var (
	fullABI    = mustParse(fullHelperABI)
	partialABI = mustParse(partialHelperABI)
)

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("quote: parse helper abi: " + err.Error())
	}
	return parsed
}

// gpv2Order mirrors the GPv2Order.Data tuple returned by the helpers.
type gpv2Order struct {
	SellToken         common.Address
	BuyToken          common.Address
	Receiver          common.Address
	SellAmount        *big.Int
	BuyAmount         *big.Int
	ValidTo           uint32
	AppData           [32]byte
	FeeAmount         *big.Int
	Kind              [32]byte
	PartiallyFillable bool
	SellTokenBalance  [32]byte
	BuyTokenBalance   [32]byte
}
