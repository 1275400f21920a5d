// Package settlement decodes raw settlement rows into clearing prices and
// trades that tracked pools could have served.
package settlement

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/cowprotocol/cow-amm-trade-envy/internal/registry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// DecodeError identifies the settlement row a decode failure belongs to.
type DecodeError struct {
	TxHash string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("settlement %s: %v", e.TxHash, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// objectGap matches the whitespace separating trade objects in the analytics
// export, which omits commas between array elements.
var objectGap = regexp.MustCompile(`\}\s+\{`)

// rawTrade is one element of the trade list. Unknown fields (receiver,
// signature, flags...) are ignored.
type rawTrade struct {
	SellTokenIndex *int       `json:"sellTokenIndex" validate:"required,min=0"`
	BuyTokenIndex  *int       `json:"buyTokenIndex" validate:"required,min=0"`
	SellAmount     *bigAmount `json:"sellAmount" validate:"required"`
	BuyAmount      *bigAmount `json:"buyAmount" validate:"required"`
}

// bigAmount accepts uint256 amounts encoded as JSON numbers or strings.
// Negative values are rejected.
type bigAmount big.Int

func (a *bigAmount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return fmt.Errorf("invalid amount %q", s)
	}
	(*big.Int)(a).Set(v)
	return nil
}

func (a *bigAmount) Int() *big.Int {
	return new(big.Int).Set((*big.Int)(a))
}

// Decoder turns settlement rows into DecodedSettlements against one
// registry.
type Decoder struct {
	reg      *registry.Registry
	validate *validator.Validate
}

// NewDecoder creates a Decoder.
func NewDecoder(reg *registry.Registry) *Decoder {
	return &Decoder{reg: reg, validate: validator.New()}
}

// Decode parses one row. Trades whose pair no pool serves, or that settle at
// or before the pool's creation block, become nil placeholders. Malformed
// input fails the whole row with a *DecodeError.
func (d *Decoder) Decode(row domain.Settlement) (*domain.DecodedSettlement, error) {
	out, err := d.decode(row)
	if err != nil {
		return nil, &DecodeError{TxHash: row.TxHash, Err: err}
	}
	return out, nil
}

func (d *Decoder) decode(row domain.Settlement) (*domain.DecodedSettlement, error) {
	tokens, err := parseTokens(row.Tokens)
	if err != nil {
		return nil, err
	}
	prices, err := parsePrices(row.ClearingPrices)
	if err != nil {
		return nil, err
	}
	if len(tokens) != len(prices) {
		return nil, fmt.Errorf("%d tokens but %d clearing prices: %w", len(tokens), len(prices), domain.ErrMalformedSettlement)
	}
	raw, err := d.parseTrades(row.Trades)
	if err != nil {
		return nil, err
	}

	// The last 2n entries repeat per-trade data, not token prices.
	genuine := len(tokens) - 2*len(raw)
	if genuine < 0 {
		return nil, fmt.Errorf("%d trades need at least %d list entries, got %d: %w",
			len(raw), 2*len(raw), len(tokens), domain.ErrMalformedSettlement)
	}
	ucp, err := domain.NewClearingPrices(tokens[:genuine], prices[:genuine])
	if err != nil {
		return nil, err
	}

	trades := make([]*domain.Trade, len(raw))
	for i, rt := range raw {
		buyIdx, sellIdx := *rt.BuyTokenIndex, *rt.SellTokenIndex
		if buyIdx >= len(tokens) || sellIdx >= len(tokens) {
			return nil, fmt.Errorf("trade %d: token index (%d, %d) outside list of %d: %w",
				i, buyIdx, sellIdx, len(tokens), domain.ErrMalformedSettlement)
		}
		buy, sell := tokens[buyIdx], tokens[sellIdx]
		pool, err := d.reg.PoolForPair(buy, sell)
		if err != nil || !pool.ActiveAt(row.BlockNumber) {
			continue
		}
		buyTok, _ := d.reg.Token(buy)
		sellTok, _ := d.reg.Token(sell)
		trades[i] = &domain.Trade{
			Index:      i,
			BuyToken:   buyTok,
			SellToken:  sellTok,
			BuyAmount:  rt.BuyAmount.Int(),
			SellAmount: rt.SellAmount.Int(),
			BuyPrice:   new(big.Int).Set(prices[buyIdx]),
			SellPrice:  new(big.Int).Set(prices[sellIdx]),
		}
	}

	return &domain.DecodedSettlement{
		TxHash:      strings.ToLower(row.TxHash),
		BlockNumber: row.BlockNumber,
		BlockTime:   row.BlockTime,
		GasPrice:    big.NewInt(row.GasPrice),
		Solver:      strings.ToLower(row.Solver),
		Prices:      ucp,
		Trades:      trades,
	}, nil
}

func (d *Decoder) parseTrades(s string) ([]rawTrade, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty trade list: %w", domain.ErrMalformedSettlement)
	}
	s = objectGap.ReplaceAllString(s, "},{")

	var raw []rawTrade
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("trade list: %v: %w", err, domain.ErrMalformedSettlement)
	}
	for i := range raw {
		if err := d.validate.Struct(raw[i]); err != nil {
			return nil, fmt.Errorf("trade %d: %v: %w", i, err, domain.ErrMalformedSettlement)
		}
	}
	return raw, nil
}

// splitList splits a protocol list such as "[0xabc 0xdef]" or "[1, 2]".
func splitList(s string) []string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '"'
	})
}

func parseTokens(s string) ([]common.Address, error) {
	fields := splitList(s)
	out := make([]common.Address, len(fields))
	for i, f := range fields {
		if !common.IsHexAddress(f) {
			return nil, fmt.Errorf("token %d: invalid address %q: %w", i, f, domain.ErrMalformedSettlement)
		}
		out[i] = common.HexToAddress(f)
	}
	return out, nil
}

func parsePrices(s string) ([]*big.Int, error) {
	fields := splitList(s)
	out := make([]*big.Int, len(fields))
	for i, f := range fields {
		p, ok := new(big.Int).SetString(f, 10)
		if !ok || p.Sign() < 0 {
			return nil, fmt.Errorf("price %d: invalid integer %q: %w", i, f, domain.ErrMalformedSettlement)
		}
		out[i] = p
	}
	return out, nil
}
