package dune

import (
	"bytes"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// SettlementRow is one row of the settlement query.
type SettlementRow struct {
	TxHash           string   `json:"call_tx_hash" validate:"required"`
	ContractAddress  string   `json:"contract_address"`
	CallSuccess      bool     `json:"call_success"`
	CallTraceAddress FlexText `json:"call_trace_address"`
	BlockTime        FlexTime `json:"call_block_time"`
	BlockNumber      FlexUint `json:"call_block_number" validate:"required"`
	Tokens           FlexText `json:"tokens" validate:"required"`
	ClearingPrices   FlexText `json:"clearingPrices" validate:"required"`
	Trades           FlexText `json:"trades" validate:"required"`
	Interactions     FlexText `json:"interactions"`
	GasPrice         FlexUint `json:"gas_price"`
	Solver           string   `json:"solver"`
}

// PriceRow is one row of the token price query. A null price fails
// validation.
type PriceRow struct {
	BlockNumber FlexUint `json:"block_number" validate:"required"`
	Price       *float64 `json:"price" validate:"required"`
}

// FlexText keeps a JSON value as text: strings are unquoted, anything else
// (arrays, objects, numbers) is kept as its raw JSON.
type FlexText string

func (f *FlexText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexText(s)
		return nil
	}
	*f = FlexText(b)
	return nil
}

// FlexUint accepts an unsigned integer as a JSON number, numeric string or
// float notation without a fractional part.
type FlexUint uint64

func (f *FlexUint) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		*f = FlexUint(n)
		return nil
	}
	fl, _, err := big.ParseFloat(s, 10, 256, big.ToNearestEven)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	n, acc := fl.Uint64()
	if acc != big.Exact {
		return fmt.Errorf("integer %q out of range or fractional", s)
	}
	*f = FlexUint(n)
	return nil
}

// FlexTime parses the timestamp layouts the API emits.
type FlexTime struct {
	time.Time
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.000 UTC",
	"2006-01-02 15:04:05 UTC",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func (f *FlexTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		f.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			f.Time = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
