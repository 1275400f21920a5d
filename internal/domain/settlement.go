package domain

import "time"

// Settlement is one settlement call as stored by the ingestion job. The list
// columns keep the protocol-native string encoding; decoding happens later.
type Settlement struct {
	TxHash           string
	ContractAddress  string
	CallSuccess      bool
	CallTraceAddress string
	BlockTime        time.Time
	BlockNumber      uint64
	Tokens           string
	ClearingPrices   string
	Trades           string
	Interactions     string
	GasPrice         int64
	Solver           string
}

// PricePoint is a USD price of a token observed at a block.
type PricePoint struct {
	BlockNumber uint64
	Price       float64
}
