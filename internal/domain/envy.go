package domain

import "time"

// EnvyRecord is the estimated forgone surplus of one settlement trade,
// expressed in native units after subtracting gas. Records are keyed by
// (network, tx hash, trade index) and re-upserted on recomputation.
type EnvyRecord struct {
	Network         string
	TxHash          string
	TradeIndex      int
	PoolAddress     string
	PoolName        string
	TradeEnvy       float64
	PoolAlreadyUsed bool
	Solver          string
	BlockNumber     uint64
	BlockTime       time.Time
}
