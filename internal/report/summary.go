// Package report renders envy records into a CSV export and a Markdown
// summary and publishes them locally and to object storage.
package report

import (
	"sort"
	"time"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
	"github.com/shopspring/decimal"
)

// PoolSummary aggregates the records of one pool.
type PoolSummary struct {
	PoolName    string
	PoolAddress string
	// Trades counts eligible trades with a record.
	Trades int
	// Positive counts trades where the pool would have beaten the
	// settlement after gas.
	Positive int
	// UnusedEnvy sums positive envy of settlements that did not touch the
	// pool; UsedEnvy those that did.
	UnusedEnvy decimal.Decimal
	UsedEnvy   decimal.Decimal
	MaxEnvy    decimal.Decimal
}

// TotalEnvy is the sum of positive envy.
func (p PoolSummary) TotalEnvy() decimal.Decimal {
	return p.UnusedEnvy.Add(p.UsedEnvy)
}

// SolverSummary aggregates positive envy per solver.
type SolverSummary struct {
	Solver   string
	Positive int
	Envy     decimal.Decimal
}

// Report is everything rendered for one run.
type Report struct {
	RunID       string
	Network     string
	FromBlock   uint64
	ToBlock     uint64
	GeneratedAt time.Time
	Records     []domain.EnvyRecord
	Pools       []PoolSummary
	Solvers     []SolverSummary
	Top         []domain.EnvyRecord
}

// TopN bounds the Top list.
const TopN = 10

// Build aggregates records. Only positive envy counts towards totals.
func Build(runID, network string, from, to uint64, records []domain.EnvyRecord, now time.Time) *Report {
	pools := map[string]*PoolSummary{}
	solvers := map[string]*SolverSummary{}

	for _, r := range records {
		ps, ok := pools[r.PoolAddress]
		if !ok {
			ps = &PoolSummary{PoolName: r.PoolName, PoolAddress: r.PoolAddress}
			pools[r.PoolAddress] = ps
		}
		ps.Trades++
		if r.TradeEnvy <= 0 {
			continue
		}
		envy := decimal.NewFromFloat(r.TradeEnvy)
		ps.Positive++
		if r.PoolAlreadyUsed {
			ps.UsedEnvy = ps.UsedEnvy.Add(envy)
		} else {
			ps.UnusedEnvy = ps.UnusedEnvy.Add(envy)
		}
		if envy.GreaterThan(ps.MaxEnvy) {
			ps.MaxEnvy = envy
		}

		ss, ok := solvers[r.Solver]
		if !ok {
			ss = &SolverSummary{Solver: r.Solver}
			solvers[r.Solver] = ss
		}
		ss.Positive++
		ss.Envy = ss.Envy.Add(envy)
	}

	rep := &Report{
		RunID:       runID,
		Network:     network,
		FromBlock:   from,
		ToBlock:     to,
		GeneratedAt: now.UTC(),
		Records:     records,
	}
	for _, ps := range pools {
		rep.Pools = append(rep.Pools, *ps)
	}
	sort.Slice(rep.Pools, func(i, j int) bool { return rep.Pools[i].PoolName < rep.Pools[j].PoolName })

	for _, ss := range solvers {
		rep.Solvers = append(rep.Solvers, *ss)
	}
	sort.Slice(rep.Solvers, func(i, j int) bool {
		if c := rep.Solvers[i].Envy.Cmp(rep.Solvers[j].Envy); c != 0 {
			return c > 0
		}
		return rep.Solvers[i].Solver < rep.Solvers[j].Solver
	})

	for _, r := range records {
		if r.TradeEnvy > 0 {
			rep.Top = append(rep.Top, r)
		}
	}
	sort.SliceStable(rep.Top, func(i, j int) bool { return rep.Top[i].TradeEnvy > rep.Top[j].TradeEnvy })
	if len(rep.Top) > TopN {
		rep.Top = rep.Top[:TopN]
	}
	return rep
}
