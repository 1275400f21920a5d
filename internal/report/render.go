package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

var csvHeader = []string{
	"network", "tx_hash", "trade_index", "block_number", "block_time",
	"solver", "pool_name", "pool_address", "trade_envy", "pool_already_used",
}

// WriteCSV writes every record of rep, one row per trade.
func WriteCSV(w io.Writer, rep *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, r := range rep.Records {
		blockTime := ""
		if !r.BlockTime.IsZero() {
			blockTime = r.BlockTime.UTC().Format(time.RFC3339)
		}
		row := []string{
			r.Network,
			r.TxHash,
			strconv.Itoa(r.TradeIndex),
			strconv.FormatUint(r.BlockNumber, 10),
			blockTime,
			r.Solver,
			r.PoolName,
			r.PoolAddress,
			strconv.FormatFloat(r.TradeEnvy, 'g', -1, 64),
			strconv.FormatBool(r.PoolAlreadyUsed),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("report: write csv row %s/%d: %w", r.TxHash, r.TradeIndex, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

var funcs = template.FuncMap{
	"fixed": func(d decimal.Decimal) string { return d.StringFixed(6) },
	"envy": func(f float64) string {
		return decimal.NewFromFloat(f).StringFixed(6)
	},
	"date": func(t time.Time) string { return t.Format("2006-01-02 15:04 MST") },
}

var summaryTmpl = template.Must(template.New("summary").Funcs(funcs).Parse(`# Trade envy report: {{ .Network }}

Run ` + "`{{ .RunID }}`" + `, blocks {{ .FromBlock }} to {{ .ToBlock }}, generated {{ date .GeneratedAt }}.

Envy is the surplus a CoW AMM pool would have added to a trade, net of gas,
in native token units. Only positive envy is summed.

## Pools

| Pool | Trades | Positive | Envy (pool unused) | Envy (pool used) | Total | Max |
|---|---:|---:|---:|---:|---:|---:|
{{- range .Pools }}
| {{ .PoolName }} | {{ .Trades }} | {{ .Positive }} | {{ fixed .UnusedEnvy }} | {{ fixed .UsedEnvy }} | {{ fixed .TotalEnvy }} | {{ fixed .MaxEnvy }} |
{{- else }}
| _no eligible trades_ | 0 | 0 | 0 | 0 | 0 | 0 |
{{- end }}
{{ if .Solvers }}
## Solvers

| Solver | Positive trades | Envy |
|---|---:|---:|
{{- range .Solvers }}
| ` + "`{{ .Solver }}`" + ` | {{ .Positive }} | {{ fixed .Envy }} |
{{- end }}
{{ end }}
{{- if .Top }}
## Largest envy

| Tx | Trade | Block | Pool | Envy | Pool used |
|---|---:|---:|---|---:|---|
{{- range .Top }}
| ` + "`{{ .TxHash }}`" + ` | {{ .TradeIndex }} | {{ .BlockNumber }} | {{ .PoolName }} | {{ envy .TradeEnvy }} | {{ .PoolAlreadyUsed }} |
{{- end }}
{{ end -}}
`))

// WriteMarkdown renders the summary of rep.
func WriteMarkdown(w io.Writer, rep *Report) error {
	if err := summaryTmpl.Execute(w, rep); err != nil {
		return fmt.Errorf("report: render markdown: %w", err)
	}
	return nil
}
