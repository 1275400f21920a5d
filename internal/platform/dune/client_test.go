package dune

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDune struct {
	statusCalls atomic.Int32
	pendingFor  int32
	finalState  string
	pages       map[string]string
	gotParams   map[string]any
	gotKey      string
}

func (f *fakeDune) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query/42/execute", func(w http.ResponseWriter, r *http.Request) {
		f.gotKey = r.Header.Get("X-Dune-Api-Key")
		var req executeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.gotParams = req.QueryParameters
		_, _ = io.WriteString(w, `{"execution_id":"ex1","state":"QUERY_STATE_PENDING"}`)
	})
	mux.HandleFunc("GET /api/v1/execution/ex1/status", func(w http.ResponseWriter, r *http.Request) {
		n := f.statusCalls.Add(1)
		state := f.finalState
		if n <= f.pendingFor {
			state = "QUERY_STATE_EXECUTING"
		}
		_, _ = io.WriteString(w, `{"execution_id":"ex1","state":"`+state+`","error":{"message":"boom"}}`)
	})
	mux.HandleFunc("GET /api/v1/execution/ex1/results", func(w http.ResponseWriter, r *http.Request) {
		body, ok := f.pages[r.URL.Query().Get("offset")]
		if !ok {
			http.Error(w, "no page", http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, body)
	})
	return mux
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL:      srv.URL,
		APIKey:       "secret",
		PollInterval: time.Millisecond,
		PageSize:     2,
	}, testLogger())
}

func TestRunQuery_PollsAndPages(t *testing.T) {
	f := &fakeDune{
		pendingFor: 2,
		finalState: stateCompleted,
		pages: map[string]string{
			"0": `{"result":{"rows":[{"block_number":1,"price":1.5},{"block_number":"2","price":2}]},"next_offset":2}`,
			"2": `{"result":{"rows":[{"block_number":3,"price":3.25}]}}`,
		},
	}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	c := newTestClient(srv)
	rows, err := RunQuery[PriceRow](context.Background(), c, 42, map[string]any{"start_block": 1})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, FlexUint(2), rows[1].BlockNumber)
	assert.Equal(t, 3.25, *rows[2].Price)
	assert.Equal(t, "secret", f.gotKey)
	assert.EqualValues(t, 1, f.gotParams["start_block"])
	assert.EqualValues(t, 3, f.statusCalls.Load())
}

func TestRunQuery_NullPriceFails(t *testing.T) {
	f := &fakeDune{
		finalState: stateCompleted,
		pages: map[string]string{
			"0": `{"result":{"rows":[{"block_number":1,"price":null}]}}`,
		},
	}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	_, err := RunQuery[PriceRow](context.Background(), newTestClient(srv), 42, nil)
	require.ErrorIs(t, err, ErrInvalidRow)
	assert.Contains(t, err.Error(), "Price")
}

func TestRunQuery_ExecutionFailed(t *testing.T) {
	f := &fakeDune{finalState: stateFailed}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	_, err := RunQuery[PriceRow](context.Background(), newTestClient(srv), 42, nil)
	require.ErrorIs(t, err, ErrExecutionFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestRunQuery_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := RunQuery[PriceRow](context.Background(), newTestClient(srv), 42, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 429")
}

func TestRunQuery_ContextCancelledWhilePolling(t *testing.T) {
	f := &fakeDune{pendingFor: 1 << 30, finalState: stateCompleted}
	srv := httptest.NewServer(f.handler(t))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := RunQuery[PriceRow](ctx, newTestClient(srv), 42, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSettlementRow_Decode(t *testing.T) {
	raw := `{
		"call_tx_hash":"0xabc",
		"contract_address":"0x9008d19f58aabd9ed0d60971565aa8510560ab41",
		"call_success":true,
		"call_trace_address":[],
		"call_block_time":"2024-09-27 14:41:11.000 UTC",
		"call_block_number":20842479,
		"tokens":["0xa0b8","0xc02a"],
		"clearingPrices":[3735232874593773216000000000,9964452107],
		"trades":[{"sellTokenIndex":0,"buyTokenIndex":1}],
		"interactions":"[]",
		"gas_price":2.4742315967e10,
		"solver":"0xsolver"
	}`
	var row SettlementRow
	require.NoError(t, json.Unmarshal([]byte(raw), &row))

	assert.Equal(t, FlexUint(20842479), row.BlockNumber)
	assert.Equal(t, FlexUint(24742315967), row.GasPrice)
	assert.Equal(t, `["0xa0b8","0xc02a"]`, strings.ReplaceAll(string(row.Tokens), " ", ""))
	assert.Equal(t, "[3735232874593773216000000000,9964452107]", string(row.ClearingPrices))
	assert.Equal(t, "[]", string(row.Interactions))
	assert.Equal(t, time.Date(2024, 9, 27, 14, 41, 11, 0, time.UTC), row.BlockTime.Time)
}

func TestFlexUint_Rejects(t *testing.T) {
	for _, in := range []string{`"abc"`, `1.5`, `-3`} {
		var f FlexUint
		assert.Error(t, json.Unmarshal([]byte(in), &f), in)
	}
}
