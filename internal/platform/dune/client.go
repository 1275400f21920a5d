// Package dune is a client for the Dune analytics API: it executes saved
// queries with parameters, waits for them and pages through the results.
package dune

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
)

// ErrExecutionFailed is returned when a query execution ends in a state
// other than completed.
var ErrExecutionFailed = errors.New("dune: execution failed")

// ErrInvalidRow marks a result row that could not be decoded or failed
// validation. Retrying the query does not help.
var ErrInvalidRow = errors.New("dune: invalid row")

const (
	stateCompleted = "QUERY_STATE_COMPLETED"
	stateFailed    = "QUERY_STATE_FAILED"
	stateCancelled = "QUERY_STATE_CANCELLED"
	stateExpired   = "QUERY_STATE_EXPIRED"
)

// Config configures a Client.
type Config struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	PageSize     int
	Timeout      time.Duration
}

// Client talks to the Dune API v1.
type Client struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pageSize     int
	httpClient   *http.Client
	validate     *validator.Validate
	logger       *slog.Logger
}

// NewClient creates a new Dune API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10_000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       strings.TrimSpace(cfg.APIKey),
		pollInterval: cfg.PollInterval,
		pageSize:     cfg.PageSize,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		validate:     validator.New(),
		logger:       logger.With("component", "dune"),
	}
}

type executeRequest struct {
	QueryParameters map[string]any `json:"query_parameters"`
	Performance     string         `json:"performance,omitempty"`
}

type executeResponse struct {
	ExecutionID string `json:"execution_id"`
	State       string `json:"state"`
}

type statusResponse struct {
	ExecutionID         string `json:"execution_id"`
	State               string `json:"state"`
	IsExecutionFinished bool   `json:"is_execution_finished"`
	Error               *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type resultsResponse struct {
	State  string `json:"state"`
	Result struct {
		Rows []json.RawMessage `json:"rows"`
	} `json:"result"`
	NextOffset *int `json:"next_offset"`
}

// RunQuery executes a saved query, waits for completion and decodes every
// result row into T. Rows failing T's validate tags abort the query.
func RunQuery[T any](ctx context.Context, c *Client, queryID int, params map[string]any) ([]T, error) {
	raw, err := c.Run(ctx, queryID, params)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var row T
		if err := json.Unmarshal(r, &row); err != nil {
			return nil, fmt.Errorf("%w: query %d row %d: decode: %w", ErrInvalidRow, queryID, i, err)
		}
		if err := c.validate.Struct(row); err != nil {
			return nil, fmt.Errorf("%w: query %d row %d: %w", ErrInvalidRow, queryID, i, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// Run executes a saved query and returns its raw rows.
func (c *Client) Run(ctx context.Context, queryID int, params map[string]any) ([]json.RawMessage, error) {
	execID, err := c.execute(ctx, queryID, params)
	if err != nil {
		return nil, err
	}
	log := c.logger.With("query_id", queryID, "execution_id", execID)
	log.Debug("query submitted", "params", params)

	if err := c.wait(ctx, execID); err != nil {
		return nil, fmt.Errorf("dune: query %d: %w", queryID, err)
	}

	var rows []json.RawMessage
	offset := 0
	for {
		page, next, err := c.results(ctx, execID, offset)
		if err != nil {
			return nil, fmt.Errorf("dune: query %d: %w", queryID, err)
		}
		rows = append(rows, page...)
		if next == nil {
			break
		}
		offset = *next
	}
	log.Debug("query finished", "rows", len(rows))
	return rows, nil
}

func (c *Client) execute(ctx context.Context, queryID int, params map[string]any) (string, error) {
	body, err := json.Marshal(executeRequest{QueryParameters: params, Performance: "medium"})
	if err != nil {
		return "", fmt.Errorf("dune: marshal execute request: %w", err)
	}
	var resp executeResponse
	path := "/api/v1/query/" + strconv.Itoa(queryID) + "/execute"
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return "", fmt.Errorf("dune: execute query %d: %w", queryID, err)
	}
	if resp.ExecutionID == "" {
		return "", fmt.Errorf("dune: execute query %d: empty execution id", queryID)
	}
	return resp.ExecutionID, nil
}

func (c *Client) wait(ctx context.Context, execID string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var st statusResponse
		if err := c.do(ctx, http.MethodGet, "/api/v1/execution/"+execID+"/status", nil, nil, &st); err != nil {
			return fmt.Errorf("status: %w", err)
		}
		switch st.State {
		case stateCompleted:
			return nil
		case stateFailed, stateCancelled, stateExpired:
			msg := st.State
			if st.Error != nil && st.Error.Message != "" {
				msg += ": " + st.Error.Message
			}
			return fmt.Errorf("%w: %s", ErrExecutionFailed, msg)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) results(ctx context.Context, execID string, offset int) ([]json.RawMessage, *int, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("offset", strconv.Itoa(offset))

	var res resultsResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/execution/"+execID+"/results", q, nil, &res); err != nil {
		return nil, nil, fmt.Errorf("results: %w", err)
	}
	return res.Result.Rows, res.NextOffset, nil
}

// do sends one request and decodes a 200 response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Dune-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
