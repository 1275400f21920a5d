package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// postJSON posts payload and fails on a non-2xx answer.
func postJSON(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// Discord posts to a channel webhook.
type Discord struct {
	WebhookURL string
}

func (d Discord) Name() string { return "discord" }

func (d Discord) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.WebhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
}

// Telegram posts through the Bot API sendMessage method.
type Telegram struct {
	Token  string
	ChatID string
	// BaseURL defaults to https://api.telegram.org.
	BaseURL string
}

func (t Telegram) Name() string { return "telegram" }

func (t Telegram) Send(ctx context.Context, title, message string) error {
	base := t.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	return postJSON(ctx, base+"/bot"+t.Token+"/sendMessage", map[string]string{
		"chat_id":    t.ChatID,
		"text":       fmt.Sprintf("*%s*\n%s", title, message),
		"parse_mode": "Markdown",
	})
}
