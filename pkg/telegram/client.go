// Package telegram posts operational notifications to a Telegram chat.
// Delivery is best effort; callers log failures and move on.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.telegram.org"

// Notifier sends a message to the configured chat.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	botToken string
	chatID   string
	baseURL  string
	http     *http.Client
}

// NewClient creates a Telegram notifier for one bot and chat.
func NewClient(botToken, chatID string, opts ...Option) Notifier {
	c := &httpClient{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (c *httpClient) Notify(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: c.chatID, Text: text})
	if err != nil {
		return eris.Wrap(err, "telegram: marshal request")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return eris.Wrap(err, "telegram: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "telegram: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return eris.Errorf("telegram: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Noop is a Notifier that discards every message, used when no bot is
// configured.
type Noop struct{}

func (Noop) Notify(context.Context, string) error { return nil }
