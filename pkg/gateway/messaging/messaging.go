package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Sender delivers an outbound text message to an end user.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

type Client struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
	maxRetries uint64
}

func NewClient(baseURL, apiKey, from string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		from:       strings.TrimSpace(from),
		httpClient: httpClient,
		maxRetries: 2,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

func (c *Client) Send(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return fmt.Errorf("messaging client is not configured")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("recipient is required")
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.send(ctx, to, body)
		if err == nil {
			return nil
		}
		var httpErr *statusError
		if errors.As(err, &httpErr) && httpErr.status >= 400 && httpErr.status < 500 {
			return err // not retryable
		}
		return retry.RetryableError(err)
	})
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("messaging error (status %d): %s", e.status, e.body)
}

func (c *Client) send(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(map[string]string{
		"from": c.from,
		"to":   to,
		"body": body,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}
	return nil
}
