/*
Package lenco is a thin client over the Lenco bank payout API: account name
resolution, bank listing, NGN transfers, balance reads and webhook signature
verification.

Transfers use the swap reference as the provider-side idempotency key, so a
re-submitted initiation can never double-spend. The client itself never
retries a transfer; GET requests are retried once on transport errors only,
never on HTTP status codes.
*/
package lenco

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
)

const defaultBaseURL = "https://api.lenco.co/access/v1"

var (
	// ErrBankVerification wraps 4xx and malformed answers of the account
	// resolution endpoint.
	ErrBankVerification = errors.New("bank verification failed")
	// ErrPayout wraps any non-2xx answer of the transfer endpoint. The
	// provider message is included in the error text.
	ErrPayout = errors.New("payout failed")
	// ErrBalanceUnavailable marks an unreachable balance, which callers must
	// treat as unknown rather than zero.
	ErrBalanceUnavailable = errors.New("balance unavailable")
)

// Per-operation deadlines.
const (
	resolveTimeout  = 15 * time.Second
	banksTimeout    = 15 * time.Second
	transferTimeout = 30 * time.Second
	balanceTimeout  = 10 * time.Second
)

// Config contains the Lenco client credentials and endpoints.
type Config struct {
	BaseURL       string
	APIKey        string
	AccountID     string // platform account debited by transfers
	WebhookSecret string
}

// Client is the Lenco API client.
type Client struct {
	cfg  Config
	http *http.Client

	banks   *banksCache
	balance *balanceCache
}

// New creates a Lenco client. APIKey and AccountID are required for payout
// operations but the client degrades gracefully for read-only use.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		// per-operation deadlines come from contexts, this is the backstop
		http:    &http.Client{Timeout: 35 * time.Second},
		banks:   newBanksCache(),
		balance: &balanceCache{},
	}
}

// apiEnvelope is the provider's uniform response wrapper.
type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		err := c.do(ctx, http.MethodGet, path, nil, out)
		if err == nil {
			return nil
		}
		lastErr = err
		var httpErr *statusError
		if errors.As(err, &httpErr) || ctx.Err() != nil {
			return err // status answers and dead contexts are not retried
		}
	}
	return lastErr
}

func (c *Client) post(ctx context.Context, path string, timeout time.Duration, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.do(ctx, http.MethodPost, path, body, out)
}

// statusError carries a non-2xx provider answer.
type statusError struct {
	Code    int
	Message string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider status %d", e.Code)
	}
	return fmt.Sprintf("provider status %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}

	var envelope apiEnvelope
	if len(payload) > 0 {
		// a decode failure on an error status still yields a useful statusError
		_ = json.Unmarshal(payload, &envelope)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{Code: resp.StatusCode, Message: envelope.Message}
	}
	if !envelope.Status {
		return &statusError{Code: resp.StatusCode, Message: envelope.Message}
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode provider data: %w", err)
		}
	}
	return nil
}
