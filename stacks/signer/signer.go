/*
Package signer implements stacks.Wallet against the platform signer sidecar,
the only process holding the platform private key. The sidecar accepts
transfer orders over authenticated HTTP, signs them with equal-to-amount
post-conditions and broadcasts to the chain.

Import discipline: only the onramp path may depend on this package. Offramp
code has no business sending tokens.
*/
package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sswap/sswap-node/stacks"
	"github.com/sswap/sswap-node/types"
)

const sendTimeout = 30 * time.Second

// Config contains the sidecar endpoint and credentials.
type Config struct {
	BaseURL string
	AuthKey string
}

// Client delegates token sends to the signer sidecar.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ stacks.Wallet = (*Client)(nil)

// New creates a signer client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("signer base URL is required")
	}
	if cfg.AuthKey == "" {
		return nil, fmt.Errorf("signer auth key is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: sendTimeout + 5*time.Second},
	}, nil
}

type sendRequest struct {
	To         string `json:"to"`
	ContractID string `json:"contractId,omitempty"`
	// Amount in raw 6-decimal subunits, as a decimal integer string.
	Amount string `json:"amount"`
	Memo   string `json:"memo,omitempty"`
	// The sidecar rejects any order without an exact post-condition bound.
	PostCondition string `json:"postCondition"`
}

type sendResponse struct {
	TxID string `json:"txId"`
}

// SendNative implements stacks.Wallet.
func (c *Client) SendNative(ctx context.Context, to string, amount types.Decimal, memo string) (string, error) {
	return c.send(ctx, "/send/native", sendRequest{
		To:            to,
		Amount:        amount.Shift(types.TokenDecimals).String(),
		Memo:          memo,
		PostCondition: "equal",
	})
}

// SendSIP010 implements stacks.Wallet.
func (c *Client) SendSIP010(ctx context.Context, contractID, to string, amount types.Decimal, memo string) (string, error) {
	if contractID == "" {
		return "", fmt.Errorf("token contract id is required")
	}
	return c.send(ctx, "/send/sip010", sendRequest{
		To:            to,
		ContractID:    contractID,
		Amount:        amount.Shift(types.TokenDecimals).String(),
		Memo:          memo,
		PostCondition: "equal",
	})
}

func (c *Client) send(ctx context.Context, path string, body sendRequest) (string, error) {
	if !amountSendable(body.Amount) {
		return "", fmt.Errorf("amount %s is not a positive integer subunit count", body.Amount)
	}
	if len(body.Memo) > stacks.MemoLength {
		return "", fmt.Errorf("memo %q exceeds %d bytes", body.Memo, stacks.MemoLength)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode send request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AuthKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("signer request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("signer status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode signer response: %w", err)
	}
	if out.TxID == "" {
		return "", fmt.Errorf("signer returned no tx id")
	}
	return out.TxID, nil
}

func amountSendable(s string) bool {
	if s == "" || s == "0" || strings.HasPrefix(s, "-") {
		return false
	}
	return !strings.Contains(s, ".")
}
