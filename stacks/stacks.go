/*
Package stacks is the read-side client over the Stacks blockchain REST API.
It fetches transactions by address or id, decodes transfer memos and SIP-010
fungible token events, and extracts the deposit candidates the indexer and
the per-transaction watchers feed into settlement.

The write side (sending tokens for onramps) lives behind the Wallet
interface; the production implementation in stacks/signer delegates to the
platform signer sidecar. Offramp code never imports that package.
*/
package stacks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAPIURL = "https://api.mainnet.hiro.so"
	readTimeout   = 12 * time.Second
)

// ErrTxNotFound is returned when the chain API does not know the requested
// transaction yet. A mempool race, not necessarily a failure.
var ErrTxNotFound = errors.New("transaction not found")

// Config contains the chain client endpoints.
type Config struct {
	APIURL string
}

// Client queries the Stacks extended API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a chain client.
func New(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		http:    &http.Client{Timeout: readTimeout + 3*time.Second},
	}
}

// AddressTransactions returns recent transactions involving the given
// principal, most recent first. Contract principals are accepted too, which
// is how the indexer watches the USDC contract.
func (c *Client) AddressTransactions(ctx context.Context, principal string, limit, offset int) ([]*Transaction, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	endpoint := fmt.Sprintf("%s/extended/v1/address/%s/transactions?%s",
		c.baseURL, url.PathEscape(principal), params.Encode())

	var page struct {
		Results []*Transaction `json:"results"`
	}
	if err := c.get(ctx, endpoint, &page); err != nil {
		return nil, fmt.Errorf("address transactions for %s: %w", principal, err)
	}
	return page.Results, nil
}

// TxByID fetches one transaction. ErrTxNotFound means the chain API has not
// seen the id yet, callers typically keep polling.
func (c *Client) TxByID(ctx context.Context, txID string) (*Transaction, error) {
	if txID == "" {
		return nil, fmt.Errorf("transaction id is required")
	}
	if !strings.HasPrefix(txID, "0x") {
		txID = "0x" + txID
	}
	var tx Transaction
	endpoint := fmt.Sprintf("%s/extended/v1/tx/%s", c.baseURL, url.PathEscape(txID))
	if err := c.get(ctx, endpoint, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build chain request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chain request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrTxNotFound
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chain API status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode chain response: %w", err)
	}
	return nil
}
