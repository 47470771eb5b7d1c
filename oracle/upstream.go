package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sswap/sswap-node/config"
	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/types"
)

const defaultAPIURL = "https://api.coingecko.com/api/v3"

// ErrRateLimited is returned when the upstream source answers 429. It is the
// only error that arms the exponential backoff.
var ErrRateLimited = errors.New("price source rate limited")

type upstreamClient struct {
	baseURL string
	http    *http.Client
	// cross rate of last resort when the response carries no NGN quote
	emergencyUSDToNGN types.Decimal
}

func newUpstreamClient(baseURL string, emergencyUSDToNGN types.Decimal) *upstreamClient {
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	return &upstreamClient{
		baseURL:           strings.TrimRight(baseURL, "/"),
		http:              &http.Client{Timeout: 10 * time.Second},
		emergencyUSDToNGN: emergencyUSDToNGN,
	}
}

// FetchPrices asks the upstream source for every registered token in USD and
// NGN plus the 24h change, and derives the final per-token NGN quotes.
func (c *upstreamClient) FetchPrices(ctx context.Context) (*types.PriceData, error) {
	params := url.Values{}
	params.Set("ids", strings.Join(config.CoingeckoIDs(), ","))
	params.Set("vs_currencies", "usd,ngn")
	params.Set("include_24hr_change", "true")

	endpoint := fmt.Sprintf("%s/simple/price?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price source request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("price source status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}
	return buildPriceData(payload, c.emergencyUSDToNGN)
}

// buildPriceData converts the raw upstream payload into PriceData. The USD
// to NGN leg prefers the tether quote, which tracks the street rate, falls
// back to the usd-coin quote, and as a last resort uses the configured
// emergency rate so a response with valid USD prices still yields a usable
// snapshot.
func buildPriceData(payload map[string]map[string]json.Number, emergencyUSDToNGN types.Decimal) (*types.PriceData, error) {
	usdToNgn, err := crossRate(payload, emergencyUSDToNGN)
	if err != nil {
		return nil, err
	}

	data := &types.PriceData{
		Tokens:    make(map[types.TokenSymbol]types.TokenPrice, len(config.Tokens)),
		USDToNGN:  usdToNgn,
		FetchedAt: time.Now().UTC(),
		Source:    "coingecko",
	}
	for symbol, info := range config.Tokens {
		entry, ok := payload[info.CoingeckoID]
		if !ok {
			return nil, fmt.Errorf("price response missing %s (%s)", symbol, info.CoingeckoID)
		}
		usd, err := numberToDecimal(entry["usd"])
		if err != nil {
			return nil, fmt.Errorf("price of %s: %w", symbol, err)
		}
		change, _ := entry["usd_24h_change"].Float64()
		data.Tokens[symbol] = types.TokenPrice{
			Token:     symbol,
			USD:       usd,
			NGN:       types.NewDecimal(usd.Mul(usdToNgn.Decimal)),
			Change24h: change,
		}
	}
	return data, nil
}

func crossRate(payload map[string]map[string]json.Number, emergencyUSDToNGN types.Decimal) (types.Decimal, error) {
	if entry, ok := payload[config.TetherCoingeckoID]; ok {
		if rate, err := numberToDecimal(entry["ngn"]); err == nil && rate.IsPositive() {
			return rate, nil
		}
	}
	if entry, ok := payload[config.Tokens[types.TokenUSDC].CoingeckoID]; ok {
		if rate, err := numberToDecimal(entry["ngn"]); err == nil && rate.IsPositive() {
			return rate, nil
		}
	}
	if emergencyUSDToNGN.IsPositive() {
		log.Warnw("price response carries no NGN quote, using emergency cross rate",
			"rate", emergencyUSDToNGN.String())
		return emergencyUSDToNGN, nil
	}
	return types.Decimal{}, fmt.Errorf("price response carries no usable NGN rate")
}

func numberToDecimal(n json.Number) (types.Decimal, error) {
	if n == "" {
		return types.Decimal{}, fmt.Errorf("missing value")
	}
	return types.DecimalFromString(n.String())
}
