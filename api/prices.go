package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sswap/sswap-node/types"
)

// pricesResponse wraps a price snapshot with its cache freshness.
type pricesResponse struct {
	Prices    *types.PriceData `json:"prices"`
	Freshness string           `json:"freshness"`
}

func (a *API) prices(w http.ResponseWriter, r *http.Request) {
	data, freshness := a.cfg.Prices.Current(r.Context())
	httpWriteJSON(w, pricesResponse{Prices: data, Freshness: freshness.String()})
}

// tokenParam parses the token URL parameter, case-insensitive. Returns false
// when the response was already written.
func tokenParam(w http.ResponseWriter, r *http.Request) (types.TokenSymbol, bool) {
	token := types.TokenSymbol(strings.ToUpper(chi.URLParam(r, TokenURLParam)))
	if !token.Valid() {
		ErrUnsupportedToken.Withf("unsupported token %q", chi.URLParam(r, TokenURLParam)).Write(w)
		return "", false
	}
	return token, true
}

func (a *API) price(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	data, freshness := a.cfg.Prices.Current(r.Context())
	price, ok := data.Price(token)
	if !ok {
		ErrResourceNotFound.Withf("token %s is not priced", token).Write(w)
		return
	}
	httpWriteJSON(w, map[string]any{
		"price":     price,
		"usdToNgn":  data.USDToNGN,
		"fetchedAt": data.FetchedAt,
		"freshness": freshness.String(),
	})
}

func (a *API) priceHistory(w http.ResponseWriter, r *http.Request) {
	token, ok := tokenParam(w, r)
	if !ok {
		return
	}
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 168 {
			ErrMalformedParam.Withf("hours must be an integer between 1 and 168").Write(w)
			return
		}
		hours = parsed
	}
	snapshots, err := a.cfg.Prices.History(r.Context(), token, hours)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, map[string]any{
		"token":     token,
		"hours":     hours,
		"snapshots": snapshots,
	})
}

func (a *API) refreshPrices(w http.ResponseWriter, r *http.Request) {
	data, err := a.cfg.Prices.Refresh(r.Context())
	if err != nil {
		ErrUpstreamUnavailable.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, pricesResponse{Prices: data, Freshness: types.CacheFreshName})
}
