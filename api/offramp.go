package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sswap/sswap-node/engine"
	"github.com/sswap/sswap-node/storage"
	"github.com/sswap/sswap-node/types"
)

func (a *API) offrampBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := a.cfg.Banks.Banks(r.Context())
	if err != nil {
		ErrUpstreamUnavailable.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, map[string]any{"banks": banks})
}

// quoteQuery parses the token and tokenAmount query parameters shared by the
// rate endpoints. Returns false when the response was already written.
func quoteQuery(w http.ResponseWriter, r *http.Request) (types.TokenSymbol, types.Decimal, bool) {
	token := types.TokenSymbol(strings.ToUpper(r.URL.Query().Get("token")))
	if !token.Valid() {
		ErrUnsupportedToken.Withf("unsupported token %q", r.URL.Query().Get("token")).Write(w)
		return "", types.Decimal{}, false
	}
	amount, err := types.DecimalFromString(r.URL.Query().Get("tokenAmount"))
	if err != nil {
		ErrMalformedParam.Withf("tokenAmount: %v", err).Write(w)
		return "", types.Decimal{}, false
	}
	return token, amount, true
}

func (a *API) offrampRate(w http.ResponseWriter, r *http.Request) {
	token, amount, ok := quoteQuery(w, r)
	if !ok {
		return
	}
	quote, err := a.cfg.Offramp.Quote(r.Context(), token, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, quote)
}

// liquidityResponse never exposes the raw platform balance, only whether an
// order fits and the current ceiling.
type liquidityResponse struct {
	Available    bool  `json:"available"`
	MaxOrderNGN  int64 `json:"maxOrderNgn"`
	MinBufferNGN int64 `json:"minBufferNgn"`
}

func (a *API) liquidity(w http.ResponseWriter, r *http.Request) {
	guard := a.cfg.Offramp.Guard()
	max, known := guard.MaxOrderNGN(r.Context())
	httpWriteJSON(w, liquidityResponse{
		Available:    known && max > 0,
		MaxOrderNGN:  max,
		MinBufferNGN: guard.BufferNGN(),
	})
}

// verifyAccountRequest is a bank account name lookup.
type verifyAccountRequest struct {
	BankCode      string `json:"bankCode"`
	AccountNumber string `json:"accountNumber"`
}

func (a *API) verifyAccount(w http.ResponseWriter, r *http.Request) {
	var req verifyAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	account, err := a.cfg.Banks.ResolveAccount(r.Context(), req.BankCode, req.AccountNumber)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, account)
}

// initializeOfframp creates a pending offramp and answers 201 with deposit
// instructions.
func (a *API) initializeOfframp(w http.ResponseWriter, r *http.Request) {
	var req engine.InitOfframpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := a.cfg.Offramp.InitializeOfframp(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSONStatus(w, http.StatusCreated, out)
}

// notifyTxRequest attaches a broadcast chain tx to a pending offramp.
type notifyTxRequest struct {
	Reference string `json:"reference"`
	ChainTxID string `json:"chainTxId"`
}

func (a *API) notifyTx(w http.ResponseWriter, r *http.Request) {
	var req notifyTxRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	already, err := a.cfg.Offramp.NotifyTxBroadcast(r.Context(), req.Reference, req.ChainTxID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, map[string]any{
		"reference":         req.Reference,
		"watching":          !already,
		"alreadyProcessing": already,
	})
}

func (a *API) confirmReceipt(w http.ResponseWriter, r *http.Request) {
	var req engine.ConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	outcome, err := a.cfg.Offramp.ConfirmReceipt(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, map[string]any{
		"reference": req.Reference,
		"outcome":   string(outcome),
	})
}

func (a *API) lencoWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, maxWebhookBody)
	if err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	signature := r.Header.Get(LencoSignatureHeader)
	if err := a.cfg.Offramp.HandlePayoutWebhook(r.Context(), body, signature); err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteOK(w)
}

func (a *API) offrampStatus(w http.ResponseWriter, r *http.Request) {
	tx, err := a.cfg.Offramp.Status(r.Context(), chi.URLParam(r, ReferenceURLParam))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, tx)
}

// historyFilter parses the shared list query parameters. direction is fixed
// by the caller.
func historyFilter(r *http.Request, direction types.Direction) storage.TransactionFilter {
	q := r.URL.Query()
	filter := storage.TransactionFilter{
		Direction: direction,
		Address:   q.Get("address"),
		Status:    types.TxStatus(q.Get("status")),
		Token:     types.TokenSymbol(strings.ToUpper(q.Get("token"))),
	}
	if limit, err := strconv.ParseInt(q.Get("limit"), 10, 64); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.ParseInt(q.Get("offset"), 10, 64); err == nil {
		filter.Offset = offset
	} else if page, err := strconv.ParseInt(q.Get("page"), 10, 64); err == nil && page > 1 {
		limit := filter.Limit
		if limit <= 0 {
			limit = 50
		}
		filter.Offset = (page - 1) * limit
	}
	return filter
}

func (a *API) offrampHistory(w http.ResponseWriter, r *http.Request) {
	txs, err := a.cfg.Offramp.History(r.Context(), historyFilter(r, types.DirectionOfframp))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, map[string]any{"transactions": txs, "count": len(txs)})
}
