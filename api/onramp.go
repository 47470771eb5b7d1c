package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sswap/sswap-node/onramp"
	"github.com/sswap/sswap-node/types"
)

func (a *API) onrampRate(w http.ResponseWriter, r *http.Request) {
	token, amount, ok := quoteQuery(w, r)
	if !ok {
		return
	}
	quote, err := a.cfg.Onramp.Quote(r.Context(), token, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, quote)
}

func (a *API) initializeOnramp(w http.ResponseWriter, r *http.Request) {
	var req onramp.InitOnrampRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := a.cfg.Onramp.Initialize(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSONStatus(w, http.StatusCreated, out)
}

func (a *API) monnifyWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, maxWebhookBody)
	if err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	signature := r.Header.Get(MonnifySignatureHeader)
	if err := a.cfg.Onramp.HandlePaymentWebhook(r.Context(), body, signature); err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteOK(w)
}

func (a *API) onrampStatus(w http.ResponseWriter, r *http.Request) {
	tx, err := a.cfg.Onramp.Status(r.Context(), chi.URLParam(r, ReferenceURLParam))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, tx)
}

func (a *API) onrampHistory(w http.ResponseWriter, r *http.Request) {
	txs, err := a.cfg.Onramp.History(r.Context(), historyFilter(r, types.DirectionOnramp))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, map[string]any{"transactions": txs, "count": len(txs)})
}
