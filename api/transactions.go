package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/storage"
	"github.com/sswap/sswap-node/types"
)

func (a *API) listTransactions(w http.ResponseWriter, r *http.Request) {
	filter := historyFilter(r, types.Direction(r.URL.Query().Get("direction")))
	txs, err := a.cfg.Store.ListTransactions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, map[string]any{"transactions": txs, "count": len(txs)})
}

func (a *API) transaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.cfg.Store.Transaction(r.Context(), chi.URLParam(r, ReferenceURLParam))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, tx)
}

func (a *API) transactionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.cfg.Store.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httpWriteJSON(w, map[string]any{"stats": stats})
}

// overrideStatusRequest is a manual status transition, used by operators for
// records flagged requiresManualSettlement. The expected status makes the
// override itself race-safe.
type overrideStatusRequest struct {
	From   types.TxStatus `json:"from"`
	To     types.TxStatus `json:"to"`
	Reason string         `json:"reason"`
}

func (a *API) overrideStatus(w http.ResponseWriter, r *http.Request) {
	var req overrideStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.From.Valid() || !req.To.Valid() {
		ErrValidationFailed.Withf("from and to must be valid statuses").Write(w)
		return
	}
	if req.Reason == "" {
		ErrValidationFailed.Withf("a reason is required for manual overrides").Write(w)
		return
	}

	reference := chi.URLParam(r, ReferenceURLParam)
	tx, err := a.cfg.Store.ConditionalUpdate(r.Context(), reference, req.From, storage.TransactionUpdate{
		Status: req.To,
		Meta: map[string]any{
			"manualOverride":       true,
			"manualOverrideReason": req.Reason,
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	log.Monitor("MANUAL STATUS OVERRIDE", map[string]any{
		"reference": reference,
		"from":      string(req.From),
		"to":        string(req.To),
		"reason":    req.Reason,
	})
	httpWriteJSON(w, tx)
}
