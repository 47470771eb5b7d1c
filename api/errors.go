package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sswap/sswap-node/engine"
	"github.com/sswap/sswap-node/lenco"
	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/onramp"
	"github.com/sswap/sswap-node/storage"
)

// Production masks 5xx messages behind a generic string. Set once at startup
// from the configured environment.
var Production = false

// Error is the API transport error: a stable numeric code, the HTTP status
// it travels with and the underlying error. Codes in the 40001+ range are
// the client's fault, 50001+ the server's. MachineCode, when set, gives
// clients a stable string to branch on.
type Error struct {
	Err         error
	Code        int
	HTTPstatus  int
	MachineCode string
}

// Error returns the string representation of the error.
func (e Error) Error() string {
	return e.Err.Error()
}

// Withf returns a copy of Error with the Err field replaced by the formatted
// message. The code and status are kept.
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:         fmt.Errorf(format, args...),
		Code:        e.Code,
		HTTPstatus:  e.HTTPstatus,
		MachineCode: e.MachineCode,
	}
}

// WithErr returns a copy of Error with the underlying error appended to the
// catalog message.
func (e Error) WithErr(err error) Error {
	return Error{
		Err:         fmt.Errorf("%v: %v", e.Err, err),
		Code:        e.Code,
		HTTPstatus:  e.HTTPstatus,
		MachineCode: e.MachineCode,
	}
}

// errorEnvelope is the uniform failure response body.
type errorEnvelope struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Code        string `json:"code,omitempty"`
	MaxOrderNGN *int64 `json:"maxOrderNgn,omitempty"`
}

// Write sends the error to the client as the standard failure envelope.
// Server-fault messages are masked in production.
func (e Error) Write(w http.ResponseWriter) {
	e.write(w, nil)
}

func (e Error) write(w http.ResponseWriter, maxOrderNGN *int64) {
	msg := e.Err.Error()
	if Production && e.HTTPstatus >= 500 {
		msg = "internal server error"
	}
	body, err := json.Marshal(errorEnvelope{
		Message:     msg,
		Code:        e.MachineCode,
		MaxOrderNGN: maxOrderNGN,
	})
	if err != nil {
		log.Warnw("failed to marshal error response", "error", err)
		http.Error(w, e.Err.Error(), e.HTTPstatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(body); err != nil {
		log.Warnw("failed to write error response", "error", err)
	}
}

// writeDomainError maps a domain error onto the catalog and writes it. The
// sentinel chain decides; anything unrecognized is an internal error.
func writeDomainError(w http.ResponseWriter, err error) {
	var liqErr *engine.InsufficientLiquidityError
	switch {
	case errors.As(err, &liqErr):
		apiErr := ErrInsufficientLiquidity.Withf("%v", liqErr)
		if liqErr.HasMax {
			apiErr.write(w, &liqErr.MaxOrderNGN)
			return
		}
		apiErr.Write(w)

	case errors.Is(err, engine.ErrLiquidityUnknown):
		ErrLiquidityUnavailable.Write(w)

	case errors.Is(err, engine.ErrValidation):
		ErrValidationFailed.WithErr(err).Write(w)

	case errors.Is(err, engine.ErrInvalidSignature):
		ErrInvalidSignature.Write(w)

	case errors.Is(err, engine.ErrConflict):
		ErrConflictingState.WithErr(err).Write(w)

	case errors.Is(err, engine.ErrNotConfigured):
		ErrNotConfigured.WithErr(err).Write(w)

	case errors.Is(err, storage.ErrNotFound):
		ErrResourceNotFound.Write(w)

	case errors.Is(err, storage.ErrAlreadyExists):
		ErrConflictingState.WithErr(err).Write(w)

	case errors.Is(err, storage.ErrNoTransition):
		ErrConflictingState.WithErr(err).Write(w)

	case errors.Is(err, lenco.ErrBankVerification):
		ErrBankVerification.WithErr(err).Write(w)

	case errors.Is(err, lenco.ErrPayout):
		ErrPayoutFailed.WithErr(err).Write(w)

	case errors.Is(err, lenco.ErrBalanceUnavailable):
		ErrLiquidityUnavailable.Write(w)

	case errors.Is(err, onramp.ErrPayment):
		ErrUpstreamUnavailable.WithErr(err).Write(w)

	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}
