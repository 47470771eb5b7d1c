//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the client's fault,
// and they return HTTP Status 400, 401, 404 or 409, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault
// and they return HTTP Status 500, 502 or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after the current last 4XXX or 5XXX.
// If you notice there's a gap, DON'T fill it in, that code was used in the past and shouldn't be reused.
var (
	ErrResourceNotFound      = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody         = Error{Code: 40002, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMalformedParam        = Error{Code: 40003, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed parameter")}
	ErrValidationFailed      = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("validation failed")}
	ErrInvalidSignature      = Error{Code: 40005, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("invalid webhook signature")}
	ErrUnauthorized          = Error{Code: 40006, HTTPstatus: http.StatusUnauthorized, Err: fmt.Errorf("unauthorized")}
	ErrConflictingState      = Error{Code: 40007, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("conflicting transaction state")}
	ErrUnsupportedToken      = Error{Code: 40008, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("unsupported token")}
	ErrInsufficientLiquidity = Error{Code: 40009, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("insufficient liquidity"), MachineCode: "INSUFFICIENT_LIQUIDITY"}
	ErrBankVerification      = Error{Code: 40010, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("bank account verification failed")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrUpstreamUnavailable        = Error{Code: 50003, HTTPstatus: http.StatusBadGateway, Err: fmt.Errorf("upstream provider unavailable")}
	ErrNotConfigured              = Error{Code: 50004, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("feature not configured")}
	ErrLiquidityUnavailable       = Error{Code: 50005, HTTPstatus: http.StatusServiceUnavailable, Err: fmt.Errorf("liquidity temporarily unavailable"), MachineCode: "LIQUIDITY_UNKNOWN"}
	ErrPayoutFailed               = Error{Code: 50006, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("payout initiation failed")}
)
