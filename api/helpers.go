package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sswap/sswap-node/log"
)

// successEnvelope is the uniform success response body.
type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// httpWriteJSON writes data wrapped in the success envelope with status 200.
func httpWriteJSON(w http.ResponseWriter, data any) {
	httpWriteJSONStatus(w, http.StatusOK, data)
}

// httpWriteJSONStatus writes data wrapped in the success envelope with the
// given status code.
func httpWriteJSONStatus(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(successEnvelope{Success: true, Data: data})
	if err != nil {
		ErrMarshalingServerJSONFailed.WithErr(err).Write(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	n, err := w.Write(body)
	if err != nil {
		log.Warnw("failed to write http response", "error", err)
		return
	}
	if !DisabledLogging && log.Level() == log.LogLevelDebug {
		log.Debugw("api response", "bytes", n, "data", strings.ReplaceAll(string(body), "\"", ""))
	}
}

// httpWriteOK writes an empty success envelope.
func httpWriteOK(w http.ResponseWriter) {
	httpWriteJSON(w, nil)
}

// readBody reads at most maxBytes of the request body.
func readBody(r *http.Request, maxBytes int64) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(io.LimitReader(r.Body, maxBytes))
}

// decodeJSON decodes the request body into out, answering with
// ErrMalformedBody on failure. Returns false when the response was already
// written.
func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(out); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return false
	}
	return true
}
