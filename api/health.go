package api

import (
	"net/http"
	"time"

	"github.com/sswap/sswap-node/internal"
)

// healthResponse is the liveness payload.
type healthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Env       string    `json:"env"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	env := a.cfg.Environment
	if env == "" {
		env = "development"
	}
	httpWriteJSON(w, healthResponse{
		Status:    "ok",
		Version:   internal.Version,
		Env:       env,
		Uptime:    time.Since(a.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	})
}
