/*
Package service contains the long-running pieces of sswap-node behind a
uniform Start(ctx)/Stop lifecycle: the HTTP API server and the background
price refresher. The settlement reaper and the chain indexer carry the same
lifecycle themselves and are started directly by the daemon.
*/
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sswap/sswap-node/api"
	"github.com/sswap/sswap-node/log"
)

// APIService manages the HTTP API server.
type APIService struct {
	cfg    *api.APIConfig
	API    *api.API
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewAPI creates a new APIService instance.
func NewAPI(cfg *api.APIConfig, disableLogging bool) *APIService {
	if disableLogging {
		api.DisabledLogging = disableLogging
		log.Debugw("API logging is disabled")
	}
	return &APIService{cfg: cfg}
}

// Start begins the API server. It returns an error if the service is already
// running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	_, as.cancel = context.WithCancel(ctx)

	var err error
	as.API, err = api.New(as.cfg)
	if err != nil {
		as.cancel = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		as.cancel()
		as.cancel = nil
	}
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.cfg.Host, as.cfg.Port
}
