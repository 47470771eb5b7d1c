package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sswap/sswap-node/log"
)

// expiryReason is written into meta.failureReason of reaped records.
const expiryReason = "offramp expired"

var errAlreadyRunning = errors.New("service already running")

// Reaper periodically fails pending offramps whose deposit deadline has
// passed. Each record is failed through a status-matched update, so a
// deposit confirmed concurrently with the sweep always wins.
type Reaper struct {
	store    Store
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReaper creates a Reaper sweeping at the given interval (default 1m).
func NewReaper(store Store, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{store: store, interval: interval}
}

// Start begins the sweep loop. It returns an error if already running.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return errAlreadyRunning
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Infow("expiry reaper started", "interval", r.interval.String())
	return nil
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	r.wg.Wait()
}

func (r *Reaper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reaped, err := r.store.FailExpired(ctx, time.Now().UTC(), expiryReason)
	if err != nil {
		log.Warnw("expiry sweep failed", "error", err)
		return
	}
	if reaped > 0 {
		log.Infow("expired offramps failed", "count", reaped)
	}
}
