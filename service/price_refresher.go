package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sswap/sswap-node/log"
)

// Ticker is the refresh surface the price refresher drives. *oracle.Oracle
// implements it.
type Ticker interface {
	Tick(ctx context.Context)
}

// PriceRefresher keeps the price cache warm so user-facing reads rarely pay
// for an upstream fetch. One immediate tick on start, then one per interval.
type PriceRefresher struct {
	oracle   Ticker
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewPriceRefresher creates a PriceRefresher ticking at the given interval.
// The interval should match the oracle's fresh TTL.
func NewPriceRefresher(oracle Ticker, interval time.Duration) *PriceRefresher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PriceRefresher{oracle: oracle, interval: interval}
}

// Start begins the periodic refresh. It returns an error if the service is
// already running.
func (pr *PriceRefresher) Start(ctx context.Context) error {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.cancel != nil {
		return fmt.Errorf("service already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	pr.cancel = cancel

	pr.wg.Add(1)
	go pr.run(ctx)

	log.Infow("price refresher started", "interval", pr.interval.String())
	return nil
}

// Stop halts the refresher and waits for the in-flight tick to finish.
func (pr *PriceRefresher) Stop() {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if pr.cancel != nil {
		pr.cancel()
		pr.cancel = nil
		pr.wg.Wait()
	}
}

func (pr *PriceRefresher) run(ctx context.Context) {
	defer pr.wg.Done()

	pr.oracle.Tick(ctx)

	ticker := time.NewTicker(pr.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pr.oracle.Tick(ctx)
		}
	}
}
