package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

type countingTicker struct {
	ticks atomic.Int64
}

func (c *countingTicker) Tick(context.Context) {
	c.ticks.Add(1)
}

func TestPriceRefresherLifecycle(t *testing.T) {
	c := qt.New(t)
	ticker := &countingTicker{}
	pr := NewPriceRefresher(ticker, 5*time.Millisecond)

	ctx := context.Background()
	c.Assert(pr.Start(ctx), qt.IsNil)
	c.Assert(pr.Start(ctx), qt.ErrorMatches, "service already running")

	deadline := time.Now().Add(2 * time.Second)
	for ticker.ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	c.Assert(ticker.ticks.Load() >= 3, qt.IsTrue)

	pr.Stop()
	pr.Stop() // idempotent

	settled := ticker.ticks.Load()
	time.Sleep(20 * time.Millisecond)
	c.Assert(ticker.ticks.Load(), qt.Equals, settled)

	// restartable after a stop
	c.Assert(pr.Start(ctx), qt.IsNil)
	pr.Stop()
}
