package lenco

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sswap/sswap-node/log"
)

const balanceCacheTTL = 30 * time.Second

type balanceCache struct {
	mu        sync.Mutex
	ngn       int64
	fetchedAt time.Time
}

// Balance returns the available balance of the platform account in whole
// naira, converting the provider's kobo minor units. A 30 second cache
// absorbs bursts; an unreachable provider surfaces as ErrBalanceUnavailable,
// which is NOT the same as a zero balance.
func (c *Client) Balance(ctx context.Context) (int64, error) {
	c.balance.mu.Lock()
	defer c.balance.mu.Unlock()

	if !c.balance.fetchedAt.IsZero() && time.Since(c.balance.fetchedAt) < balanceCacheTTL {
		return c.balance.ngn, nil
	}
	if c.cfg.AccountID == "" {
		return 0, fmt.Errorf("%w: lenco account id not configured", ErrBalanceUnavailable)
	}

	var raw struct {
		Currency         string      `json:"currency"`
		AvailableBalance json.Number `json:"availableBalance"`
	}
	if err := c.get(ctx, "/accounts/"+c.cfg.AccountID+"/balance", balanceTimeout, &raw); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBalanceUnavailable, err)
	}

	kobo, err := raw.AvailableBalance.Int64()
	if err != nil {
		// some responses carry decimal kobo, accept the float form too
		f, ferr := raw.AvailableBalance.Float64()
		if ferr != nil {
			return 0, fmt.Errorf("%w: unparseable balance %q", ErrBalanceUnavailable, raw.AvailableBalance)
		}
		kobo = int64(f)
	}
	ngn := kobo / 100

	c.balance.ngn = ngn
	c.balance.fetchedAt = time.Now()
	log.Debugw("platform balance refreshed", "availableNGN", ngn)
	return ngn, nil
}

// InvalidateBalance drops the cached balance. The settlement engine calls
// this right after initiating a payout, before answering the caller: the
// cache TTL is a correctness hazard under bursty order initiations.
func (c *Client) InvalidateBalance() {
	c.balance.mu.Lock()
	c.balance.fetchedAt = time.Time{}
	c.balance.mu.Unlock()
}
