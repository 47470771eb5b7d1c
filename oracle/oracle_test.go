package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/sswap/sswap-node/types"
)

var testPayload = map[string]map[string]json.Number{
	"blockstack": {"usd": "0.65", "ngn": "975", "usd_24h_change": "-1.2"},
	"usd-coin":   {"usd": "1.0", "ngn": "1499", "usd_24h_change": "0.01"},
	"tether":     {"usd": "1.0", "ngn": "1500"},
}

func priceServer(t *testing.T, hits *atomic.Int64, status int, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(testPayload); err != nil {
			t.Errorf("encode payload: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCurrentCachesFreshPrices(t *testing.T) {
	c := qt.New(t)
	var hits atomic.Int64
	srv := priceServer(t, &hits, http.StatusOK, 0)

	o := New(Config{APIURL: srv.URL}, nil)
	ctx := context.Background()

	data, freshness := o.Current(ctx)
	c.Assert(freshness, qt.Equals, types.CacheFresh)
	c.Assert(data.Source, qt.Equals, "coingecko")
	c.Assert(data.USDToNGN.String(), qt.Equals, "1500")

	stx, ok := data.Price(types.TokenSTX)
	c.Assert(ok, qt.IsTrue)
	c.Assert(stx.USD.String(), qt.Equals, "0.65")
	// NGN is derived from USD and the cross rate, not taken verbatim
	c.Assert(stx.NGN.String(), qt.Equals, "975")
	c.Assert(stx.Change24h, qt.Equals, -1.2)

	// a second read within the fresh TTL must not touch upstream
	_, freshness = o.Current(ctx)
	c.Assert(freshness, qt.Equals, types.CacheFresh)
	c.Assert(hits.Load(), qt.Equals, int64(1))
}

func TestCurrentServesStaleWhileRefreshing(t *testing.T) {
	c := qt.New(t)
	var hits atomic.Int64
	srv := priceServer(t, &hits, http.StatusOK, 0)

	o := New(Config{APIURL: srv.URL, FreshTTL: time.Minute, StaleTTL: 5 * time.Minute}, nil)
	ctx := context.Background()

	_, freshness := o.Current(ctx)
	c.Assert(freshness, qt.Equals, types.CacheFresh)

	// age the cache into the stale window
	o.mu.Lock()
	o.current.FetchedAt = time.Now().Add(-2 * time.Minute)
	o.mu.Unlock()

	data, freshness := o.Current(ctx)
	c.Assert(freshness, qt.Equals, types.CacheStale)
	c.Assert(data, qt.IsNotNil)
}

func TestCurrentFallsBackToEmergency(t *testing.T) {
	c := qt.New(t)
	var hits atomic.Int64
	srv := priceServer(t, &hits, http.StatusInternalServerError, 0)

	o := New(Config{APIURL: srv.URL}, nil)

	data, freshness := o.Current(context.Background())
	c.Assert(freshness, qt.Equals, types.CacheExpired)
	c.Assert(data.Source, qt.Equals, "emergency")

	stx, ok := data.Price(types.TokenSTX)
	c.Assert(ok, qt.IsTrue)
	c.Assert(stx.NGN.IsPositive(), qt.IsTrue)

	usdc, ok := data.Price(types.TokenUSDC)
	c.Assert(ok, qt.IsTrue)
	c.Assert(usdc.NGN.IsPositive(), qt.IsTrue)
}

func TestCurrentExpiredFallsBackToEmergency(t *testing.T) {
	c := qt.New(t)
	var hits atomic.Int64
	srv := priceServer(t, &hits, http.StatusOK, 0)

	o := New(Config{APIURL: srv.URL}, nil)
	ctx := context.Background()

	_, freshness := o.Current(ctx)
	c.Assert(freshness, qt.Equals, types.CacheFresh)

	// age the cache past the stale window and kill the upstream: the old
	// snapshot is no longer trusted, emergency constants take over
	srv.Close()
	o.mu.Lock()
	o.current.FetchedAt = time.Now().Add(-time.Hour)
	o.mu.Unlock()

	data, freshness := o.Current(ctx)
	c.Assert(freshness, qt.Equals, types.CacheExpired)
	c.Assert(data.Source, qt.Equals, "emergency")
	c.Assert(data.USDToNGN.Equal(o.cfg.EmergencyUSDToNGN), qt.IsTrue)
}

func TestRateLimitArmsBackoff(t *testing.T) {
	c := qt.New(t)
	var hits atomic.Int64
	srv := priceServer(t, &hits, http.StatusTooManyRequests, 0)

	o := New(Config{APIURL: srv.URL, BaseBackoff: time.Minute}, nil)
	ctx := context.Background()

	_, err := o.Refresh(ctx)
	c.Assert(err, qt.ErrorIs, ErrRateLimited)
	c.Assert(hits.Load(), qt.Equals, int64(1))

	// while the backoff window is active no upstream call may happen
	_, err = o.Refresh(ctx)
	c.Assert(err, qt.IsNotNil)
	c.Assert(err, qt.Not(qt.ErrorIs), ErrRateLimited)
	c.Assert(hits.Load(), qt.Equals, int64(1))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	c := qt.New(t)
	o := New(Config{BaseBackoff: 30 * time.Second, MaxBackoff: 2 * time.Minute}, nil)

	o.armBackoff()
	c.Assert(o.backoffRemaining(time.Now()) <= 30*time.Second, qt.IsTrue)
	c.Assert(o.backoffRemaining(time.Now()) > 25*time.Second, qt.IsTrue)

	o.armBackoff()
	c.Assert(o.backoffRemaining(time.Now()) > 55*time.Second, qt.IsTrue)

	o.armBackoff()
	o.armBackoff()
	o.armBackoff()
	remaining := o.backoffRemaining(time.Now())
	c.Assert(remaining <= 2*time.Minute, qt.IsTrue, qt.Commentf("backoff must cap, got %s", remaining))
}

func TestRefreshSharesSingleFlight(t *testing.T) {
	c := qt.New(t)
	var hits atomic.Int64
	srv := priceServer(t, &hits, http.StatusOK, 100*time.Millisecond)

	o := New(Config{APIURL: srv.URL}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Refresh(ctx)
			if err != nil {
				t.Errorf("refresh: %v", err)
			}
		}()
	}
	wg.Wait()
	c.Assert(hits.Load(), qt.Equals, int64(1), qt.Commentf("concurrent refreshes must share one upstream call"))
}

func TestRate(t *testing.T) {
	c := qt.New(t)
	var hits atomic.Int64
	srv := priceServer(t, &hits, http.StatusOK, 0)

	o := New(Config{APIURL: srv.URL}, nil)

	rate, freshness, err := o.Rate(context.Background(), types.TokenSTX)
	c.Assert(err, qt.IsNil)
	c.Assert(freshness, qt.Equals, types.CacheFresh)
	c.Assert(rate.String(), qt.Equals, "975")

	_, _, err = o.Rate(context.Background(), types.TokenSymbol("DOGE"))
	c.Assert(err, qt.IsNotNil)
}

func TestCrossRateFallsBackToUSDC(t *testing.T) {
	c := qt.New(t)
	emergency := types.MustDecimal("1480")

	payload := map[string]map[string]json.Number{
		"blockstack": {"usd": "0.65"},
		"usd-coin":   {"usd": "1.0", "ngn": "1490"},
	}
	data, err := buildPriceData(payload, emergency)
	c.Assert(err, qt.IsNil)
	c.Assert(data.USDToNGN.String(), qt.Equals, "1490")

	// no NGN leg anywhere: the emergency rate carries the snapshot
	data, err = buildPriceData(map[string]map[string]json.Number{
		"blockstack": {"usd": "0.65"},
		"usd-coin":   {"usd": "1.0"},
	}, emergency)
	c.Assert(err, qt.IsNil)
	c.Assert(data.Source, qt.Equals, "coingecko")
	c.Assert(data.USDToNGN.String(), qt.Equals, "1480")
	stx, ok := data.Price(types.TokenSTX)
	c.Assert(ok, qt.IsTrue)
	c.Assert(stx.NGN.String(), qt.Equals, "962")

	// without a configured emergency rate it stays a hard error
	_, err = buildPriceData(map[string]map[string]json.Number{
		"blockstack": {"usd": "0.65"},
		"usd-coin":   {"usd": "1.0"},
	}, types.Decimal{})
	c.Assert(err, qt.IsNotNil)
}
