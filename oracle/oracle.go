/*
Package oracle provides the cached price source of sswap-node.

Prices move through three freshness states: fresh reads are served straight
from memory, stale reads are served while a background refresh runs, and
expired reads force a blocking refresh. When the upstream source is down,
stale data keeps being served; once the cache has fully expired it is no
longer trusted and reads fall back to the configured emergency constants.
Current never fails.

Upstream discipline: at most one fetch is ever in flight (concurrent callers
share its outcome), and a 429 answer arms an exponential backoff during
which no upstream calls are made at all.
*/
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sswap/sswap-node/config"
	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/metrics"
	"github.com/sswap/sswap-node/types"
)

// SnapshotStore persists price observations for the history endpoints. The
// oracle works without one, it just stops recording history.
type SnapshotStore interface {
	InsertPriceSnapshots(ctx context.Context, snapshots []types.PriceSnapshot) error
	PriceHistory(ctx context.Context, token types.TokenSymbol, since time.Time) ([]types.PriceSnapshot, error)
}

// Config contains the oracle tuning knobs.
type Config struct {
	APIURL      string
	FreshTTL    time.Duration // cache age below which reads are served directly
	StaleTTL    time.Duration // cache age below which reads are still served while refreshing
	BaseBackoff time.Duration // first backoff step after a 429
	MaxBackoff  time.Duration // backoff ceiling

	EmergencyUSDToNGN types.Decimal
	EmergencySTXUSD   types.Decimal
	EmergencyUSDCUSD  types.Decimal
}

// DefaultConfig returns the default oracle configuration.
func DefaultConfig() Config {
	return Config{
		APIURL:            defaultAPIURL,
		FreshTTL:          time.Minute,
		StaleTTL:          5 * time.Minute,
		BaseBackoff:       30 * time.Second,
		MaxBackoff:        5 * time.Minute,
		EmergencyUSDToNGN: types.MustDecimal(config.EmergencyUSDToNGN),
		EmergencySTXUSD:   types.MustDecimal(config.EmergencySTXUSD),
		EmergencyUSDCUSD:  types.MustDecimal(config.EmergencyUSDCUSD),
	}
}

// Oracle is the cached price source.
type Oracle struct {
	cfg     Config
	client  *upstreamClient
	store   SnapshotStore
	metrics *metrics.OracleMetrics
	group   singleflight.Group

	mu           sync.RWMutex
	current      *types.PriceData
	failures     int // consecutive 429 answers
	backoffUntil time.Time
}

// New creates an Oracle. store may be nil.
func New(cfg Config, store SnapshotStore) *Oracle {
	def := DefaultConfig()
	if cfg.FreshTTL <= 0 {
		cfg.FreshTTL = def.FreshTTL
	}
	if cfg.StaleTTL <= cfg.FreshTTL {
		cfg.StaleTTL = def.StaleTTL
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.EmergencyUSDToNGN.IsZero() {
		cfg.EmergencyUSDToNGN = def.EmergencyUSDToNGN
	}
	if cfg.EmergencySTXUSD.IsZero() {
		cfg.EmergencySTXUSD = def.EmergencySTXUSD
	}
	if cfg.EmergencyUSDCUSD.IsZero() {
		cfg.EmergencyUSDCUSD = def.EmergencyUSDCUSD
	}
	return &Oracle{
		cfg:     cfg,
		client:  newUpstreamClient(cfg.APIURL, cfg.EmergencyUSDToNGN),
		store:   store,
		metrics: metrics.Oracle(),
	}
}

// Current returns the best available prices together with their freshness.
// It never fails: when the upstream source is unreachable it keeps serving
// stale data, and once the cache has expired it serves the emergency
// constants with CacheExpired freshness.
func (o *Oracle) Current(ctx context.Context) (*types.PriceData, types.CacheFreshness) {
	data, freshness := o.cached(time.Now())
	switch {
	case data != nil && freshness == types.CacheFresh:
		// nothing to do

	case data != nil && freshness == types.CacheStale:
		go o.asyncRefresh()

	default:
		// expired or empty: try to refresh within the caller's deadline.
		// Expired data is no longer trusted, so on failure the emergency
		// constants take over.
		if refreshed, err := o.Refresh(ctx); err == nil {
			data, freshness = refreshed, types.CacheFresh
		} else {
			log.Warnw("serving emergency prices", "error", err)
			data, freshness = o.emergency(), types.CacheExpired
		}
	}
	o.metrics.RecordServe(freshness.String())
	return data, freshness
}

// Rate returns the NGN price of one token unit and the freshness of the
// quote.
func (o *Oracle) Rate(ctx context.Context, token types.TokenSymbol) (types.Decimal, types.CacheFreshness, error) {
	data, freshness := o.Current(ctx)
	price, ok := data.Price(token)
	if !ok {
		return types.Decimal{}, freshness, fmt.Errorf("token %s is not priced", token)
	}
	return price.NGN, freshness, nil
}

// Refresh fetches prices from upstream, sharing a single in-flight request
// between concurrent callers. It fails fast while a backoff window is
// active.
func (o *Oracle) Refresh(ctx context.Context) (*types.PriceData, error) {
	v, err, _ := o.group.Do("prices", func() (any, error) {
		return o.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.PriceData), nil
}

// Tick refreshes the cache when it is no longer fresh. Driven by the
// background refresher service.
func (o *Oracle) Tick(ctx context.Context) {
	if data, freshness := o.cached(time.Now()); data != nil && freshness == types.CacheFresh {
		return
	}
	if _, err := o.Refresh(ctx); err != nil {
		log.Debugw("background price refresh failed", "error", err)
	}
}

// History returns stored snapshots for one token over the trailing window.
// hours is clamped to [1, 168].
func (o *Oracle) History(ctx context.Context, token types.TokenSymbol, hours int) ([]types.PriceSnapshot, error) {
	if o.store == nil {
		return nil, fmt.Errorf("price history requires storage")
	}
	if hours < 1 {
		hours = 1
	}
	if hours > 168 {
		hours = 168
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	return o.store.PriceHistory(ctx, token, since)
}

func (o *Oracle) cached(now time.Time) (*types.PriceData, types.CacheFreshness) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return nil, types.CacheExpired
	}
	age := now.Sub(o.current.FetchedAt)
	switch {
	case age <= o.cfg.FreshTTL:
		return o.current, types.CacheFresh
	case age <= o.cfg.StaleTTL:
		return o.current, types.CacheStale
	default:
		return o.current, types.CacheExpired
	}
}

func (o *Oracle) asyncRefresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := o.Refresh(ctx); err != nil {
		log.Debugw("async price refresh failed", "error", err)
	}
}

func (o *Oracle) fetch(ctx context.Context) (*types.PriceData, error) {
	if remaining := o.backoffRemaining(time.Now()); remaining > 0 {
		return nil, fmt.Errorf("price source backoff active, %s remaining", remaining.Round(time.Second))
	}

	data, err := o.client.FetchPrices(ctx)
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			o.metrics.RecordFetch("rate_limited")
			o.armBackoff()
		} else {
			o.metrics.RecordFetch("error")
		}
		return nil, err
	}
	o.metrics.RecordFetch("success")

	o.mu.Lock()
	o.current = data
	o.failures = 0
	o.backoffUntil = time.Time{}
	o.mu.Unlock()
	o.metrics.SetBackoff(0)

	o.persistSnapshots(data)
	return data, nil
}

func (o *Oracle) backoffRemaining(now time.Time) time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.backoffUntil.IsZero() || now.After(o.backoffUntil) {
		return 0
	}
	return o.backoffUntil.Sub(now)
}

func (o *Oracle) armBackoff() {
	o.mu.Lock()
	o.failures++
	delay := o.cfg.BaseBackoff
	for i := 1; i < o.failures && delay < o.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > o.cfg.MaxBackoff {
		delay = o.cfg.MaxBackoff
	}
	o.backoffUntil = time.Now().Add(delay)
	failures := o.failures
	o.mu.Unlock()

	o.metrics.SetBackoff(delay)
	log.Warnw("price source rate limited, backing off",
		"consecutiveFailures", failures, "delay", delay.String())
}

func (o *Oracle) persistSnapshots(data *types.PriceData) {
	if o.store == nil {
		return
	}
	snapshots := make([]types.PriceSnapshot, 0, len(data.Tokens))
	for _, price := range data.Tokens {
		snapshots = append(snapshots, types.PriceSnapshot{
			Token:     price.Token,
			USD:       price.USD,
			NGN:       price.NGN,
			Change24h: price.Change24h,
			Source:    data.Source,
			FetchedAt: data.FetchedAt,
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.InsertPriceSnapshots(ctx, snapshots); err != nil {
		log.Warnw("failed to persist price snapshots", "error", err)
	}
}

// emergency builds a price set from the configured constants.
func (o *Oracle) emergency() *types.PriceData {
	usdToNgn := o.cfg.EmergencyUSDToNGN
	return &types.PriceData{
		Tokens: map[types.TokenSymbol]types.TokenPrice{
			types.TokenSTX: {
				Token: types.TokenSTX,
				USD:   o.cfg.EmergencySTXUSD,
				NGN:   types.NewDecimal(o.cfg.EmergencySTXUSD.Mul(usdToNgn.Decimal)),
			},
			types.TokenUSDC: {
				Token: types.TokenUSDC,
				USD:   o.cfg.EmergencyUSDCUSD,
				NGN:   types.NewDecimal(o.cfg.EmergencyUSDCUSD.Mul(usdToNgn.Decimal)),
			},
		},
		USDToNGN:  usdToNgn,
		FetchedAt: time.Time{},
		Source:    "emergency",
	}
}
