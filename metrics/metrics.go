// Package metrics exposes the Prometheus collectors of sswap-node. Each
// subsystem gets a lazily initialised registry so importing a package never
// registers collectors the binary does not use.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	oracleOnce     sync.Once
	oracleRegistry *OracleMetrics

	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics

	indexerOnce     sync.Once
	indexerRegistry *IndexerMetrics
)

// OracleMetrics tracks the price cache and its upstream source.
type OracleMetrics struct {
	fetches *prometheus.CounterVec
	serves  *prometheus.CounterVec
	backoff prometheus.Gauge
}

// Oracle returns the lazily initialised oracle metrics registry.
func Oracle() *OracleMetrics {
	oracleOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sswap",
				Subsystem: "oracle",
				Name:      "fetches_total",
				Help:      "Upstream price fetch attempts segmented by outcome.",
			}, []string{"outcome"}),
			serves: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sswap",
				Subsystem: "oracle",
				Name:      "serves_total",
				Help:      "Price reads served from the cache segmented by freshness.",
			}, []string{"freshness"}),
			backoff: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sswap",
				Subsystem: "oracle",
				Name:      "backoff_seconds",
				Help:      "Seconds remaining until the upstream source is retried, 0 when not backing off.",
			}),
		}
		prometheus.MustRegister(
			oracleRegistry.fetches,
			oracleRegistry.serves,
			oracleRegistry.backoff,
		)
	})
	return oracleRegistry
}

// RecordFetch counts one upstream fetch attempt. Outcome should be a stable
// string such as "success", "rate_limited" or "error".
func (m *OracleMetrics) RecordFetch(outcome string) {
	if m == nil {
		return
	}
	if outcome = strings.TrimSpace(outcome); outcome == "" {
		outcome = "unknown"
	}
	m.fetches.WithLabelValues(outcome).Inc()
}

// RecordServe counts one cache read at the given freshness.
func (m *OracleMetrics) RecordServe(freshness string) {
	if m == nil {
		return
	}
	m.serves.WithLabelValues(freshness).Inc()
}

// SetBackoff publishes the remaining backoff window.
func (m *OracleMetrics) SetBackoff(remaining time.Duration) {
	if m == nil {
		return
	}
	if remaining < 0 {
		remaining = 0
	}
	m.backoff.Set(remaining.Seconds())
}

// SettlementMetrics tracks the settlement engine and its watchers.
type SettlementMetrics struct {
	transitions *prometheus.CounterVec
	payouts     *prometheus.CounterVec
	watchers    prometheus.Gauge
}

// Settlement returns the lazily initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sswap",
				Subsystem: "settlement",
				Name:      "transitions_total",
				Help:      "Status transitions applied through the store, segmented by direction and target status.",
			}, []string{"direction", "to"}),
			payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sswap",
				Subsystem: "settlement",
				Name:      "payouts_total",
				Help:      "Payout initiations segmented by outcome.",
			}, []string{"outcome"}),
			watchers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "sswap",
				Subsystem: "settlement",
				Name:      "watchers_active",
				Help:      "Per-transaction chain watchers currently polling.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.transitions,
			settlementRegistry.payouts,
			settlementRegistry.watchers,
		)
	})
	return settlementRegistry
}

// RecordTransition counts one applied status transition.
func (m *SettlementMetrics) RecordTransition(direction, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(direction, to).Inc()
}

// RecordPayout counts one payout initiation attempt.
func (m *SettlementMetrics) RecordPayout(outcome string) {
	if m == nil {
		return
	}
	if outcome = strings.TrimSpace(outcome); outcome == "" {
		outcome = "unknown"
	}
	m.payouts.WithLabelValues(outcome).Inc()
}

// WatcherStarted and WatcherStopped track the active watcher gauge.
func (m *SettlementMetrics) WatcherStarted() {
	if m == nil {
		return
	}
	m.watchers.Inc()
}

func (m *SettlementMetrics) WatcherStopped() {
	if m == nil {
		return
	}
	m.watchers.Dec()
}

// IndexerMetrics tracks the deposit scanner.
type IndexerMetrics struct {
	scans    *prometheus.CounterVec
	deposits *prometheus.CounterVec
}

// Indexer returns the lazily initialised indexer metrics registry.
func Indexer() *IndexerMetrics {
	indexerOnce.Do(func() {
		indexerRegistry = &IndexerMetrics{
			scans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sswap",
				Subsystem: "indexer",
				Name:      "scans_total",
				Help:      "Chain scan cycles segmented by outcome.",
			}, []string{"outcome"}),
			deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sswap",
				Subsystem: "indexer",
				Name:      "deposits_total",
				Help:      "Deposits observed on chain segmented by how they were resolved.",
			}, []string{"resolution"}),
		}
		prometheus.MustRegister(
			indexerRegistry.scans,
			indexerRegistry.deposits,
		)
	})
	return indexerRegistry
}

// RecordScan counts one poll cycle.
func (m *IndexerMetrics) RecordScan(outcome string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
}

// RecordDeposit counts one observed deposit and its resolution, for example
// "confirmed", "already_processed", "unknown_reference" or "error".
func (m *IndexerMetrics) RecordDeposit(resolution string) {
	if m == nil {
		return
	}
	m.deposits.WithLabelValues(resolution).Inc()
}
