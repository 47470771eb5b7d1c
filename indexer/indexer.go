/*
Package indexer scans the Stacks chain for offramp deposits landing on the
platform address and reports them to the settlement engine. It is the safety
net under the per-transaction watchers: a deposit whose watcher died with the
process, or whose sender never called notify-tx, is still picked up here
within one poll cycle.

The indexer keeps no settlement state of its own. Every observed deposit is
pushed through the engine's confirm receipt, which is idempotent, so scanning
the same transaction twice (or racing a watcher on it) is harmless. The seen
set is purely an optimization to avoid re-reporting on every cycle.
*/
package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sswap/sswap-node/engine"
	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/metrics"
	"github.com/sswap/sswap-node/stacks"
	"github.com/sswap/sswap-node/storage"
	"github.com/sswap/sswap-node/types"
)

const (
	defaultPollInterval = 20 * time.Second
	defaultPageSize     = 50

	// seenCapacity bounds the in-memory seen set. At mainnet block cadence
	// this covers days of platform traffic; an evicted entry only costs one
	// redundant idempotent confirm call.
	seenCapacity = 4096
)

// Source is the chain read surface the indexer polls. *stacks.Client
// implements it.
type Source interface {
	AddressTransactions(ctx context.Context, principal string, limit, offset int) ([]*stacks.Transaction, error)
}

// Confirmer receives observed deposits. *engine.Engine implements it.
type Confirmer interface {
	ConfirmReceipt(ctx context.Context, req engine.ConfirmRequest) (engine.ConfirmOutcome, error)
}

// Config tunes the indexer.
type Config struct {
	PlatformAddress string        // deposit address to scan
	USDCContractID  string        // SIP-010 contract id, scanned as a second principal
	PollInterval    time.Duration // default 20s
	PageSize        int           // transactions fetched per principal per cycle, default 50
}

// Indexer polls the chain and feeds deposits into settlement.
type Indexer struct {
	cfg     Config
	source  Source
	confirm Confirmer
	seen    *lru.Cache[string, struct{}]
	metrics *metrics.IndexerMetrics

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an indexer. Returns an error only when the LRU cache cannot be
// constructed, which would mean a broken capacity constant.
func New(cfg Config, source Source, confirm Confirmer) (*Indexer, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 50 {
		cfg.PageSize = defaultPageSize
	}
	seen, err := lru.New[string, struct{}](seenCapacity)
	if err != nil {
		return nil, err
	}
	return &Indexer{
		cfg:     cfg,
		source:  source,
		confirm: confirm,
		seen:    seen,
		metrics: metrics.Indexer(),
	}, nil
}

// Start launches the scan loop: one immediate scan, then one per poll
// interval. Returns an error if already running.
func (idx *Indexer) Start(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.cancel != nil {
		return errors.New("service already running")
	}
	if idx.cfg.PlatformAddress == "" {
		return errors.New("indexer requires a platform address")
	}
	ctx, idx.cancel = context.WithCancel(ctx)

	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.Scan(ctx)
		ticker := time.NewTicker(idx.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				idx.Scan(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Infow("chain indexer started",
		"address", idx.cfg.PlatformAddress,
		"usdcContract", idx.cfg.USDCContractID,
		"interval", idx.cfg.PollInterval.String())
	return nil
}

// Stop halts the scan loop and waits for an in-flight scan to finish.
func (idx *Indexer) Stop() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.cancel == nil {
		return
	}
	idx.cancel()
	idx.cancel = nil
	idx.wg.Wait()
}

// Scan runs one poll cycle: fetch recent transactions for every watched
// principal, then report each unseen deposit. Exported so tests and manual
// reconciliation can drive single cycles without the loop.
func (idx *Indexer) Scan(ctx context.Context) {
	txs, err := idx.fetch(ctx)
	if err != nil {
		idx.metrics.RecordScan("error")
		log.Warnw("chain scan failed", "error", err)
		return
	}
	idx.metrics.RecordScan("ok")

	for _, tx := range txs {
		if idx.seen.Contains(tx.TxID) {
			continue
		}
		idx.process(ctx, tx)
	}
}

// fetch pulls the latest transactions of the platform address and, when
// configured, the USDC contract principal, concurrently. Results are
// de-duplicated by tx id since a SIP-010 deposit appears under both.
func (idx *Indexer) fetch(ctx context.Context) ([]*stacks.Transaction, error) {
	principals := []string{idx.cfg.PlatformAddress}
	if idx.cfg.USDCContractID != "" {
		principals = append(principals, idx.cfg.USDCContractID)
	}

	pages := make([][]*stacks.Transaction, len(principals))
	g, gctx := errgroup.WithContext(ctx)
	for i, principal := range principals {
		i, principal := i, principal
		g.Go(func() error {
			page, err := idx.source.AddressTransactions(gctx, principal, idx.cfg.PageSize, 0)
			if err != nil {
				return err
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]struct{})
	var out []*stacks.Transaction
	for _, page := range pages {
		for _, tx := range page {
			if _, dup := byID[tx.TxID]; dup {
				continue
			}
			byID[tx.TxID] = struct{}{}
			out = append(out, tx)
		}
	}
	return out, nil
}

// process classifies one unseen transaction. Marking a tx seen means "this
// cycle's decision is final"; anything that may resolve differently next
// cycle (transient errors, a deposit racing its own initialization) is left
// unseen and retried.
func (idx *Indexer) process(ctx context.Context, tx *stacks.Transaction) {
	dep, ok := stacks.ExtractDeposit(tx, idx.cfg.PlatformAddress, idx.cfg.USDCContractID)
	if !ok {
		// not a deposit: outbound, unrelated contract call, or failed on
		// chain. Anchored transactions never change shape, so decide once.
		idx.seen.Add(tx.TxID, struct{}{})
		return
	}
	if !strings.HasPrefix(dep.Memo, types.OfframpReferencePrefix) || !types.ValidReference(dep.Memo) {
		idx.metrics.RecordDeposit("unattributed")
		log.Warnw("deposit without an offramp reference memo",
			"chainTxId", dep.ChainTxID,
			"token", dep.Token,
			"amount", dep.Amount.String(),
			"memo", dep.Memo,
			"sender", dep.SenderAddress)
		idx.seen.Add(tx.TxID, struct{}{})
		return
	}

	outcome, err := idx.confirm.ConfirmReceipt(ctx, engine.ConfirmRequest{
		Reference:     dep.Memo,
		ChainTxID:     dep.ChainTxID,
		Token:         dep.Token,
		TokenAmount:   dep.Amount,
		SenderAddress: dep.SenderAddress,
	})
	switch {
	case err == nil:
		idx.metrics.RecordDeposit(string(outcome))
		idx.seen.Add(tx.TxID, struct{}{})
		log.Infow("indexer reported deposit",
			"reference", dep.Memo, "chainTxId", dep.ChainTxID, "outcome", string(outcome))

	case errors.Is(err, storage.ErrNotFound):
		// The deposit confirmed before its offramp record was readable,
		// or the memo references a record created on another environment.
		// Retry next cycle; if it never materializes it stays in the logs.
		idx.metrics.RecordDeposit("unknown_reference")
		log.Warnw("deposit references unknown offramp, will retry",
			"reference", dep.Memo, "chainTxId", dep.ChainTxID)

	case errors.Is(err, engine.ErrConflict):
		// terminal record (expired, failed, rejected amount); retrying
		// cannot change the answer
		idx.metrics.RecordDeposit("conflict")
		idx.seen.Add(tx.TxID, struct{}{})
		log.Warnw("deposit for offramp in terminal state",
			"reference", dep.Memo, "chainTxId", dep.ChainTxID, "error", err)

	default:
		idx.metrics.RecordDeposit("error")
		log.Errorw(err, "indexer confirm receipt failed for "+dep.Memo)
	}
}
