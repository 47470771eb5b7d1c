package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/stacks"
	"github.com/sswap/sswap-node/storage"
	"github.com/sswap/sswap-node/types"
)

// watchEntry tracks one live per-transaction watcher, for logs and the
// active-watcher gauge only; no settlement decision ever reads it.
type watchEntry struct {
	id        uuid.UUID
	reference string
	chainTxID string
	started   time.Time
}

type watcherRegistry struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*watchEntry
}

func newWatcherRegistry() *watcherRegistry {
	return &watcherRegistry{entries: make(map[uuid.UUID]*watchEntry)}
}

func (r *watcherRegistry) add(entry *watchEntry) {
	r.mu.Lock()
	r.entries[entry.id] = entry
	r.mu.Unlock()
}

func (r *watcherRegistry) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

func (r *watcherRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ActiveWatchers returns the number of live per-transaction watchers.
func (e *Engine) ActiveWatchers() int {
	return e.watchers.count()
}

// WatchBroadcast spawns a background watcher polling the chain for the
// given tx id and driving settlement when it confirms. Fire and forget: the
// watcher ends on success, a terminal chain status, or after exhausting its
// attempts. If the process dies mid-watch the indexer picks the deposit up,
// the two paths are deliberately redundant.
func (e *Engine) WatchBroadcast(reference, chainTxID string) {
	entry := &watchEntry{
		id:        uuid.New(),
		reference: reference,
		chainTxID: chainTxID,
		started:   time.Now(),
	}
	e.watchers.add(entry)
	e.metrics.WatcherStarted()
	log.Infow("watcher started",
		"watcher", entry.id.String(), "reference", reference, "chainTxId", chainTxID)

	go e.watch(entry)
}

func (e *Engine) watch(entry *watchEntry) {
	defer func() {
		e.watchers.remove(entry.id)
		e.metrics.WatcherStopped()
	}()

	ticker := time.NewTicker(e.cfg.WatchInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= e.cfg.WatchAttempts; attempt++ {
		<-ticker.C
		done := e.watchOnce(entry, attempt)
		if done {
			return
		}
	}

	// Out of attempts. Only a still-pending record is failed; anything that
	// advanced meanwhile belongs to whoever advanced it.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := e.store.ConditionalUpdate(ctx, entry.reference, types.TxStatusPending, storage.TransactionUpdate{
		Status: types.TxStatusFailed,
		Meta:   map[string]any{types.MetaFailureReason: "poll timeout"},
	})
	switch {
	case err == nil:
		e.metrics.RecordTransition(string(types.DirectionOfframp), string(types.TxStatusFailed))
		log.Warnw("watcher timed out, offramp failed",
			"reference", entry.reference, "chainTxId", entry.chainTxID)
	case errors.Is(err, storage.ErrNoTransition):
		log.Debugw("watcher timed out on already settled offramp", "reference", entry.reference)
	default:
		log.Errorw(err, "watcher timeout transition failed for "+entry.reference)
	}
}

// watchOnce runs a single poll iteration. Returns true when the watcher is
// finished.
func (e *Engine) watchOnce(entry *watchEntry, attempt int) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	tx, err := e.chain.TxByID(ctx, entry.chainTxID)
	if err != nil {
		if !errors.Is(err, stacks.ErrTxNotFound) {
			log.Debugw("watcher chain read failed",
				"reference", entry.reference, "attempt", attempt, "error", err)
		}
		return false
	}

	switch {
	case tx.Succeeded():
		e.confirmFromChain(ctx, entry, tx)
		return true

	case tx.Aborted():
		reason := "chain tx aborted: " + tx.TxStatus
		_, err := e.store.ConditionalUpdate(ctx, entry.reference, types.TxStatusPending, storage.TransactionUpdate{
			Status: types.TxStatusFailed,
			Meta:   map[string]any{types.MetaFailureReason: reason},
		})
		if err != nil && !errors.Is(err, storage.ErrNoTransition) {
			log.Errorw(err, "watcher abort transition failed for "+entry.reference)
		}
		if err == nil {
			e.metrics.RecordTransition(string(types.DirectionOfframp), string(types.TxStatusFailed))
		}
		log.Warnw("offramp chain tx aborted",
			"reference", entry.reference, "chainTxId", entry.chainTxID, "status", tx.TxStatus)
		return true

	case tx.Dropped():
		// may be rebroadcast under the same id, keep polling
		log.Debugw("offramp chain tx dropped, still polling",
			"reference", entry.reference, "status", tx.TxStatus)
		return false

	default:
		return false
	}
}

// confirmFromChain claims a confirmed deposit for settlement, unless the
// indexer already did.
func (e *Engine) confirmFromChain(ctx context.Context, entry *watchEntry, tx *stacks.Transaction) {
	record, err := e.store.Transaction(ctx, entry.reference)
	if err != nil {
		log.Errorw(err, "watcher could not load offramp "+entry.reference)
		return
	}
	if record.Status != types.TxStatusPending {
		log.Debugw("watcher lost the race, deposit already claimed",
			"reference", entry.reference, "status", record.Status)
		return
	}

	req := ConfirmRequest{
		Reference:     entry.reference,
		ChainTxID:     entry.chainTxID,
		Token:         record.Token,
		TokenAmount:   record.TokenAmount,
		SenderAddress: record.SenderAddress,
	}
	// Prefer the amounts actually observed on chain over the ordered ones.
	if dep, ok := stacks.ExtractDeposit(tx, e.cfg.DepositAddress, e.cfg.USDCContractID); ok {
		req.Token = dep.Token
		req.TokenAmount = dep.Amount
		req.SenderAddress = dep.SenderAddress
	}

	outcome, err := e.ConfirmReceipt(ctx, req)
	if err != nil {
		log.Errorw(err, fmt.Sprintf("watcher confirm receipt failed reference=%s chainTxId=%s",
			entry.reference, entry.chainTxID))
		return
	}
	log.Infow("watcher confirmed deposit",
		"reference", entry.reference, "outcome", string(outcome))
}
