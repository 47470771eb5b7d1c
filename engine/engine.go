/*
Package engine implements the offramp settlement state machine. It owns
every transaction status transition and funnels all of them through the
store's conditional update, so the chain indexer, the per-transaction
watchers and the payout webhook can race freely: whoever wins the update
owns the transition, everyone else observes the advanced document and backs
off. No in-process lock guards settlement state, the store is the lock.

Lifecycle of an offramp:

	pending ──confirm receipt──▶ processing ──payout ok──▶ settling ──webhook──▶ confirmed
	   │                             │                        │
	   └── expiry / abort / timeout  └── payout fail ──▶ failed ◀── webhook fail
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sswap/sswap-node/lenco"
	"github.com/sswap/sswap-node/liquidity"
	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/metrics"
	"github.com/sswap/sswap-node/stacks"
	"github.com/sswap/sswap-node/storage"
	"github.com/sswap/sswap-node/types"
)

// Sentinel errors callers branch on. Storage's ErrNotFound passes through
// untouched.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotConfigured    = errors.New("offramp not configured")
	ErrConflict         = errors.New("conflicting transaction state")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrLiquidityUnknown = errors.New("platform liquidity unknown")
)

// InsufficientLiquidityError rejects an order the platform float cannot
// cover. MaxOrderNGN is the suggested ceiling, valid when HasMax is true.
type InsufficientLiquidityError struct {
	RequiredNGN int64
	MaxOrderNGN int64
	HasMax      bool
}

func (e *InsufficientLiquidityError) Error() string {
	if e.HasMax {
		return fmt.Sprintf("insufficient liquidity for ₦%d order, max is ₦%d", e.RequiredNGN, e.MaxOrderNGN)
	}
	return fmt.Sprintf("insufficient liquidity for ₦%d order", e.RequiredNGN)
}

// Amount mismatch policies, applied when a deposit's delivered amount
// diverges from the ordered amount beyond the tolerance.
const (
	AmountPolicyFlag   = "flag"   // proceed with the payout, flag for review
	AmountPolicyReject = "reject" // fail the record, tokens held for manual settlement
)

// amountTolerance is the relative divergence allowed between ordered and
// delivered token amounts before the policy kicks in (0.1%).
var amountTolerance = types.MustDecimal("0.001")

// Store is the persistence surface the engine drives. *storage.Storage
// implements it.
type Store interface {
	CreateTransaction(ctx context.Context, tx *types.Transaction) error
	Transaction(ctx context.Context, reference string) (*types.Transaction, error)
	ConditionalUpdate(ctx context.Context, reference string, expected types.TxStatus, update storage.TransactionUpdate) (*types.Transaction, error)
	ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]*types.Transaction, error)
	FailExpired(ctx context.Context, now time.Time, reason string) (int64, error)
}

// Payouts is the payout provider surface. *lenco.Client implements it.
type Payouts interface {
	ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*lenco.ResolvedAccount, error)
	InitiateTransfer(ctx context.Context, amountNGN int64, bankCode, accountNumber, narration, reference string) (*lenco.Transfer, error)
	VerifyWebhookSignature(rawBody []byte, signature string) bool
}

// Chain is the read side of the blockchain the watchers poll.
// *stacks.Client implements it.
type Chain interface {
	TxByID(ctx context.Context, txID string) (*stacks.Transaction, error)
}

// Rates quotes the NGN price of a token. *oracle.Oracle implements it.
type Rates interface {
	Rate(ctx context.Context, token types.TokenSymbol) (types.Decimal, types.CacheFreshness, error)
}

// Liquidity gates orders on the platform float. *liquidity.Guard
// implements it.
type Liquidity interface {
	Check(ctx context.Context, requiredNGN int64) liquidity.Result
	MaxOrderNGN(ctx context.Context) (int64, bool)
	BufferNGN() int64
	Invalidate()
}

// Config tunes the engine.
type Config struct {
	DepositAddress string // platform address offramp deposits land on
	USDCContractID string // full SIP-010 contract id, "<principal>.<name>"

	FeeNGN   int64         // flat service fee, default 100
	MinToken types.Decimal // smallest accepted order, default 1
	MaxToken types.Decimal // largest accepted order, default 10000
	Expiry   time.Duration // deposit deadline, default 30m

	AmountPolicy string // flag | reject, default flag

	WatchInterval time.Duration // watcher poll period, default 5s
	WatchAttempts int           // watcher iterations before giving up, default 120
}

func (cfg *Config) withDefaults() Config {
	out := *cfg
	if out.FeeNGN <= 0 {
		out.FeeNGN = 100
	}
	if out.MinToken.IsZero() {
		out.MinToken = types.MustDecimal("1")
	}
	if out.MaxToken.IsZero() {
		out.MaxToken = types.MustDecimal("10000")
	}
	if out.Expiry <= 0 {
		out.Expiry = 30 * time.Minute
	}
	if out.AmountPolicy != AmountPolicyReject {
		out.AmountPolicy = AmountPolicyFlag
	}
	if out.WatchInterval <= 0 {
		out.WatchInterval = 5 * time.Second
	}
	if out.WatchAttempts <= 0 {
		out.WatchAttempts = 120
	}
	return out
}

// Engine coordinates offramp settlement.
type Engine struct {
	cfg      Config
	store    Store
	rates    Rates
	payouts  Payouts
	chain    Chain
	guard    Liquidity
	metrics  *metrics.SettlementMetrics
	watchers *watcherRegistry
}

// New creates a settlement engine.
func New(cfg Config, store Store, rates Rates, payouts Payouts, chain Chain, guard Liquidity) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		store:    store,
		rates:    rates,
		payouts:  payouts,
		chain:    chain,
		guard:    guard,
		metrics:  metrics.Settlement(),
		watchers: newWatcherRegistry(),
	}
}

// DepositAddress returns the configured platform deposit address, empty when
// offramps are disabled.
func (e *Engine) DepositAddress() string {
	return e.cfg.DepositAddress
}

// Guard exposes the liquidity gate for read-only API surfaces.
func (e *Engine) Guard() Liquidity {
	return e.guard
}

// InitOfframpRequest is a new offramp order.
type InitOfframpRequest struct {
	Token         types.TokenSymbol `json:"token"`
	TokenAmount   types.Decimal     `json:"tokenAmount"`
	SenderAddress string            `json:"senderAddress"`
	BankCode      string            `json:"bankCode"`
	AccountNumber string            `json:"accountNumber"`
}

// OfframpInstructions is the answer to a successful initialization: the
// persisted record plus everything the user's wallet needs to fund it.
type OfframpInstructions struct {
	Transaction    *types.Transaction `json:"transaction"`
	DepositAddress string             `json:"depositAddress"`
	TokenAmount    types.Decimal      `json:"tokenAmount"`
	Memo           string             `json:"memo"`
	ExpiresAt      time.Time          `json:"expiresAt"`
}

// InitializeOfframp validates the order, locks a quote, verifies the bank
// account, checks liquidity and persists the pending record.
func (e *Engine) InitializeOfframp(ctx context.Context, req InitOfframpRequest) (*OfframpInstructions, error) {
	if err := e.validateInit(&req); err != nil {
		return nil, err
	}
	if e.cfg.DepositAddress == "" {
		return nil, fmt.Errorf("%w: platform deposit address missing", ErrNotConfigured)
	}

	account, err := e.payouts.ResolveAccount(ctx, req.BankCode, req.AccountNumber)
	if err != nil {
		return nil, err
	}

	quote, err := e.Quote(ctx, req.Token, req.TokenAmount)
	if err != nil {
		return nil, err
	}

	check := e.guard.Check(ctx, quote.NGNAmount)
	switch check.State {
	case liquidity.StateUnknown:
		return nil, ErrLiquidityUnknown
	case liquidity.StateInsufficient:
		lerr := &InsufficientLiquidityError{RequiredNGN: quote.NGNAmount}
		if max, known := e.guard.MaxOrderNGN(ctx); known {
			lerr.MaxOrderNGN, lerr.HasMax = max, true
		}
		return nil, lerr
	}

	now := time.Now().UTC()
	tx := &types.Transaction{
		Reference:        types.NewReference(types.DirectionOfframp),
		Token:            req.Token,
		Direction:        types.DirectionOfframp,
		TokenAmount:      req.TokenAmount,
		NGNAmount:        quote.NGNAmount,
		FeeNGN:           quote.FeeNGN,
		RateAtTime:       quote.RateNGN,
		SenderAddress:    req.SenderAddress,
		RecipientAddress: e.cfg.DepositAddress,
		Status:           types.TxStatusPending,
		BankDetails: &types.BankDetails{
			AccountNumber: req.AccountNumber,
			BankCode:      req.BankCode,
			AccountName:   account.AccountName,
			BankName:      account.BankName,
		},
		ExpiresAt: now.Add(e.cfg.Expiry),
		Meta: types.GenericMeta{
			"balanceAtOrderTime": check.AvailableNGN,
			"rateFreshness":      quote.Freshness.String(),
		},
		CreatedAt: now,
	}
	if err := e.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist offramp: %w", err)
	}
	e.metrics.RecordTransition(string(tx.Direction), string(tx.Status))

	log.Infow("offramp initialized",
		"reference", tx.Reference,
		"token", tx.Token,
		"tokenAmount", tx.TokenAmount.String(),
		"ngnAmount", tx.NGNAmount,
		"sender", tx.SenderAddress)

	return &OfframpInstructions{
		Transaction:    tx,
		DepositAddress: e.cfg.DepositAddress,
		TokenAmount:    tx.TokenAmount,
		Memo:           tx.Reference,
		ExpiresAt:      tx.ExpiresAt,
	}, nil
}

func (e *Engine) validateInit(req *InitOfframpRequest) error {
	if !req.Token.Valid() {
		return fmt.Errorf("%w: unsupported token %q", ErrValidation, req.Token)
	}
	if req.TokenAmount.LessThan(e.cfg.MinToken.Decimal) {
		return fmt.Errorf("%w: amount below minimum of %s %s",
			ErrValidation, e.cfg.MinToken, req.Token)
	}
	if req.TokenAmount.GreaterThan(e.cfg.MaxToken.Decimal) {
		return fmt.Errorf("%w: amount above maximum of %s %s",
			ErrValidation, e.cfg.MaxToken, req.Token)
	}
	if !types.ValidStacksAddress(req.SenderAddress) {
		return fmt.Errorf("%w: malformed Stacks address", ErrValidation)
	}
	if !types.ValidAccountNumber(req.AccountNumber) {
		return fmt.Errorf("%w: account number must be 10 digits", ErrValidation)
	}
	if req.BankCode == "" {
		return fmt.Errorf("%w: bank code is required", ErrValidation)
	}
	return nil
}

// NotifyTxBroadcast records the chain tx id the user's wallet just
// broadcast and spawns a watcher polling it. Idempotent: a record already
// past pending answers "already processing" without side effects.
func (e *Engine) NotifyTxBroadcast(ctx context.Context, reference, chainTxID string) (alreadyProcessing bool, err error) {
	if chainTxID == "" {
		return false, fmt.Errorf("%w: chain tx id is required", ErrValidation)
	}
	record, err := e.store.Transaction(ctx, reference)
	if err != nil {
		return false, err
	}
	if record.Direction != types.DirectionOfframp {
		return false, fmt.Errorf("%w: %s is not an offramp", ErrValidation, reference)
	}
	switch record.Status {
	case types.TxStatusProcessing, types.TxStatusSettling, types.TxStatusConfirmed:
		return true, nil
	case types.TxStatusFailed:
		return false, fmt.Errorf("%w: offramp already failed", ErrConflict)
	}

	// stays pending, only the chain tx id is attached
	_, err = e.store.ConditionalUpdate(ctx, reference, types.TxStatusPending, storage.TransactionUpdate{
		Status:    types.TxStatusPending,
		ChainTxID: chainTxID,
	})
	if err != nil && !errors.Is(err, storage.ErrNoTransition) {
		return false, err
	}
	if errors.Is(err, storage.ErrNoTransition) {
		// raced with a confirm receipt between the read and the update
		return true, nil
	}

	e.WatchBroadcast(reference, chainTxID)
	return false, nil
}

// ConfirmOutcome tells a confirm receipt caller what its call achieved.
type ConfirmOutcome string

const (
	// OutcomePayoutInitiated means this call won the claim and issued the
	// payout.
	OutcomePayoutInitiated ConfirmOutcome = "payout_initiated"
	// OutcomeAlreadyProcessed means another caller claimed the deposit
	// first. Safe to treat as success.
	OutcomeAlreadyProcessed ConfirmOutcome = "already_processed"
)

// ConfirmRequest reports a confirmed on-chain deposit for an offramp.
type ConfirmRequest struct {
	Reference     string            `json:"reference"`
	ChainTxID     string            `json:"chainTxId"`
	Token         types.TokenSymbol `json:"token"`
	TokenAmount   types.Decimal     `json:"tokenAmount"`
	SenderAddress string            `json:"senderAddress"`
}

// ConfirmReceipt is the exactly-once heart of the offramp. Any number of
// callers (indexer cycles, watchers, replays) may report the same deposit;
// the single pending→processing conditional update picks the one that
// proceeds to the payout. Everyone else gets OutcomeAlreadyProcessed.
//
// A payout initiation failure after the claim moves the record to failed
// with requiresManualSettlement set: tokens are at the platform address but
// no NGN left the account. That state is never retried automatically.
func (e *Engine) ConfirmReceipt(ctx context.Context, req ConfirmRequest) (ConfirmOutcome, error) {
	if req.Reference == "" || req.ChainTxID == "" {
		return "", fmt.Errorf("%w: reference and chain tx id are required", ErrValidation)
	}

	record, err := e.store.ConditionalUpdate(ctx, req.Reference, types.TxStatusPending, storage.TransactionUpdate{
		Status:        types.TxStatusProcessing,
		ChainTxID:     req.ChainTxID,
		SenderAddress: req.SenderAddress,
		Meta: map[string]any{
			"tokenReceivedAt": time.Now().UTC(),
		},
	})
	if err != nil {
		if !errors.Is(err, storage.ErrNoTransition) {
			return "", err
		}
		existing, ferr := e.store.Transaction(ctx, req.Reference)
		if ferr != nil {
			return "", ferr // includes storage.ErrNotFound for the init race
		}
		switch existing.Status {
		case types.TxStatusProcessing, types.TxStatusSettling, types.TxStatusConfirmed:
			return OutcomeAlreadyProcessed, nil
		default:
			return "", fmt.Errorf("%w: offramp %s is %s", ErrConflict, req.Reference, existing.Status)
		}
	}
	e.metrics.RecordTransition(string(record.Direction), string(record.Status))

	log.Infow("offramp deposit claimed",
		"reference", record.Reference,
		"chainTxId", req.ChainTxID,
		"tokenAmount", req.TokenAmount.String(),
		"sender", req.SenderAddress)

	settleMeta, err := e.checkDeliveredAmount(ctx, record, req)
	if err != nil {
		return "", err
	}
	return e.initiatePayout(ctx, record, settleMeta)
}

// checkDeliveredAmount applies the configured amount policy. Under the flag
// policy a divergent delivery proceeds to payout with review metadata; under
// reject it fails the record and keeps the tokens for manual settlement.
func (e *Engine) checkDeliveredAmount(ctx context.Context, record *types.Transaction, req ConfirmRequest) (map[string]any, error) {
	if req.TokenAmount.IsZero() {
		return nil, nil // caller could not derive the amount, nothing to compare
	}
	tolerance := record.TokenAmount.Mul(amountTolerance.Decimal)
	diff := req.TokenAmount.Sub(record.TokenAmount.Decimal).Abs()
	mismatch := diff.GreaterThan(tolerance)
	if req.Token != "" && req.Token != record.Token {
		mismatch = true
	}
	if !mismatch {
		return nil, nil
	}

	log.Warnw("offramp amount mismatch",
		"reference", record.Reference,
		"expected", record.TokenAmount.String(),
		"delivered", req.TokenAmount.String(),
		"expectedToken", record.Token,
		"deliveredToken", req.Token,
		"policy", e.cfg.AmountPolicy)

	if e.cfg.AmountPolicy == AmountPolicyReject {
		reason := fmt.Sprintf("delivered %s %s, expected %s %s",
			req.TokenAmount, req.Token, record.TokenAmount, record.Token)
		e.failProcessing(ctx, record.Reference, reason, nil)
		return nil, fmt.Errorf("%w: %s", ErrConflict, reason)
	}
	return map[string]any{
		types.MetaAmountMismatch:  true,
		types.MetaDeliveredAmount: req.TokenAmount.String(),
	}, nil
}

func (e *Engine) initiatePayout(ctx context.Context, record *types.Transaction, settleMeta map[string]any) (ConfirmOutcome, error) {
	bank := record.BankDetails
	if bank == nil {
		e.failProcessing(ctx, record.Reference, "record has no bank details", nil)
		return "", fmt.Errorf("%w: offramp %s has no bank details", ErrConflict, record.Reference)
	}

	narration := "SSwap offramp " + record.Reference
	transfer, err := e.payouts.InitiateTransfer(ctx,
		record.NGNAmount, bank.BankCode, bank.AccountNumber, narration, record.Reference)
	if err != nil {
		e.metrics.RecordPayout("failed")
		// Tokens received, no payout issued. Operational incident: keep
		// every detail an operator needs to settle by hand.
		log.Errorw(err, fmt.Sprintf(
			"PAYOUT FAILED AFTER DEPOSIT reference=%s chainTxId=%s ngnAmount=%d bankCode=%s accountNumber=%s accountName=%s",
			record.Reference, record.ChainTxID, record.NGNAmount,
			bank.BankCode, bank.AccountNumber, bank.AccountName))
		e.failProcessing(ctx, record.Reference, err.Error(), nil)
		return "", err
	}
	e.metrics.RecordPayout("initiated")
	e.guard.Invalidate()

	if _, err := e.store.ConditionalUpdate(ctx, record.Reference, types.TxStatusProcessing, storage.TransactionUpdate{
		Status:             types.TxStatusSettling,
		PayoutProviderTxID: transfer.ID,
		Meta:               settleMeta,
	}); err != nil {
		// The payout is out regardless; only this process can own the
		// processing state, so this indicates a storage problem.
		log.Errorw(err, "failed to mark offramp settling after payout "+record.Reference)
		return OutcomePayoutInitiated, nil
	}
	e.metrics.RecordTransition(string(record.Direction), string(types.TxStatusSettling))

	log.Infow("offramp payout initiated",
		"reference", record.Reference,
		"transferId", transfer.ID,
		"ngnAmount", record.NGNAmount)
	return OutcomePayoutInitiated, nil
}

// failProcessing moves a freshly claimed record to failed with a manual
// settlement flag. Best effort: the caller's error is what propagates.
func (e *Engine) failProcessing(ctx context.Context, reference, reason string, extra map[string]any) {
	meta := map[string]any{
		types.MetaRequiresManualSettlement: true,
		types.MetaFailureReason:            reason,
	}
	for k, v := range extra {
		meta[k] = v
	}
	if _, err := e.store.ConditionalUpdate(ctx, reference, types.TxStatusProcessing, storage.TransactionUpdate{
		Status: types.TxStatusFailed,
		Meta:   meta,
	}); err != nil {
		log.Errorw(err, "failed to mark offramp failed "+reference)
		return
	}
	e.metrics.RecordTransition(string(types.DirectionOfframp), string(types.TxStatusFailed))
}

// HandlePayoutWebhook finalizes an offramp from a provider webhook. The
// signature is verified against the raw body bytes before anything is
// parsed. Repeated deliveries of the same event are idempotent.
func (e *Engine) HandlePayoutWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !e.payouts.VerifyWebhookSignature(rawBody, signature) {
		return ErrInvalidSignature
	}
	event, err := lenco.ParseWebhookEvent(rawBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	switch event.Event {
	case lenco.EventTransferCompleted:
		return e.finalizeConfirmed(ctx, event)
	case lenco.EventTransferFailed, lenco.EventTransferReversed:
		return e.finalizeFailed(ctx, event)
	default:
		log.Debugw("ignoring payout webhook event", "event", event.Event)
		return nil
	}
}

func (e *Engine) finalizeConfirmed(ctx context.Context, event *lenco.WebhookEvent) error {
	now := time.Now().UTC()
	record, err := e.store.ConditionalUpdate(ctx, event.Data.Reference, types.TxStatusSettling, storage.TransactionUpdate{
		Status:      types.TxStatusConfirmed,
		ConfirmedAt: &now,
	})
	if err != nil {
		if !errors.Is(err, storage.ErrNoTransition) {
			return err
		}
		existing, ferr := e.store.Transaction(ctx, event.Data.Reference)
		if ferr != nil {
			return ferr
		}
		if existing.Status == types.TxStatusConfirmed {
			return nil // webhook replay
		}
		return fmt.Errorf("%w: offramp %s is %s, not settling", ErrConflict, existing.Reference, existing.Status)
	}
	e.metrics.RecordTransition(string(record.Direction), string(record.Status))
	e.metrics.RecordPayout("completed")
	log.Infow("offramp confirmed",
		"reference", record.Reference, "ngnAmount", record.NGNAmount)
	return nil
}

func (e *Engine) finalizeFailed(ctx context.Context, event *lenco.WebhookEvent) error {
	reason := event.Data.FailureReason
	if reason == "" {
		reason = event.Event
	}
	record, err := e.store.ConditionalUpdate(ctx, event.Data.Reference, types.TxStatusSettling, storage.TransactionUpdate{
		Status: types.TxStatusFailed,
		Meta: map[string]any{
			types.MetaRequiresManualSettlement: true,
			types.MetaFailureReason:            reason,
			types.MetaPayoutFailureEvent:       event.Event,
		},
	})
	if err != nil {
		if !errors.Is(err, storage.ErrNoTransition) {
			return err
		}
		existing, ferr := e.store.Transaction(ctx, event.Data.Reference)
		if ferr != nil {
			return ferr
		}
		if existing.Status == types.TxStatusFailed {
			return nil // webhook replay
		}
		return fmt.Errorf("%w: offramp %s is %s, not settling", ErrConflict, existing.Reference, existing.Status)
	}
	e.metrics.RecordTransition(string(record.Direction), string(record.Status))
	e.metrics.RecordPayout(strings.TrimPrefix(event.Event, "transfer."))

	// Tokens arrived, the payout bounced. A human has to send the tokens
	// back to the sender address.
	log.Monitor("MANUAL REFUND REQUIRED", map[string]any{
		"reference":     record.Reference,
		"chainTxId":     record.ChainTxID,
		"tokenAmount":   record.TokenAmount.String(),
		"token":         record.Token,
		"senderAddress": record.SenderAddress,
		"ngnAmount":     record.NGNAmount,
		"event":         event.Event,
		"reason":        reason,
	})
	return nil
}

// Status returns one swap record by reference.
func (e *Engine) Status(ctx context.Context, reference string) (*types.Transaction, error) {
	return e.store.Transaction(ctx, reference)
}

// History lists swap records for an address, newest first.
func (e *Engine) History(ctx context.Context, filter storage.TransactionFilter) ([]*types.Transaction, error) {
	return e.store.ListTransactions(ctx, filter)
}
