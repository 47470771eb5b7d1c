/*
Package onramp implements the fiat→token path: the user pays NGN through the
Monnify checkout and the platform wallet sends tokens to their Stacks
address. It mirrors the offramp settlement engine's rules, every status
transition goes through the store's conditional update, so replayed payment
webhooks can never double-send tokens.

Lifecycle of an onramp:

	pending ──payment webhook──▶ processing ──tokens sent──▶ settling ──chain poll──▶ confirmed
	   │                            │                           │
	   └────── expiry ──▶ failed ◀──┴── send failed     aborted ┘
*/
package onramp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sswap/sswap-node/engine"
	"github.com/sswap/sswap-node/log"
	"github.com/sswap/sswap-node/metrics"
	"github.com/sswap/sswap-node/stacks"
	"github.com/sswap/sswap-node/storage"
	"github.com/sswap/sswap-node/types"
)

// Sentinel errors shared with the offramp engine so API error mapping stays
// uniform across both directions.
var (
	ErrValidation       = engine.ErrValidation
	ErrNotConfigured    = engine.ErrNotConfigured
	ErrConflict         = engine.ErrConflict
	ErrInvalidSignature = engine.ErrInvalidSignature
)

// Store is the persistence surface the onramp drives. *storage.Storage
// implements it.
type Store interface {
	CreateTransaction(ctx context.Context, tx *types.Transaction) error
	Transaction(ctx context.Context, reference string) (*types.Transaction, error)
	ConditionalUpdate(ctx context.Context, reference string, expected types.TxStatus, update storage.TransactionUpdate) (*types.Transaction, error)
	ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]*types.Transaction, error)
}

// Payments collects the NGN leg. *MonnifyClient implements it.
type Payments interface {
	InitializePayment(ctx context.Context, amountNGN int64, reference, customerName, customerEmail string) (*Checkout, error)
	VerifyWebhookSignature(rawBody []byte, signature string) bool
}

// Chain is the read side used to confirm the outbound send. *stacks.Client
// implements it.
type Chain interface {
	TxByID(ctx context.Context, txID string) (*stacks.Transaction, error)
}

// Config tunes the onramp engine.
type Config struct {
	USDCContractID string // full SIP-010 contract id for USDC sends

	FeeNGN   int64         // flat service fee added on top, default 100
	MinToken types.Decimal // smallest accepted order, default 1
	MaxToken types.Decimal // largest accepted order, default 10000
	Expiry   time.Duration // payment deadline, default 30m

	ConfirmInterval time.Duration // outbound send poll period, default 5s
	ConfirmAttempts int           // poll iterations before giving up, default 60
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
	if out.ConfirmInterval <= 0 {
		out.ConfirmInterval = 5 * time.Second
	}
	if out.ConfirmAttempts <= 0 {
		out.ConfirmAttempts = 60
	}
	return out
}

// Engine coordinates onramp settlement.
type Engine struct {
	cfg      Config
	store    Store
	rates    engine.Rates
	payments Payments
	wallet   stacks.Wallet
	chain    Chain
	metrics  *metrics.SettlementMetrics
}

// New creates an onramp engine. wallet may be nil, which disables token
// sends (and thereby the whole onramp path) at the validation layer.
func New(cfg Config, store Store, rates engine.Rates, payments Payments, wallet stacks.Wallet, chain Chain) *Engine {
	return &Engine{
		cfg:      cfg.withDefaults(),
		store:    store,
		rates:    rates,
		payments: payments,
		wallet:   wallet,
		chain:    chain,
		metrics:  metrics.Settlement(),
	}
}

// OnrampQuote prices one onramp order. NGNAmount is what the user pays: the
// gross NGN value rounded up to a whole naira plus the flat fee.
type OnrampQuote struct {
	Token       types.TokenSymbol `json:"token"`
	TokenAmount types.Decimal     `json:"tokenAmount"`
	RateNGN     types.Decimal     `json:"rateNgn"`
	GrossNGN    types.Decimal     `json:"grossNgn"`
	FeeNGN      int64             `json:"feeNgn"`
	NGNAmount   int64             `json:"ngnAmount"`
	FromCache   bool              `json:"fromCache"`
}

// Quote computes the NGN payable for tokenAmount at the current rate.
// Rounding goes against the buyer on this side: gross is ceiled, the fee
// added on top.
func (e *Engine) Quote(ctx context.Context, token types.TokenSymbol, tokenAmount types.Decimal) (*OnrampQuote, error) {
	if !token.Valid() {
		return nil, fmt.Errorf("%w: unsupported token %q", ErrValidation, token)
	}
	if !tokenAmount.IsPositive() {
		return nil, fmt.Errorf("%w: token amount must be positive", ErrValidation)
	}
	rate, freshness, err := e.rates.Rate(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	gross := tokenAmount.Mul(rate.Decimal)
	ngn := gross.Ceil().IntPart() + e.cfg.FeeNGN
	return &OnrampQuote{
		Token:       token,
		TokenAmount: tokenAmount,
		RateNGN:     rate,
		GrossNGN:    types.NewDecimal(gross),
		FeeNGN:      e.cfg.FeeNGN,
		NGNAmount:   ngn,
		FromCache:   freshness != types.CacheFresh,
	}, nil
}

// InitOnrampRequest is a new onramp order.
type InitOnrampRequest struct {
	Token            types.TokenSymbol `json:"token"`
	TokenAmount      types.Decimal     `json:"tokenAmount"`
	RecipientAddress string            `json:"recipientAddress"`
	CustomerName     string            `json:"customerName"`
	CustomerEmail    string            `json:"customerEmail"`
}

// OnrampInstructions is the answer to a successful initialization: the
// persisted record plus the hosted checkout the user pays on.
type OnrampInstructions struct {
	Transaction *types.Transaction `json:"transaction"`
	CheckoutURL string             `json:"checkoutUrl"`
	NGNAmount   int64              `json:"ngnAmount"`
	ExpiresAt   time.Time          `json:"expiresAt"`
}

// Initialize validates the order, locks a quote, persists the pending record
// and opens a provider checkout for it. A checkout failure fails the record
// immediately, nothing was paid yet.
func (e *Engine) Initialize(ctx context.Context, req InitOnrampRequest) (*OnrampInstructions, error) {
	if err := e.validateInit(&req); err != nil {
		return nil, err
	}
	if e.wallet == nil {
		return nil, fmt.Errorf("%w: platform wallet missing", ErrNotConfigured)
	}

	quote, err := e.Quote(ctx, req.Token, req.TokenAmount)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx := &types.Transaction{
		Reference:        types.NewReference(types.DirectionOnramp),
		Token:            req.Token,
		Direction:        types.DirectionOnramp,
		TokenAmount:      req.TokenAmount,
		NGNAmount:        quote.NGNAmount,
		FeeNGN:           quote.FeeNGN,
		RateAtTime:       quote.RateNGN,
		RecipientAddress: req.RecipientAddress,
		Status:           types.TxStatusPending,
		ExpiresAt:        now.Add(e.cfg.Expiry),
		CreatedAt:        now,
	}
	if err := e.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist onramp: %w", err)
	}
	e.metrics.RecordTransition(string(tx.Direction), string(tx.Status))

	checkout, err := e.payments.InitializePayment(ctx,
		tx.NGNAmount, tx.Reference, req.CustomerName, req.CustomerEmail)
	if err != nil {
		e.fail(ctx, tx.Reference, types.TxStatusPending, err.Error(), false)
		return nil, err
	}
	if _, uerr := e.store.ConditionalUpdate(ctx, tx.Reference, types.TxStatusPending, storage.TransactionUpdate{
		Status:             types.TxStatusPending,
		PayoutProviderTxID: checkout.TransactionReference,
		Meta:               map[string]any{"checkoutUrl": checkout.CheckoutURL},
	}); uerr != nil {
		log.Warnw("could not attach checkout to onramp", "reference", tx.Reference, "error", uerr)
	}

	log.Infow("onramp initialized",
		"reference", tx.Reference,
		"token", tx.Token,
		"tokenAmount", tx.TokenAmount.String(),
		"ngnAmount", tx.NGNAmount,
		"recipient", tx.RecipientAddress)

	return &OnrampInstructions{
		Transaction: tx,
		CheckoutURL: checkout.CheckoutURL,
		NGNAmount:   tx.NGNAmount,
		ExpiresAt:   tx.ExpiresAt,
	}, nil
}

func (e *Engine) validateInit(req *InitOnrampRequest) error {
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
	if !types.ValidStacksAddress(req.RecipientAddress) {
		return fmt.Errorf("%w: malformed Stacks address", ErrValidation)
	}
	if req.CustomerEmail == "" {
		return fmt.Errorf("%w: customer email is required", ErrValidation)
	}
	return nil
}

// HandlePaymentWebhook settles an onramp from a provider payment webhook.
// The signature is verified against the raw body bytes before anything is
// parsed. The single pending→processing conditional update makes replayed
// deliveries idempotent: only the winning delivery sends tokens.
func (e *Engine) HandlePaymentWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !e.payments.VerifyWebhookSignature(rawBody, signature) {
		return ErrInvalidSignature
	}
	event, err := ParsePaymentEvent(rawBody)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if !event.Paid() {
		log.Debugw("ignoring payment webhook event",
			"event", event.EventType, "paymentStatus", event.Data.PaymentStatus)
		return nil
	}

	reference := event.Data.PaymentReference
	record, err := e.store.ConditionalUpdate(ctx, reference, types.TxStatusPending, storage.TransactionUpdate{
		Status: types.TxStatusProcessing,
		Meta: map[string]any{
			"paymentReceivedAt": time.Now().UTC(),
			"amountPaid":        event.Data.AmountPaidNGN(),
		},
	})
	if err != nil {
		if !errors.Is(err, storage.ErrNoTransition) {
			return err
		}
		existing, ferr := e.store.Transaction(ctx, reference)
		if ferr != nil {
			return ferr
		}
		switch existing.Status {
		case types.TxStatusProcessing, types.TxStatusSettling, types.TxStatusConfirmed:
			return nil // webhook replay
		default:
			return fmt.Errorf("%w: onramp %s is %s", ErrConflict, reference, existing.Status)
		}
	}
	e.metrics.RecordTransition(string(record.Direction), string(record.Status))

	if paid := event.Data.AmountPaidNGN(); paid < record.NGNAmount {
		// Partial payment. Tokens are not sent; the payment has to be
		// reconciled by hand.
		reason := fmt.Sprintf("paid ₦%d of ₦%d", paid, record.NGNAmount)
		e.fail(ctx, reference, types.TxStatusProcessing, reason, true)
		return fmt.Errorf("%w: %s", ErrConflict, reason)
	}

	return e.sendTokens(ctx, record)
}

// sendTokens broadcasts the outbound transfer and moves the record to
// settling, then leaves a background poll to confirm it.
func (e *Engine) sendTokens(ctx context.Context, record *types.Transaction) error {
	var (
		chainTxID string
		err       error
	)
	switch record.Token {
	case types.TokenSTX:
		chainTxID, err = e.wallet.SendNative(ctx,
			record.RecipientAddress, record.TokenAmount, record.Reference)
	case types.TokenUSDC:
		chainTxID, err = e.wallet.SendSIP010(ctx, e.cfg.USDCContractID,
			record.RecipientAddress, record.TokenAmount, record.Reference)
	default:
		err = fmt.Errorf("unsupported token %q", record.Token)
	}
	if err != nil {
		// NGN collected, no tokens out. Operational incident, mirror of the
		// offramp's failed payout.
		log.Errorw(err, fmt.Sprintf(
			"TOKEN SEND FAILED AFTER PAYMENT reference=%s token=%s tokenAmount=%s recipient=%s ngnAmount=%d",
			record.Reference, record.Token, record.TokenAmount.String(),
			record.RecipientAddress, record.NGNAmount))
		e.fail(ctx, record.Reference, types.TxStatusProcessing, err.Error(), true)
		return fmt.Errorf("send tokens: %w", err)
	}

	if _, uerr := e.store.ConditionalUpdate(ctx, record.Reference, types.TxStatusProcessing, storage.TransactionUpdate{
		Status:    types.TxStatusSettling,
		ChainTxID: chainTxID,
	}); uerr != nil {
		// the send is out regardless, only this process owns processing
		log.Errorw(uerr, "failed to mark onramp settling after send "+record.Reference)
	} else {
		e.metrics.RecordTransition(string(record.Direction), string(types.TxStatusSettling))
	}
	log.Infow("onramp tokens sent",
		"reference", record.Reference, "chainTxId", chainTxID,
		"token", record.Token, "tokenAmount", record.TokenAmount.String())

	go e.confirmSend(record.Reference, chainTxID)
	return nil
}

// confirmSend polls the chain until the outbound transfer is anchored, then
// finalizes the record. Exhausting the attempts leaves the record settling
// for manual review; the tokens may well still confirm later.
func (e *Engine) confirmSend(reference, chainTxID string) {
	ticker := time.NewTicker(e.cfg.ConfirmInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= e.cfg.ConfirmAttempts; attempt++ {
		<-ticker.C
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		tx, err := e.chain.TxByID(ctx, chainTxID)
		switch {
		case err != nil:
			if !errors.Is(err, stacks.ErrTxNotFound) {
				log.Debugw("onramp send poll failed",
					"reference", reference, "attempt", attempt, "error", err)
			}
		case tx.Succeeded():
			now := time.Now().UTC()
			if _, uerr := e.store.ConditionalUpdate(ctx, reference, types.TxStatusSettling, storage.TransactionUpdate{
				Status:      types.TxStatusConfirmed,
				ConfirmedAt: &now,
			}); uerr != nil && !errors.Is(uerr, storage.ErrNoTransition) {
				log.Errorw(uerr, "failed to confirm onramp "+reference)
			} else if uerr == nil {
				e.metrics.RecordTransition(string(types.DirectionOnramp), string(types.TxStatusConfirmed))
				log.Infow("onramp confirmed", "reference", reference, "chainTxId", chainTxID)
			}
			cancel()
			return
		case tx.Aborted():
			e.fail(ctx, reference, types.TxStatusSettling, "token send aborted: "+tx.TxStatus, true)
			log.Monitor("ONRAMP SEND ABORTED", map[string]any{
				"reference": reference,
				"chainTxId": chainTxID,
				"status":    tx.TxStatus,
			})
			cancel()
			return
		}
		cancel()
	}
	log.Warnw("onramp send confirmation timed out, left settling",
		"reference", reference, "chainTxId", chainTxID)
}

// fail moves a record to failed with a reason, optionally flagging it for
// manual settlement. Best effort.
func (e *Engine) fail(ctx context.Context, reference string, from types.TxStatus, reason string, manual bool) {
	meta := map[string]any{types.MetaFailureReason: reason}
	if manual {
		meta[types.MetaRequiresManualSettlement] = true
	}
	if _, err := e.store.ConditionalUpdate(ctx, reference, from, storage.TransactionUpdate{
		Status: types.TxStatusFailed,
		Meta:   meta,
	}); err != nil {
		log.Errorw(err, "failed to mark onramp failed "+reference)
		return
	}
	e.metrics.RecordTransition(string(types.DirectionOnramp), string(types.TxStatusFailed))
}

// Status returns one swap record by reference.
func (e *Engine) Status(ctx context.Context, reference string) (*types.Transaction, error) {
	return e.store.Transaction(ctx, reference)
}

// History lists swap records for an address, newest first.
func (e *Engine) History(ctx context.Context, filter storage.TransactionFilter) ([]*types.Transaction, error) {
	return e.store.ListTransactions(ctx, filter)
}
