/*
Package liquidity gates new offramps on the platform's NGN float. It reads
the payout provider's cached balance and requires the order amount plus a
configured safety buffer to be covered. An unreadable balance is treated as
unknown, never as zero, and unknown rejects the order.
*/
package liquidity

import (
	"context"

	"github.com/sswap/sswap-node/log"
)

// DefaultBufferNGN is the float that must remain after covering an order.
const DefaultBufferNGN = 5_000

// BalanceSource exposes the platform account balance in whole NGN. The
// lenco client implements it.
type BalanceSource interface {
	Balance(ctx context.Context) (int64, error)
	InvalidateBalance()
}

// State classifies a liquidity check.
type State uint8

const (
	StateOk           State = iota // order covered, buffer intact
	StateInsufficient              // balance known but too low
	StateUnknown                   // balance unreadable, reject as a precaution
)

func (s State) String() string {
	switch s {
	case StateOk:
		return "ok"
	case StateInsufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

// Result is the outcome of one liquidity check. AvailableNGN and
// ShortfallNGN are only meaningful when the state is not StateUnknown.
type Result struct {
	State        State
	AvailableNGN int64
	ShortfallNGN int64
}

// Guard is the liquidity gate.
type Guard struct {
	source    BalanceSource
	bufferNGN int64
}

// New creates a Guard. bufferNGN <= 0 selects the default buffer.
func New(source BalanceSource, bufferNGN int64) *Guard {
	if bufferNGN <= 0 {
		bufferNGN = DefaultBufferNGN
	}
	return &Guard{source: source, bufferNGN: bufferNGN}
}

// BufferNGN returns the configured safety buffer.
func (g *Guard) BufferNGN() int64 {
	return g.bufferNGN
}

// Check reports whether the platform can cover requiredNGN while keeping the
// buffer intact.
func (g *Guard) Check(ctx context.Context, requiredNGN int64) Result {
	balance, err := g.source.Balance(ctx)
	if err != nil {
		log.Warnw("liquidity check with unknown balance", "error", err)
		return Result{State: StateUnknown}
	}
	needed := requiredNGN + g.bufferNGN
	if balance < needed {
		return Result{
			State:        StateInsufficient,
			AvailableNGN: balance,
			ShortfallNGN: needed - balance,
		}
	}
	return Result{State: StateOk, AvailableNGN: balance}
}

// MaxOrderNGN returns the largest order the platform can currently cover.
// The boolean is false when the balance is unknown. The raw balance itself
// is never exposed beyond this package's callers.
func (g *Guard) MaxOrderNGN(ctx context.Context) (int64, bool) {
	balance, err := g.source.Balance(ctx)
	if err != nil {
		return 0, false
	}
	max := balance - g.bufferNGN
	if max < 0 {
		max = 0
	}
	return max, true
}

// Invalidate drops the cached balance. Called by the settlement engine right
// after a payout initiation so the next check sees the spent float.
func (g *Guard) Invalidate() {
	g.source.InvalidateBalance()
}
