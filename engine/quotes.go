package engine

import (
	"context"
	"fmt"

	"github.com/sswap/sswap-node/types"
)

// OfframpQuote prices one offramp order. NGNAmount is what the user's bank
// account receives: the gross NGN value floored to a whole naira minus the
// flat fee, because the payout provider only moves integer amounts.
type OfframpQuote struct {
	Token       types.TokenSymbol    `json:"token"`
	TokenAmount types.Decimal        `json:"tokenAmount"`
	RateNGN     types.Decimal        `json:"rateNgn"`
	GrossNGN    types.Decimal        `json:"grossNgn"`
	FeeNGN      int64                `json:"feeNgn"`
	NGNAmount   int64                `json:"ngnAmount"`
	Freshness   types.CacheFreshness `json:"-"`
	FromCache   bool                 `json:"fromCache"`
}

// Quote computes the NGN payable for tokenAmount at the current rate.
// Rejects quotes the fee would consume entirely.
func (e *Engine) Quote(ctx context.Context, token types.TokenSymbol, tokenAmount types.Decimal) (*OfframpQuote, error) {
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
	ngn := gross.Floor().IntPart() - e.cfg.FeeNGN
	if ngn <= 0 {
		return nil, fmt.Errorf("%w: order of %s %s is below the ₦%d fee",
			ErrValidation, tokenAmount, token, e.cfg.FeeNGN)
	}
	return &OfframpQuote{
		Token:       token,
		TokenAmount: tokenAmount,
		RateNGN:     rate,
		GrossNGN:    types.NewDecimal(gross),
		FeeNGN:      e.cfg.FeeNGN,
		NGNAmount:   ngn,
		Freshness:   freshness,
		FromCache:   freshness != types.CacheFresh,
	}, nil
}
