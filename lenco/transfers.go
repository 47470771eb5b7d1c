package lenco

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sswap/sswap-node/log"
)

// Transfer statuses reported by the provider.
const (
	TransferPending    = "pending"
	TransferProcessing = "processing"
	TransferSuccessful = "successful"
	TransferFailed     = "failed"
	TransferReversed   = "reversed"
)

// Transfer is one provider-side NGN payout.
type Transfer struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	AmountNGN     int64  `json:"amountNgn"`
	Narration     string `json:"narration"`
	FailureReason string `json:"failureReason,omitempty"`
}

// InitiateTransfer issues an NGN payout to the given account. reference is
// the provider-side idempotency key: submitting the same reference twice can
// never produce two transfers. The amount travels as a decimal integer
// string in major units (whole naira).
//
// Any non-2xx answer surfaces as ErrPayout carrying the provider message.
// The caller decides what a payout failure means; this client never retries.
func (c *Client) InitiateTransfer(ctx context.Context, amountNGN int64, bankCode, accountNumber, narration, reference string) (*Transfer, error) {
	if amountNGN <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrPayout)
	}
	if c.cfg.AccountID == "" {
		return nil, fmt.Errorf("%w: lenco account id not configured", ErrPayout)
	}

	body := map[string]string{
		"accountId":     c.cfg.AccountID,
		"accountNumber": accountNumber,
		"bankCode":      bankCode,
		"amount":        strconv.FormatInt(amountNGN, 10),
		"narration":     narration,
		"reference":     reference,
	}

	var raw struct {
		ID              string `json:"id"`
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		Amount          string `json:"amount"`
		Narration       string `json:"narration"`
		ReasonForFailed string `json:"reasonForFailure"`
	}
	if err := c.post(ctx, "/transactions", transferTimeout, body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayout, err)
	}

	log.Infow("payout transfer initiated",
		"transferId", raw.ID, "reference", reference, "amountNGN", amountNGN, "status", raw.Status)
	return &Transfer{
		ID:            raw.ID,
		Reference:     raw.Reference,
		Status:        raw.Status,
		AmountNGN:     amountNGN,
		Narration:     raw.Narration,
		FailureReason: raw.ReasonForFailed,
	}, nil
}

// TransferByReference fetches the provider-side state of a payout by its
// idempotency reference. Used for manual reconciliation paths.
func (c *Client) TransferByReference(ctx context.Context, reference string) (*Transfer, error) {
	var raw struct {
		ID        string `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Narration string `json:"narration"`
	}
	if err := c.get(ctx, "/transactions/by-reference/"+reference, transferTimeout, &raw); err != nil {
		return nil, fmt.Errorf("fetch transfer %s: %w", reference, err)
	}
	return &Transfer{
		ID:        raw.ID,
		Reference: raw.Reference,
		Status:    raw.Status,
		Narration: raw.Narration,
	}, nil
}
