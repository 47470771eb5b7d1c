package lenco

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// Webhook event types the settlement engine reacts to.
const (
	EventTransferCompleted = "transfer.completed"
	EventTransferFailed    = "transfer.failed"
	EventTransferReversed  = "transfer.reversed"
)

// WebhookEvent is one provider notification.
type WebhookEvent struct {
	Event string          `json:"event"`
	Data  WebhookTransfer `json:"data"`
}

// WebhookTransfer is the transfer payload inside a webhook event.
type WebhookTransfer struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	FailureReason string `json:"reasonForFailure,omitempty"`
}

// VerifyWebhookSignature checks the HMAC-SHA256 of the raw body bytes
// against the signature header, in constant time. The body must be the exact
// bytes received on the wire, never a re-serialization.
func (c *Client) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	if c.cfg.WebhookSecret == "" || signature == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), provided)
}

// ParseWebhookEvent decodes a verified webhook body.
func ParseWebhookEvent(rawBody []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	if event.Event == "" {
		return nil, fmt.Errorf("webhook event without type")
	}
	if event.Data.Reference == "" {
		return nil, fmt.Errorf("webhook event without transfer reference")
	}
	return &event, nil
}
