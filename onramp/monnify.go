package onramp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultMonnifyURL = "https://api.monnify.com"

// ErrPayment wraps any failure of the payment provider's checkout API.
var ErrPayment = errors.New("payment initialization failed")

// Monnify webhook event types. Only the success event drives settlement.
const (
	EventSuccessfulTransaction = "SUCCESSFUL_TRANSACTION"

	paymentStatusPaid = "PAID"
)

// MonnifyConfig contains the payment provider credentials.
type MonnifyConfig struct {
	BaseURL      string
	APIKey       string
	SecretKey    string
	ContractCode string
}

// MonnifyClient collects NGN card and bank-transfer payments through the
// Monnify checkout. Access tokens are short-lived and cached until shortly
// before expiry.
type MonnifyClient struct {
	cfg  MonnifyConfig
	http *http.Client

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewMonnifyClient creates a payment collection client. Configured() reports
// false when credentials are missing, which disables the onramp path.
func NewMonnifyClient(cfg MonnifyConfig) *MonnifyClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultMonnifyURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MonnifyClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 20 * time.Second},
	}
}

// Configured reports whether the client holds usable credentials.
func (c *MonnifyClient) Configured() bool {
	return c.cfg.APIKey != "" && c.cfg.SecretKey != "" && c.cfg.ContractCode != ""
}

// Checkout is one initialized payment the user completes on the provider's
// hosted page.
type Checkout struct {
	CheckoutURL          string `json:"checkoutUrl"`
	TransactionReference string `json:"transactionReference"`
	PaymentReference     string `json:"paymentReference"`
}

// InitializePayment creates a hosted checkout for the given NGN amount.
// reference becomes the provider-side paymentReference, echoed back in the
// webhook, which is how payment events map onto swap records.
func (c *MonnifyClient) InitializePayment(ctx context.Context, amountNGN int64, reference, customerName, customerEmail string) (*Checkout, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("%w: provider credentials not configured", ErrPayment)
	}
	if amountNGN <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrPayment)
	}
	body := map[string]any{
		"amount":             amountNGN,
		"customerName":       customerName,
		"customerEmail":      customerEmail,
		"paymentReference":   reference,
		"paymentDescription": "SSwap onramp " + reference,
		"currencyCode":       "NGN",
		"contractCode":       c.cfg.ContractCode,
	}
	var out Checkout
	if err := c.post(ctx, "/api/v1/merchant/transactions/init-transaction", body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayment, err)
	}
	if out.PaymentReference == "" {
		out.PaymentReference = reference
	}
	return &out, nil
}

// VerifyWebhookSignature checks the HMAC-SHA512 of the raw body bytes
// against the monnify-signature header, in constant time.
func (c *MonnifyClient) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	if c.cfg.SecretKey == "" || signature == "" {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.cfg.SecretKey))
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), provided)
}

// PaymentEvent is one provider webhook notification.
type PaymentEvent struct {
	EventType string      `json:"eventType"`
	Data      PaymentData `json:"eventData"`
}

// PaymentData is the payment payload inside a webhook event. AmountPaid is
// in whole naira.
type PaymentData struct {
	PaymentReference     string      `json:"paymentReference"`
	TransactionReference string      `json:"transactionReference"`
	PaymentStatus        string      `json:"paymentStatus"`
	AmountPaid           json.Number `json:"amountPaid"`
}

// Paid reports whether the event is a completed successful payment.
func (e *PaymentEvent) Paid() bool {
	return e.EventType == EventSuccessfulTransaction && e.Data.PaymentStatus == paymentStatusPaid
}

// AmountPaidNGN returns the paid amount truncated to whole naira, 0 when
// absent or malformed.
func (d *PaymentData) AmountPaidNGN() int64 {
	if d.AmountPaid == "" {
		return 0
	}
	f, err := d.AmountPaid.Float64()
	if err != nil {
		return 0
	}
	return int64(f)
}

// ParsePaymentEvent decodes a verified webhook body.
func ParsePaymentEvent(rawBody []byte) (*PaymentEvent, error) {
	var event PaymentEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("decode payment event: %w", err)
	}
	if event.EventType == "" {
		return nil, fmt.Errorf("payment event without type")
	}
	if event.Data.PaymentReference == "" {
		return nil, fmt.Errorf("payment event without payment reference")
	}
	return &event, nil
}

// token returns a valid bearer token, logging in when the cached one is
// absent or about to expire.
func (c *MonnifyClient) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.APIKey + ":" + c.cfg.SecretKey))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider login: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		RequestSuccessful bool `json:"requestSuccessful"`
		ResponseBody      struct {
			AccessToken string `json:"accessToken"`
			ExpiresIn   int64  `json:"expiresIn"`
		} `json:"responseBody"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !envelope.RequestSuccessful || envelope.ResponseBody.AccessToken == "" {
		return "", fmt.Errorf("provider login rejected, status %d", resp.StatusCode)
	}

	c.accessToken = envelope.ResponseBody.AccessToken
	// renew a minute early so an in-flight request never carries a dead token
	ttl := time.Duration(envelope.ResponseBody.ExpiresIn) * time.Second
	if ttl > 2*time.Minute {
		ttl -= time.Minute
	}
	c.tokenExpiry = time.Now().Add(ttl)
	return c.accessToken, nil
}

func (c *MonnifyClient) post(ctx context.Context, path string, body, out any) error {
	bearer, err := c.token(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		RequestSuccessful bool            `json:"requestSuccessful"`
		ResponseMessage   string          `json:"responseMessage"`
		ResponseBody      json.RawMessage `json:"responseBody"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&envelope); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !envelope.RequestSuccessful {
		msg := envelope.ResponseMessage
		if msg == "" {
			msg = "status " + strconv.Itoa(resp.StatusCode)
		}
		return fmt.Errorf("provider rejected request: %s", msg)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.ResponseBody, out); err != nil {
			return fmt.Errorf("decode provider data: %w", err)
		}
	}
	return nil
}
