package types

import (
	"encoding/json"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TokenSymbol identifies a supported token on the Stacks chain.
type TokenSymbol string

const (
	TokenSTX  TokenSymbol = "STX"  // native Stacks token
	TokenUSDC TokenSymbol = "USDC" // SIP-010 fungible token

	// TokenDecimals is the fixed-point precision of both supported tokens:
	// raw chain amounts divide by 10^6 to obtain whole token units.
	TokenDecimals = 6
)

// Valid reports whether the symbol is one of the supported tokens.
func (t TokenSymbol) Valid() bool {
	return t == TokenSTX || t == TokenUSDC
}

// Direction distinguishes the two swap flows.
type Direction string

const (
	DirectionOnramp  Direction = "onramp"  // fiat in, tokens out
	DirectionOfframp Direction = "offramp" // tokens in, fiat out
)

func (d Direction) Valid() bool {
	return d == DirectionOnramp || d == DirectionOfframp
}

// TxStatus is the lifecycle state of a swap transaction. Transitions are
// only ever applied through conditional updates on the stored document, so
// a transition observed by one caller can never be re-applied by another.
type TxStatus string

const (
	TxStatusPending    TxStatus = "pending"    // created, waiting for the user deposit or payment
	TxStatusProcessing TxStatus = "processing" // deposit confirmed on chain, payout not yet issued
	TxStatusSettling   TxStatus = "settling"   // payout (or token send) issued, awaiting final confirmation
	TxStatusConfirmed  TxStatus = "confirmed"  // fully settled on both legs
	TxStatusFailed     TxStatus = "failed"     // terminal failure, reason in meta
)

func (s TxStatus) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusProcessing, TxStatusSettling, TxStatusConfirmed, TxStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s TxStatus) Terminal() bool {
	return s == TxStatusConfirmed || s == TxStatusFailed
}

// Meta keys set by the settlement engine on failure and mismatch paths.
const (
	MetaRequiresManualSettlement = "requiresManualSettlement"
	MetaFailureReason            = "failureReason"
	MetaAmountMismatch           = "amountMismatch"
	MetaDeliveredAmount          = "deliveredAmount"
	MetaPayoutFailureEvent       = "payoutFailureEvent"
)

// BankDetails is the payout destination of an offramp transaction. Account
// numbers are Nigerian NUBAN, always ten digits.
type BankDetails struct {
	AccountNumber string `json:"accountNumber"      bson:"accountNumber"`
	BankCode      string `json:"bankCode"           bson:"bankCode"`
	AccountName   string `json:"accountName"        bson:"accountName"`
	BankName      string `json:"bankName,omitempty" bson:"bankName,omitempty"`
}

// Transaction is a single onramp or offramp swap record. The reference is
// the public business key: the chain memo, the payout provider reference and
// every API lookup all use it, never the storage id.
type Transaction struct {
	ID                 primitive.ObjectID `json:"id,omitempty"                 bson:"_id,omitempty"`
	Reference          string             `json:"reference"                    bson:"reference"`
	Token              TokenSymbol        `json:"token"                        bson:"token"`
	Direction          Direction          `json:"direction"                    bson:"direction"`
	TokenAmount        Decimal            `json:"tokenAmount"                  bson:"tokenAmount"`
	NGNAmount          int64              `json:"ngnAmount"                    bson:"ngnAmount"`
	FeeNGN             int64              `json:"feeNGN"                       bson:"feeNGN"`
	RateAtTime         Decimal            `json:"rateAtTime"                   bson:"rateAtTime"`
	SenderAddress      string             `json:"senderAddress,omitempty"      bson:"senderAddress,omitempty"`
	RecipientAddress   string             `json:"recipientAddress,omitempty"   bson:"recipientAddress,omitempty"`
	ChainTxID          string             `json:"chainTxId,omitempty"          bson:"chainTxId,omitempty"`
	PayoutProviderTxID string             `json:"payoutProviderTxId,omitempty" bson:"payoutProviderTxId,omitempty"`
	Status             TxStatus           `json:"status"                       bson:"status"`
	BankDetails        *BankDetails       `json:"bankDetails,omitempty"        bson:"bankDetails,omitempty"`
	ExpiresAt          time.Time          `json:"expiresAt,omitempty"          bson:"expiresAt,omitempty"`
	Meta               GenericMeta        `json:"meta,omitempty"               bson:"meta,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"                    bson:"createdAt"`
	ConfirmedAt        *time.Time         `json:"confirmedAt,omitempty"        bson:"confirmedAt,omitempty"`
}

func (tx *Transaction) String() string {
	data, err := json.Marshal(tx)
	if err != nil {
		return ""
	}
	return string(data)
}

// Expired reports whether the record carries an expiry deadline that has
// already passed.
func (tx *Transaction) Expired(now time.Time) bool {
	return !tx.ExpiresAt.IsZero() && tx.ExpiresAt.Before(now)
}

var (
	stacksAddressRx = regexp.MustCompile(`^(SP|SM|ST)[0-9A-Z]{20,50}$`)
	nubanAccountRx  = regexp.MustCompile(`^\d{10}$`)
)

// ValidStacksAddress reports whether s is a plausible Stacks principal
// (mainnet SP/SM or testnet ST prefix, c32 body).
func ValidStacksAddress(s string) bool {
	return stacksAddressRx.MatchString(s)
}

// ValidAccountNumber reports whether s is a ten digit NUBAN account number.
func ValidAccountNumber(s string) bool {
	return nubanAccountRx.MatchString(s)
}
