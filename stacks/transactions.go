package stacks

import (
	"encoding/json"
	"strings"
)

// Transaction statuses reported by the chain API. Anything outside this list
// is treated as still pending.
const (
	StatusSuccess              = "success"
	StatusPending              = "pending"
	StatusAbortByResponse      = "abort_by_response"
	StatusAbortByPostCondition = "abort_by_post_condition"
	StatusDroppedReplaceByFee  = "dropped_replace_by_fee"
	StatusDroppedTooExpensive  = "dropped_too_expensive"
)

// Transaction types relevant to swaps.
const (
	TypeTokenTransfer = "token_transfer"
	TypeContractCall  = "contract_call"
)

// Transaction is one chain transaction as reported by the extended API.
// Only the fields the swap flows inspect are decoded.
type Transaction struct {
	TxID          string         `json:"tx_id"`
	TxType        string         `json:"tx_type"`
	TxStatus      string         `json:"tx_status"`
	SenderAddress string         `json:"sender_address"`
	BlockHeight   int64          `json:"block_height"`
	TokenTransfer *TokenTransfer `json:"token_transfer,omitempty"`
	ContractCall  *ContractCall  `json:"contract_call,omitempty"`
	Events        []Event        `json:"events,omitempty"`
}

// TokenTransfer is the native STX transfer payload of a token_transfer
// transaction. Amount is µSTX on the wire; Memo is the hex encoding of the
// fixed 34 byte memo buffer.
type TokenTransfer struct {
	RecipientAddress string      `json:"recipient_address"`
	Amount           json.Number `json:"amount"`
	Memo             string      `json:"memo"`
}

// ContractCall is the call payload of a contract_call transaction.
type ContractCall struct {
	ContractID   string        `json:"contract_id"`
	FunctionName string        `json:"function_name"`
	FunctionArgs []FunctionArg `json:"function_args"`
}

// FunctionArg is one decoded clarity argument.
type FunctionArg struct {
	Hex  string `json:"hex"`
	Repr string `json:"repr"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Event is one transaction event. Fungible token moves show up as
// fungible_token_asset events with an embedded asset payload.
type Event struct {
	EventType string      `json:"event_type"`
	Asset     *AssetEvent `json:"asset,omitempty"`
}

// AssetEvent is the asset payload of a fungible_token_asset event. AssetID
// has the form <contract principal>.<contract name>::<token name>.
type AssetEvent struct {
	AssetEventType string      `json:"asset_event_type"`
	AssetID        string      `json:"asset_id"`
	Sender         string      `json:"sender"`
	Recipient      string      `json:"recipient"`
	Amount         json.Number `json:"amount"`
}

const fungibleTokenEvent = "fungible_token_asset"

// Succeeded reports whether the transaction is anchored in a canonical block
// and executed without aborting.
func (tx *Transaction) Succeeded() bool {
	return tx.TxStatus == StatusSuccess
}

// Aborted reports whether the transaction reached a block but its execution
// aborted. Aborts are terminal, the tx id will never succeed.
func (tx *Transaction) Aborted() bool {
	return tx.TxStatus == StatusAbortByResponse || tx.TxStatus == StatusAbortByPostCondition
}

// Dropped reports whether the mempool discarded the transaction. A dropped
// tx may be rebroadcast under the same id, so callers keep polling.
func (tx *Transaction) Dropped() bool {
	return strings.HasPrefix(tx.TxStatus, "dropped_")
}
