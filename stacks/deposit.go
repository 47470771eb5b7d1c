package stacks

import (
	"github.com/shopspring/decimal"

	"github.com/sswap/sswap-node/types"
)

// Deposit is one inbound transfer to the platform address, decoded from a
// successful chain transaction. Amount is in whole tokens.
type Deposit struct {
	ChainTxID     string
	Token         types.TokenSymbol
	Amount        types.Decimal
	Memo          string
	SenderAddress string
}

// ExtractDeposit decodes tx as a deposit to the platform address, either a
// native STX token_transfer or a SIP-010 transfer against usdcContractID.
// Returns false when the transaction did not succeed, moved nothing to the
// platform, or is of an unrelated shape. The memo is decoded but not
// validated against the reference convention; that is the caller's call.
func ExtractDeposit(tx *Transaction, platformAddress, usdcContractID string) (*Deposit, bool) {
	if tx == nil || !tx.Succeeded() {
		return nil, false
	}
	switch {
	case tx.TxType == TypeTokenTransfer && tx.TokenTransfer != nil:
		transfer := tx.TokenTransfer
		if transfer.RecipientAddress != platformAddress {
			return nil, false
		}
		raw, err := decimal.NewFromString(transfer.Amount.String())
		if err != nil || !raw.IsPositive() {
			return nil, false
		}
		return &Deposit{
			ChainTxID:     tx.TxID,
			Token:         types.TokenSTX,
			Amount:        subunitsToTokens(raw),
			Memo:          DecodeMemo(transfer.Memo),
			SenderAddress: tx.SenderAddress,
		}, true

	case IsSIP010Transfer(tx, usdcContractID):
		raw, ok := SIP010Received(tx, usdcContractID, platformAddress)
		if !ok || !raw.IsPositive() {
			return nil, false
		}
		return &Deposit{
			ChainTxID:     tx.TxID,
			Token:         types.TokenUSDC,
			Amount:        subunitsToTokens(raw),
			Memo:          SIP010Memo(tx),
			SenderAddress: tx.SenderAddress,
		}, true
	}
	return nil, false
}
