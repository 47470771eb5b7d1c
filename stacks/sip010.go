package stacks

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sswap/sswap-node/types"
)

// sip010TransferFn is the SIP-010 standard transfer entrypoint:
// transfer(amount uint, sender principal, recipient principal,
// memo (optional (buff 34))).
const sip010TransferFn = "transfer"

// IsSIP010Transfer reports whether tx is a transfer call against the given
// token contract (full id, "<principal>.<name>").
func IsSIP010Transfer(tx *Transaction, contractID string) bool {
	return tx.TxType == TypeContractCall &&
		tx.ContractCall != nil &&
		tx.ContractCall.FunctionName == sip010TransferFn &&
		tx.ContractCall.ContractID == contractID
}

// SIP010Received sums the fungible token amounts the transaction moved to
// recipient under the given contract, in raw subunits. Multiple transfer
// events in one tx (contract hooks, batched sends) are all counted. The
// second return is false when no matching event exists.
func SIP010Received(tx *Transaction, contractID, recipient string) (decimal.Decimal, bool) {
	total := decimal.Zero
	found := false
	for _, event := range tx.Events {
		if event.EventType != fungibleTokenEvent || event.Asset == nil {
			continue
		}
		asset := event.Asset
		if asset.AssetEventType != "transfer" || asset.Recipient != recipient {
			continue
		}
		if !strings.HasPrefix(asset.AssetID, contractID) {
			continue
		}
		amount, err := decimal.NewFromString(asset.Amount.String())
		if err != nil {
			continue
		}
		total = total.Add(amount)
		found = true
	}
	return total, found
}

// SIP010Memo extracts the memo text from the fourth transfer argument.
func SIP010Memo(tx *Transaction) string {
	if tx.ContractCall == nil || len(tx.ContractCall.FunctionArgs) < 4 {
		return ""
	}
	return memoFromRepr(tx.ContractCall.FunctionArgs[3].Repr)
}

// subunitsToTokens converts raw 6-decimal chain subunits to whole tokens.
func subunitsToTokens(raw decimal.Decimal) types.Decimal {
	return types.NewDecimal(raw.Shift(-types.TokenDecimals))
}
