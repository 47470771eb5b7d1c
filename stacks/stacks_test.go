package stacks

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/sswap/sswap-node/types"
)

const (
	platformAddr = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	usdcContract = "SP3Y2ZSH8P7D50B0VBTSX11S7XSG24M1VB9YFQA4K.token-aeusdc"
	senderAddr   = "SP1P72Z3704VMT3DMHPP2CB8TGQWGDBHD3RPR9GZS"
)

// paddedMemoHex encodes text into the fixed 34 byte null padded memo buffer.
func paddedMemoHex(text string) string {
	buf := make([]byte, MemoLength)
	copy(buf, text)
	return "0x" + hex.EncodeToString(buf)
}

func TestDecodeMemoTrimsPadding(t *testing.T) {
	c := qt.New(t)
	ref := "SSWAP_OFFRAMP_MEMOTEST_deadbeef"
	c.Assert(DecodeMemo(paddedMemoHex(ref)), qt.Equals, ref)
	// bare hex without 0x prefix decodes too
	c.Assert(DecodeMemo(hex.EncodeToString([]byte(ref))), qt.Equals, ref)
	c.Assert(DecodeMemo("not-hex"), qt.Equals, "")
	c.Assert(DecodeMemo(""), qt.Equals, "")
}

func TestEncodeMemoBounds(t *testing.T) {
	c := qt.New(t)
	enc, err := EncodeMemo("SSWAP_OFFRAMP_X_aabbccdd")
	c.Assert(err, qt.IsNil)
	c.Assert(enc, qt.Equals, hex.EncodeToString([]byte("SSWAP_OFFRAMP_X_aabbccdd")))

	_, err = EncodeMemo("this memo is far too long to fit the 34 byte buffer")
	c.Assert(err, qt.IsNotNil)
}

func nativeDepositTx(status, recipient, amount, memo string) *Transaction {
	return &Transaction{
		TxID:          "0xaaa1",
		TxType:        TypeTokenTransfer,
		TxStatus:      status,
		SenderAddress: senderAddr,
		TokenTransfer: &TokenTransfer{
			RecipientAddress: recipient,
			Amount:           json.Number(amount),
			Memo:             paddedMemoHex(memo),
		},
	}
}

func TestExtractDepositNative(t *testing.T) {
	c := qt.New(t)
	tx := nativeDepositTx(StatusSuccess, platformAddr, "100000000", "SSWAP_OFFRAMP_ABC_11223344")

	dep, ok := ExtractDeposit(tx, platformAddr, usdcContract)
	c.Assert(ok, qt.IsTrue)
	c.Assert(dep.Token, qt.Equals, types.TokenSTX)
	c.Assert(dep.Amount.String(), qt.Equals, "100") // 100000000 µSTX
	c.Assert(dep.Memo, qt.Equals, "SSWAP_OFFRAMP_ABC_11223344")
	c.Assert(dep.SenderAddress, qt.Equals, senderAddr)

	// wrong recipient, pending status and zero amount are all rejected
	_, ok = ExtractDeposit(nativeDepositTx(StatusSuccess, senderAddr, "100", "x"), platformAddr, usdcContract)
	c.Assert(ok, qt.IsFalse)
	_, ok = ExtractDeposit(nativeDepositTx(StatusPending, platformAddr, "100", "x"), platformAddr, usdcContract)
	c.Assert(ok, qt.IsFalse)
	_, ok = ExtractDeposit(nativeDepositTx(StatusSuccess, platformAddr, "0", "x"), platformAddr, usdcContract)
	c.Assert(ok, qt.IsFalse)
}

func sip010DepositTx(memoRepr string, events []Event) *Transaction {
	return &Transaction{
		TxID:          "0xbbb2",
		TxType:        TypeContractCall,
		TxStatus:      StatusSuccess,
		SenderAddress: senderAddr,
		ContractCall: &ContractCall{
			ContractID:   usdcContract,
			FunctionName: "transfer",
			FunctionArgs: []FunctionArg{
				{Repr: "u50000000", Type: "uint"},
				{Repr: "'" + senderAddr, Type: "principal"},
				{Repr: "'" + platformAddr, Type: "principal"},
				{Repr: memoRepr, Type: "(optional (buff 34))"},
			},
		},
		Events: events,
	}
}

func TestExtractDepositSIP010(t *testing.T) {
	c := qt.New(t)
	memo := "SSWAP_OFFRAMP_DEF_55667788"
	events := []Event{
		{EventType: fungibleTokenEvent, Asset: &AssetEvent{
			AssetEventType: "transfer",
			AssetID:        usdcContract + "::aeusdc",
			Sender:         senderAddr,
			Recipient:      platformAddr,
			Amount:         json.Number("30000000"),
		}},
		{EventType: fungibleTokenEvent, Asset: &AssetEvent{
			AssetEventType: "transfer",
			AssetID:        usdcContract + "::aeusdc",
			Sender:         senderAddr,
			Recipient:      platformAddr,
			Amount:         json.Number("20000000"),
		}},
		// a transfer to someone else must not be counted
		{EventType: fungibleTokenEvent, Asset: &AssetEvent{
			AssetEventType: "transfer",
			AssetID:        usdcContract + "::aeusdc",
			Sender:         senderAddr,
			Recipient:      senderAddr,
			Amount:         json.Number("999"),
		}},
	}
	tx := sip010DepositTx("(some "+paddedMemoHex(memo)+")", events)

	dep, ok := ExtractDeposit(tx, platformAddr, usdcContract)
	c.Assert(ok, qt.IsTrue)
	c.Assert(dep.Token, qt.Equals, types.TokenUSDC)
	c.Assert(dep.Amount.String(), qt.Equals, "50") // both platform events summed
	c.Assert(dep.Memo, qt.Equals, memo)

	// no events destined to the platform: not a deposit
	_, ok = ExtractDeposit(sip010DepositTx("none", nil), platformAddr, usdcContract)
	c.Assert(ok, qt.IsFalse)
}

func TestExtractDepositForeignContract(t *testing.T) {
	c := qt.New(t)
	tx := sip010DepositTx("none", []Event{
		{EventType: fungibleTokenEvent, Asset: &AssetEvent{
			AssetEventType: "transfer",
			AssetID:        "SP000000000000000000002Q6VF78.other-token::other",
			Recipient:      platformAddr,
			Amount:         json.Number("1000000"),
		}},
	})
	_, ok := ExtractDeposit(tx, platformAddr, usdcContract)
	c.Assert(ok, qt.IsFalse)
}

func TestTxByID(t *testing.T) {
	c := qt.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/extended/v1/tx/0xabc":
			_ = json.NewEncoder(w).Encode(Transaction{
				TxID: "0xabc", TxType: TypeTokenTransfer, TxStatus: StatusSuccess,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	client := New(Config{APIURL: srv.URL})

	tx, err := client.TxByID(context.Background(), "abc") // prefix added by the client
	c.Assert(err, qt.IsNil)
	c.Assert(tx.Succeeded(), qt.IsTrue)

	_, err = client.TxByID(context.Background(), "0xmissing")
	c.Assert(err, qt.ErrorIs, ErrTxNotFound)
}

func TestAddressTransactions(t *testing.T) {
	c := qt.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.Assert(r.URL.Path, qt.Equals, "/extended/v1/address/"+platformAddr+"/transactions")
		c.Assert(r.URL.Query().Get("limit"), qt.Equals, "50")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []*Transaction{
				{TxID: "0x1", TxStatus: StatusSuccess},
				{TxID: "0x2", TxStatus: StatusPending},
			},
		})
	}))
	t.Cleanup(srv.Close)
	client := New(Config{APIURL: srv.URL})

	txs, err := client.AddressTransactions(context.Background(), platformAddr, 0, 0)
	c.Assert(err, qt.IsNil)
	c.Assert(txs, qt.HasLen, 2)
	c.Assert(txs[0].TxID, qt.Equals, "0x1")
}

func TestTxStatusPredicates(t *testing.T) {
	c := qt.New(t)
	c.Assert((&Transaction{TxStatus: StatusAbortByPostCondition}).Aborted(), qt.IsTrue)
	c.Assert((&Transaction{TxStatus: StatusDroppedReplaceByFee}).Dropped(), qt.IsTrue)
	c.Assert((&Transaction{TxStatus: StatusDroppedTooExpensive}).Dropped(), qt.IsTrue)
	c.Assert((&Transaction{TxStatus: StatusPending}).Succeeded(), qt.IsFalse)
}
