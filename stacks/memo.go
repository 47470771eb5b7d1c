package stacks

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/sswap/sswap-node/util"
)

// MemoLength is the fixed width of the Stacks transfer memo buffer. Shorter
// memos are null padded on chain, so decoding must trim trailing NULs before
// any prefix match.
const MemoLength = 34

var hexBufferRx = regexp.MustCompile(`0x[0-9a-fA-F]+`)

// DecodeMemo converts a hex-on-wire memo into its UTF-8 text, dropping the
// null padding and surrounding whitespace.
func DecodeMemo(hexMemo string) string {
	raw, err := hex.DecodeString(util.TrimHex(hexMemo))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.TrimRight(string(raw), "\x00"))
}

// EncodeMemo validates that text fits the memo buffer and returns its hex
// encoding. Padding is left to the wallet.
func EncodeMemo(text string) (string, error) {
	if len(text) > MemoLength {
		return "", fmt.Errorf("memo %q exceeds %d bytes", text, MemoLength)
	}
	return hex.EncodeToString([]byte(text)), nil
}

// memoFromRepr extracts the memo text from the clarity repr of an optional
// buff argument, e.g. `(some 0x5353574150...)` or a bare `0x...`. Returns ""
// when the argument carries no buffer.
func memoFromRepr(repr string) string {
	match := hexBufferRx.FindString(repr)
	if match == "" {
		return ""
	}
	return DecodeMemo(match)
}
