package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sswap/sswap-node/util"
)

// References are the public business keys of swap transactions. They double
// as the chain memo of offramp deposits, so the format has to survive the
// 34 byte Stacks memo field: SSWAP_OFFRAMP_<millis base36>_<8 hex> tops out
// at 31 bytes.
const (
	ReferencePrefix        = "SSWAP"
	OfframpReferencePrefix = "SSWAP_OFFRAMP_"
	OnrampReferencePrefix  = "SSWAP_ONRAMP_"
)

// NewReference builds a fresh globally unique transaction reference for the
// given direction.
func NewReference(dir Direction) string {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return fmt.Sprintf("%s_%s_%s_%s",
		ReferencePrefix,
		strings.ToUpper(string(dir)),
		strings.ToUpper(ts),
		util.RandomHex(4),
	)
}

// ParseReference validates the reference format and returns its direction.
func ParseReference(ref string) (Direction, error) {
	parts := strings.Split(ref, "_")
	if len(parts) != 4 || parts[0] != ReferencePrefix {
		return "", fmt.Errorf("malformed reference %q", ref)
	}
	dir := Direction(strings.ToLower(parts[1]))
	if !dir.Valid() {
		return "", fmt.Errorf("unknown direction in reference %q", ref)
	}
	if parts[2] == "" || len(parts[3]) != 8 {
		return "", fmt.Errorf("malformed reference %q", ref)
	}
	if _, err := strconv.ParseInt(strings.ToLower(parts[2]), 36, 64); err != nil {
		return "", fmt.Errorf("malformed reference timestamp in %q", ref)
	}
	return dir, nil
}

// ValidReference reports whether ref is a well formed swap reference.
func ValidReference(ref string) bool {
	_, err := ParseReference(ref)
	return err == nil
}
