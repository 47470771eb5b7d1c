// Package config provides the static configuration of sswap-node: the
// supported token registry, per-network Stacks endpoints and contracts, and
// the payout bank ordering.
package config

import (
	"github.com/sswap/sswap-node/types"
)

// TokenInfo describes one supported token: how to price it upstream and how
// to interpret its raw chain amounts.
type TokenInfo struct {
	Symbol      types.TokenSymbol
	Name        string
	CoingeckoID string
	Decimals    int32
	Native      bool
}

// Tokens is the registry of tokens the swap supports.
var Tokens = map[types.TokenSymbol]TokenInfo{
	types.TokenSTX: {
		Symbol:      types.TokenSTX,
		Name:        "Stacks",
		CoingeckoID: "blockstack",
		Decimals:    types.TokenDecimals,
		Native:      true,
	},
	types.TokenUSDC: {
		Symbol:      types.TokenUSDC,
		Name:        "USD Coin",
		CoingeckoID: "usd-coin",
		Decimals:    types.TokenDecimals,
	},
}

// TetherCoingeckoID prices the USD to NGN leg. Tether trades directly
// against NGN on the upstream source, which tracks the parallel market rate
// better than the official one.
const TetherCoingeckoID = "tether"

// CoingeckoIDs returns the upstream ids of every registered token plus the
// NGN cross rate source.
func CoingeckoIDs() []string {
	ids := make([]string, 0, len(Tokens)+1)
	for _, info := range Tokens {
		ids = append(ids, info.CoingeckoID)
	}
	return append(ids, TetherCoingeckoID)
}

// Emergency price constants, the fallback of last resort when the upstream
// source is down and no cached prices remain usable. Overridable via
// configuration.
const (
	EmergencyUSDToNGN = "1500"
	EmergencySTXUSD   = "0.65"
	EmergencyUSDCUSD  = "1.0"
)
