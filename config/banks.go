package config

import "strings"

// FintechPriorityBanks orders the bank list surfaced to users: instant
// settlement fintechs first, in this order, then everything else
// alphabetically. Matching is by normalized name fragment because provider
// bank codes are not stable across payout providers.
var FintechPriorityBanks = []string{
	"kuda",
	"opay",
	"palmpay",
	"moniepoint",
	"vfd",
}

// BankPriority returns the priority rank of a bank name, lower is earlier.
// Banks outside the priority list all share the same rank after the last
// fintech.
func BankPriority(name string) int {
	normalized := strings.ToLower(name)
	for i, fragment := range FintechPriorityBanks {
		if strings.Contains(normalized, fragment) {
			return i
		}
	}
	return len(FintechPriorityBanks)
}
