package lenco

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sswap/sswap-node/config"
	"github.com/sswap/sswap-node/types"
)

// Bank is one payable destination bank.
type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// ResolvedAccount is the answer of an account name lookup.
type ResolvedAccount struct {
	AccountNumber string `json:"accountNumber"`
	AccountName   string `json:"accountName"`
	BankName      string `json:"bankName"`
	BankCode      string `json:"bankCode"`
}

const banksCacheKey = "banks"

type banksCache struct {
	lru *expirable.LRU[string, []Bank]
}

func newBanksCache() *banksCache {
	return &banksCache{lru: expirable.NewLRU[string, []Bank](1, nil, 24*time.Hour)}
}

// Banks returns the supported bank list, fintech-priority banks first and the
// rest alphabetical. The list is cached for 24 hours and the ordering is
// stable within the cache window.
func (c *Client) Banks(ctx context.Context) ([]Bank, error) {
	if cached, ok := c.banks.lru.Get(banksCacheKey); ok {
		return cached, nil
	}

	var banks []Bank
	if err := c.get(ctx, "/banks", banksTimeout, &banks); err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	sortBanks(banks)
	c.banks.lru.Add(banksCacheKey, banks)
	return banks, nil
}

func sortBanks(banks []Bank) {
	sort.SliceStable(banks, func(i, j int) bool {
		pi, pj := config.BankPriority(banks[i].Name), config.BankPriority(banks[j].Name)
		if pi != pj {
			return pi < pj
		}
		return banks[i].Name < banks[j].Name
	})
}

// ResolveAccount looks up the holder name of a bank account. Validation
// failures and provider 4xx answers surface as ErrBankVerification.
func (c *Client) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (*ResolvedAccount, error) {
	if !types.ValidAccountNumber(accountNumber) {
		return nil, fmt.Errorf("%w: account number must be 10 digits", ErrBankVerification)
	}
	if bankCode == "" {
		return nil, fmt.Errorf("%w: bank code is required", ErrBankVerification)
	}

	params := url.Values{}
	params.Set("accountNumber", accountNumber)
	params.Set("bankCode", bankCode)

	var raw struct {
		AccountNumber string `json:"accountNumber"`
		AccountName   string `json:"accountName"`
		Bank          struct {
			Code string `json:"code"`
			Name string `json:"name"`
		} `json:"bank"`
	}
	if err := c.get(ctx, "/resolve?"+params.Encode(), resolveTimeout, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBankVerification, err)
	}
	if raw.AccountName == "" {
		return nil, fmt.Errorf("%w: provider returned no account name", ErrBankVerification)
	}
	return &ResolvedAccount{
		AccountNumber: raw.AccountNumber,
		AccountName:   raw.AccountName,
		BankName:      raw.Bank.Name,
		BankCode:      raw.Bank.Code,
	}, nil
}
