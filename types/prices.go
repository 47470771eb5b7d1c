package types

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CacheFreshness describes how old a cached price set is relative to the
// configured fresh and stale windows.
type CacheFreshness uint8

const (
	CacheFresh   = CacheFreshness(iota) // within the fresh TTL, serve directly
	CacheStale                          // past fresh but within the stale window, serve and refresh
	CacheExpired                        // past the stale window, only served as a last resort

	CacheFreshName   = "fresh"
	CacheStaleName   = "stale"
	CacheExpiredName = "expired"
)

func (s CacheFreshness) String() string {
	switch s {
	case CacheFresh:
		return CacheFreshName
	case CacheStale:
		return CacheStaleName
	case CacheExpired:
		return CacheExpiredName
	default:
		return "unknown"
	}
}

// TokenPrice is the quoted market price of one token in both fiat
// denominations, plus the 24h percentage move when the source provides it.
type TokenPrice struct {
	Token     TokenSymbol `json:"token"     bson:"token"`
	USD       Decimal     `json:"usd"       bson:"usd"`
	NGN       Decimal     `json:"ngn"       bson:"ngn"`
	Change24h float64     `json:"change24h" bson:"change24h"`
}

// PriceData is one complete price fetch: every supported token plus the
// USD to NGN rate used to derive NGN quotes.
type PriceData struct {
	Tokens    map[TokenSymbol]TokenPrice `json:"tokens"`
	USDToNGN  Decimal                    `json:"usdToNgn"`
	FetchedAt time.Time                  `json:"fetchedAt"`
	Source    string                     `json:"source"`
}

// Price returns the entry for the given token. The second return is false
// when the token was not part of the fetch.
func (p *PriceData) Price(token TokenSymbol) (TokenPrice, bool) {
	tp, ok := p.Tokens[token]
	return tp, ok
}

// PriceSnapshot is a persisted per-token price observation, kept for the
// history endpoints.
type PriceSnapshot struct {
	ID        primitive.ObjectID `json:"-"         bson:"_id,omitempty"`
	Token     TokenSymbol        `json:"token"     bson:"token"`
	USD       Decimal            `json:"usd"       bson:"usd"`
	NGN       Decimal            `json:"ngn"       bson:"ngn"`
	Change24h float64            `json:"change24h" bson:"change24h"`
	Source    string             `json:"source"    bson:"source"`
	FetchedAt time.Time          `json:"fetchedAt" bson:"fetchedAt"`
}
