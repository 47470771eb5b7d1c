package types

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Decimal is a decimal.Decimal wrapper that can live inside BSON documents.
// The mongo driver has no codec for decimal.Decimal and would reject its
// unexported fields, so the value is stored as its exact decimal string.
// JSON marshaling is inherited from the embedded type (quoted string, and
// both quoted and bare numbers are accepted on unmarshal).
type Decimal struct {
	decimal.Decimal
}

// NewDecimal wraps d.
func NewDecimal(d decimal.Decimal) Decimal {
	return Decimal{d}
}

// DecimalFromString parses a decimal string such as "12.345678".
func DecimalFromString(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return Decimal{d}, nil
}

// MustDecimal parses a decimal string and panics on failure. For constants
// and tests only.
func MustDecimal(s string) Decimal {
	d, err := DecimalFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MarshalBSONValue implements bson.ValueMarshaler.
func (d Decimal) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(d.String())
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (d *Decimal) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var s string
	if err := bson.UnmarshalValue(t, data, &s); err != nil {
		return fmt.Errorf("decimal bson value: %w", err)
	}
	parsed, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid stored decimal %q: %w", s, err)
	}
	d.Decimal = parsed
	return nil
}

// Equal helps us with go-cmp.
func (d Decimal) Equal(other Decimal) bool {
	return d.Decimal.Equal(other.Decimal)
}
