package types

import (
	"encoding/json"
	"fmt"
)

// GenericMeta is a free-form metadata map attached to transactions.
type GenericMeta map[string]any

// MarshalJSON implements json.Marshaler interface for GenericMeta.
// Returns an empty object {} instead of null when the map is nil or empty.
func (g GenericMeta) MarshalJSON() ([]byte, error) {
	if g == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(g))
}

func (g *GenericMeta) UnmarshalJSON(data []byte) error {
	if g == nil {
		return fmt.Errorf("GenericMeta: nil receiver")
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*g = GenericMeta(raw)
	return nil
}

// Bool returns the boolean value stored under key, false when absent or of
// another type.
func (g GenericMeta) Bool(key string) bool {
	v, ok := g[key].(bool)
	return ok && v
}

// String returns the string value stored under key, "" when absent or of
// another type.
func (g GenericMeta) String(key string) string {
	v, _ := g[key].(string)
	return v
}
