package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Cart maps product ids to positive quantities. Entries are removed, never zeroed.
type Cart map[string]int

// Normalized returns a copy without blank product ids or non-positive quantities.
func (c Cart) Normalized() Cart {
	out := make(Cart, len(c))
	for productID, qty := range c {
		id := strings.TrimSpace(productID)
		if id == "" || qty <= 0 {
			continue
		}
		out[id] = qty
	}
	return out
}

// Value stores the cart as a JSON object.
func (c Cart) Value() (driver.Value, error) {
	payload, err := json.Marshal(c.Normalized())
	if err != nil {
		return nil, fmt.Errorf("cart: marshal: %w", err)
	}
	return string(payload), nil
}

// Scan decodes a JSON object column into the cart.
func (c *Cart) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*c = Cart{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cart: unsupported scan type %T", value)
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		*c = Cart{}
		return nil
	}

	decoded := Cart{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("cart: unmarshal: %w", err)
	}
	*c = decoded.Normalized()
	return nil
}
