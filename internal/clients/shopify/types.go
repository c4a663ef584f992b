package shopify

import (
	"encoding/json"
	"time"
)

// Product is the wire shape of a Shopify product with its nested variants.
type Product struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Variants  []Variant `json:"variants"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// Variant is the wire shape of a Shopify product variant.
type Variant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	InventoryQuantity int    `json:"inventory_quantity"`
	InventoryItemID   int64  `json:"inventory_item_id"`
}

// Timestamp is a leniently parsed RFC 3339 timestamp. Malformed or missing
// values decode to the zero time instead of failing the whole payload.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = parsed
	return nil
}

// Ptr returns the timestamp as a *time.Time, nil when absent or malformed.
func (t Timestamp) Ptr() *time.Time {
	if t.Time.IsZero() {
		return nil
	}
	tt := t.Time
	return &tt
}
