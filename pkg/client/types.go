package client

import (
	"encoding/json"
	"time"
)

// Item is a Loyverse catalog item. TotalStock is derived by this proxy and is
// not part of the upstream record. Upstream fields without a struct field
// are kept in Extra and written back on marshal.
type Item struct {
	ID          string     `json:"id"`
	Handle      string     `json:"handle,omitempty"`
	ReferenceID string     `json:"reference_id,omitempty"`
	Name        string     `json:"item_name"`
	Description string     `json:"description,omitempty"`
	CategoryID  string     `json:"category_id,omitempty"`
	Color       string     `json:"color,omitempty"`
	Form        string     `json:"form,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Option1Name string     `json:"option1_name,omitempty"`
	Option2Name string     `json:"option2_name,omitempty"`
	Option3Name string     `json:"option3_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	Variants    []Variant  `json:"variants"`
	TotalStock  int        `json:"total_stock"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Variant is a purchasable SKU within an item. Unlisted upstream fields
// (stores, per-store pricing) are kept in Extra.
type Variant struct {
	ID                 string   `json:"variant_id"`
	ItemID             string   `json:"item_id,omitempty"`
	SKU                string   `json:"sku,omitempty"`
	ReferenceVariantID string   `json:"reference_variant_id,omitempty"`
	Option1Value       string   `json:"option1_value,omitempty"`
	Option2Value       string   `json:"option2_value,omitempty"`
	Option3Value       string   `json:"option3_value,omitempty"`
	Barcode            string   `json:"barcode,omitempty"`
	Cost               float64  `json:"cost"`
	DefaultPrice       *float64 `json:"default_price,omitempty"`
	TotalStock         int      `json:"total_stock"`

	Extra map[string]json.RawMessage `json:"-"`
}

// OptionValues returns the non-empty option values of the variant.
func (v Variant) OptionValues() []string {
	values := make([]string, 0, 3)
	for _, val := range []string{v.Option1Value, v.Option2Value, v.Option3Value} {
		if val != "" {
			values = append(values, val)
		}
	}
	return values
}

// VariantIDs returns the ids of all variants of the item.
func (i Item) VariantIDs() []string {
	ids := make([]string, 0, len(i.Variants))
	for _, v := range i.Variants {
		ids = append(ids, v.ID)
	}
	return ids
}

// IsDeleted reports whether upstream marked the item as deleted.
func (i Item) IsDeleted() bool {
	return i.DeletedAt != nil
}

// ItemPage is one cursor page of the items endpoint.
type ItemPage struct {
	Items  []Item `json:"items"`
	Cursor string `json:"cursor,omitempty"`
}

// InventoryLevel is the stock of one variant at one store.
type InventoryLevel struct {
	VariantID string    `json:"variant_id"`
	StoreID   string    `json:"store_id"`
	InStock   float64   `json:"in_stock"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryPage is one cursor page of the inventory endpoint.
type InventoryPage struct {
	Levels []InventoryLevel `json:"inventory_levels"`
	Cursor string           `json:"cursor,omitempty"`
}
