package models

import (
	"strings"
	"time"
)

const (
	// DefaultShopName is used whenever a source carries no seller name
	DefaultShopName = "Shopee"

	// SourceSynthetic marks records produced from seed data instead of a live strategy
	SourceSynthetic = "synthetic"
)

// ProductRecord is the canonical output of one tracking call.
type ProductRecord struct {
	ProductID     string    `json:"product_id,omitempty"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	Price         float64   `json:"price"`
	OriginalPrice float64   `json:"original_price"`
	Discount      float64   `json:"discount"`
	ShopName      string    `json:"shop_name"`
	Rating        *float64  `json:"rating"`
	Timestamp     time.Time `json:"timestamp"`
	IsSynthetic   bool      `json:"is_synthetic"`
	Source        string    `json:"source"`

	// Informational fields, only populated on synthetic records
	Category      string  `json:"category,omitempty"`
	StockStatus   string  `json:"stock_status,omitempty"`
	ReviewsCount  int     `json:"reviews_count,omitempty"`
	SavingsAmount float64 `json:"savings_amount,omitempty"`
}

// ParsedIDs holds what can be derived from a product URL without network access.
// Empty strings mean the value could not be derived.
type ParsedIDs struct {
	ShopID   string `json:"shop_id,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
	NameSlug string `json:"name_slug,omitempty"`
}

// HasIdentifiers reports whether both halves of the identifier pair are present.
func (p ParsedIDs) HasIdentifiers() bool {
	return p.ShopID != "" && p.ItemID != ""
}

// Clone returns a deep copy so callers can hand records to several sinks safely.
func (r *ProductRecord) Clone() *ProductRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Rating != nil {
		v := *r.Rating
		c.Rating = &v
	}
	return &c
}

// Validate returns the list of invariant violations, empty when the record is emittable.
func (r *ProductRecord) Validate() []string {
	var errors []string

	if strings.TrimSpace(r.Name) == "" {
		errors = append(errors, "name is required")
	}

	if r.URL == "" {
		errors = append(errors, "url is required")
	}

	if r.Rating != nil && (*r.Rating < 0 || *r.Rating > 5) {
		errors = append(errors, "rating must be within [0,5]")
	}

	if r.Timestamp.IsZero() {
		errors = append(errors, "timestamp is required")
	}

	return errors
}

// Float returns a pointer to v, handy for optional ratings.
func Float(v float64) *float64 {
	return &v
}
