package scraper

import (
	"math"
	"strings"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/models"
)

// Normalizer turns a candidate record into an emittable one or rejects it.
type Normalizer struct {
	minPrice float64
	maxPrice float64
	now      func() time.Time
}

func NewNormalizer(opts Options, now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{
		minPrice: opts.MinPrice,
		maxPrice: opts.MaxPrice,
		now:      now,
	}
}

// Normalize returns a defaulted copy of rec stamped with the current time.
// Synthetic records skip the price bounds since their prices come from seeds.
func (n *Normalizer) Normalize(rec *models.ProductRecord) (*models.ProductRecord, error) {
	if rec == nil {
		return nil, &ValidationError{Field: "record", Reason: "missing"}
	}

	out := rec.Clone()
	out.Name = strings.TrimSpace(out.Name)
	if out.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "empty after trimming"}
	}

	if !finite(out.Price) {
		return nil, &ValidationError{Field: "price", Reason: "not a finite number"}
	}
	if !out.IsSynthetic && !(out.Price > n.minPrice && out.Price < n.maxPrice) {
		return nil, &ValidationError{Field: "price", Reason: "outside sanity bounds"}
	}

	if !finite(out.OriginalPrice) || out.OriginalPrice <= 0 {
		out.OriginalPrice = out.Price
	}

	switch {
	case math.IsNaN(out.Discount), out.Discount < 0:
		out.Discount = 0
	case out.Discount > 100:
		out.Discount = 100
	}

	out.ShopName = strings.TrimSpace(out.ShopName)
	if out.ShopName == "" {
		out.ShopName = models.DefaultShopName
	}

	if out.Rating != nil && !(*out.Rating >= 0 && *out.Rating <= 5) {
		out.Rating = nil
	}

	out.Timestamp = n.now().UTC()
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
