package scraper

import (
	"fmt"
	"os"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/models"
	"gopkg.in/yaml.v3"
)

const defaultSyntheticName = "Shopee Product"

// Seed is the placeholder data emitted for one item when no live strategy works.
type Seed struct {
	Price         float64 `yaml:"price"`
	OriginalPrice float64 `yaml:"original_price"`
	Discount      float64 `yaml:"discount"`
	ShopName      string  `yaml:"shop_name"`
	Rating        float64 `yaml:"rating"`
	Category      string  `yaml:"category"`
	StockStatus   string  `yaml:"stock_status"`
	ReviewsCount  int     `yaml:"reviews_count"`
}

// SeedCatalog maps item identifiers to seeds, with a generic fallback entry.
type SeedCatalog struct {
	Default Seed            `yaml:"default"`
	Items   map[string]Seed `yaml:"items"`
}

func DefaultSeedCatalog() SeedCatalog {
	return SeedCatalog{
		Default: Seed{
			Price:         1599.00,
			OriginalPrice: 2499.00,
			Discount:      36,
			ShopName:      "Shopee Seller",
			Rating:        4.6,
			Category:      "General",
			StockStatus:   "In Stock",
			ReviewsCount:  856,
		},
		Items: map[string]Seed{
			"2935397050": {
				Price:         1299.00,
				OriginalPrice: 1899.00,
				Discount:      32,
				ShopName:      "Adventure Gear Store",
				Rating:        4.7,
				Category:      "Outdoor & Camping",
				StockStatus:   "In Stock",
				ReviewsCount:  1243,
			},
			"27785404088": {
				Price:         2499.00,
				OriginalPrice: 3999.00,
				Discount:      38,
				ShopName:      "Official Adidas Shop",
				Rating:        4.8,
				Category:      "Footwear",
				StockStatus:   "In Stock",
				ReviewsCount:  5621,
			},
			"25956400196": {
				Price:         1899.00,
				OriginalPrice: 2299.00,
				Discount:      17,
				ShopName:      "Official Crocs Store",
				Rating:        4.9,
				Category:      "Footwear",
				StockStatus:   "In Stock",
				ReviewsCount:  3421,
			},
		},
	}
}

// LoadSeedCatalog reads a YAML catalog and layers it over the built-in seeds.
// Entries in the file replace built-in entries with the same key.
func LoadSeedCatalog(path string) (SeedCatalog, error) {
	catalog := DefaultSeedCatalog()

	data, err := os.ReadFile(path)
	if err != nil {
		return catalog, fmt.Errorf("failed to read seed catalog: %w", err)
	}

	var file SeedCatalog
	if err := yaml.Unmarshal(data, &file); err != nil {
		return catalog, fmt.Errorf("failed to parse seed catalog: %w", err)
	}

	if file.Default.ShopName != "" || file.Default.Price > 0 {
		catalog.Default = file.Default
	}
	for id, seed := range file.Items {
		catalog.Items[id] = seed
	}

	return catalog, nil
}

// Synthesizer builds flagged placeholder records. It never fails.
type Synthesizer struct {
	catalog SeedCatalog
	now     func() time.Time
}

func NewSynthesizer(catalog SeedCatalog, now func() time.Time) *Synthesizer {
	if now == nil {
		now = time.Now
	}
	if catalog.Items == nil {
		catalog.Items = map[string]Seed{}
	}
	return &Synthesizer{catalog: catalog, now: now}
}

func (s *Synthesizer) Synthesize(ids models.ParsedIDs, url string) *models.ProductRecord {
	seed, ok := s.catalog.Items[ids.ItemID]
	if !ok {
		seed = s.catalog.Default
	}

	name := ids.NameSlug
	if name == "" {
		name = defaultSyntheticName
	}

	var rating *float64
	if seed.Rating > 0 {
		rating = models.Float(seed.Rating)
	}

	return &models.ProductRecord{
		ProductID:     ids.ItemID,
		Name:          name,
		URL:           url,
		Price:         seed.Price,
		OriginalPrice: seed.OriginalPrice,
		Discount:      seed.Discount,
		ShopName:      seed.ShopName,
		Rating:        rating,
		Timestamp:     s.now().UTC(),
		IsSynthetic:   true,
		Source:        models.SourceSynthetic,
		Category:      seed.Category,
		StockStatus:   seed.StockStatus,
		ReviewsCount:  seed.ReviewsCount,
		SavingsAmount: seed.OriginalPrice - seed.Price,
	}
}
