package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/models"
)

var (
	ErrInvalidURL  = errors.New("invalid product URL")
	ErrBlocked     = errors.New("blocked by anti-bot protection")
	ErrRateLimited = errors.New("rate limited by target site")
	ErrBadStatus   = errors.New("unexpected response status")
)

// Document is the page a strategy works on. Body is nil when neither a
// rendered nor a plain fetch produced anything.
type Document struct {
	URL      string
	Body     []byte
	Rendered bool
}

// Strategy is one self-contained extraction method. A false return is a miss,
// never an error: the chain simply moves on to the next strategy.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc *Document, ids models.ParsedIDs) (*models.ProductRecord, bool)
}

// Renderer executes client-side scripts and returns the resulting markup.
type Renderer interface {
	Render(ctx context.Context, url string) ([]byte, error)
}

// ValidationError reports a candidate record that violates an output invariant.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Options carries the site specific constants. The price divisor and bounds
// were measured against the Philippine storefront and may need changing for
// other regions.
type Options struct {
	BaseURL          string
	APIBaseURL       string
	UserAgent        string
	MobileUserAgent  string
	AcceptLanguage   string
	RequestTimeout   time.Duration
	RenderTimeout    time.Duration
	MinPrice         float64
	MaxPrice         float64
	PriceDivisor     float64
	StateSearchDepth int
	MaxStateBytes    int
}

func DefaultOptions() Options {
	return Options{
		BaseURL:          "https://shopee.ph",
		APIBaseURL:       "https://shopee.ph",
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		MobileUserAgent:  "Mozilla/5.0 (Linux; Android 10) AppleWebKit/537.36",
		AcceptLanguage:   "en-US,en;q=0.9",
		RequestTimeout:   10 * time.Second,
		RenderTimeout:    30 * time.Second,
		MinPrice:         10,
		MaxPrice:         1_000_000,
		PriceDivisor:     100_000,
		StateSearchDepth: 10,
		MaxStateBytes:    8 << 20,
	}
}

func (o Options) withinBounds(price float64) bool {
	return price > o.MinPrice && price < o.MaxPrice
}
