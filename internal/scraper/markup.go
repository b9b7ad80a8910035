package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/shopee-price-tracker/internal/models"
	"github.com/maltedev/shopee-price-tracker/internal/parser"
)

var (
	titleSelectors = []string{
		`[data-testid*="product"]`,
		`[class*="product-title"]`,
		`[class*="product-name"]`,
	}

	priceSelectors = []string{
		`[data-testid*="price"]`,
		`[class*="price"]`,
		`.product-price`,
		`.current-price`,
		`[itemprop="price"]`,
		`span[class*="price"]`,
	}

	discountSelectors = []string{
		`[data-testid*="discount"]`,
		`[class*="discount"]`,
		`.product-discount`,
	}

	shopSelectors = []string{
		`[data-testid*="shop"]`,
		`[class*="shop-name"]`,
		`[class*="seller"]`,
		`.shop-name`,
	}

	ratingSelectors = []string{
		`[data-testid*="rating"]`,
		`[class*="rating"]`,
		`[class*="star"]`,
		`[itemprop="ratingValue"]`,
	}
)

// MarkupStrategy is the last live strategy: a best-effort scan of the page
// markup with prioritized selector lists. Only title and price are required.
type MarkupStrategy struct {
	opts   Options
	logger *slog.Logger
}

func NewMarkupStrategy(opts Options, logger *slog.Logger) *MarkupStrategy {
	return &MarkupStrategy{
		opts:   opts,
		logger: logger.With("component", "markup"),
	}
}

func (s *MarkupStrategy) Name() string { return "markup" }

func (s *MarkupStrategy) Extract(ctx context.Context, doc *Document, ids models.ParsedIDs) (*models.ProductRecord, bool) {
	if doc == nil || len(doc.Body) == 0 {
		return nil, false
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, false
	}

	title := s.extractTitle(page)
	if title == "" {
		s.logger.Debug("no title found", "url", doc.URL)
		return nil, false
	}

	price, ok := s.extractPrice(page)
	if !ok {
		s.logger.Debug("no price found", "url", doc.URL)
		return nil, false
	}

	return &models.ProductRecord{
		Name:          title,
		Price:         price,
		OriginalPrice: price,
		Discount:      s.extractDiscount(page),
		ShopName:      s.extractShopName(page),
		Rating:        s.extractRating(page),
	}, true
}

func (s *MarkupStrategy) extractTitle(page *goquery.Document) string {
	if og, ok := page.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if title := strings.TrimSpace(og); title != "" {
			return title
		}
	}

	title := strings.TrimSpace(page.Find("title").First().Text())
	if i := strings.Index(title, "|"); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if title != "" {
		return title
	}

	if h1 := strings.TrimSpace(page.Find("h1").First().Text()); h1 != "" {
		return h1
	}

	for _, selector := range titleSelectors {
		var found string
		page.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := strings.TrimSpace(sel.Text())
			if utf8.RuneCountInString(text) > 5 {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}

	return ""
}

func (s *MarkupStrategy) extractPrice(page *goquery.Document) (float64, bool) {
	for _, selector := range priceSelectors {
		var (
			price float64
			found bool
		)
		page.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			price, found = parser.FirstAmountWithin(sel.Text(), s.opts.MinPrice, s.opts.MaxPrice)
			return !found
		})
		if found {
			return price, true
		}
	}
	return 0, false
}

func (s *MarkupStrategy) extractDiscount(page *goquery.Document) float64 {
	for _, selector := range discountSelectors {
		var (
			discount int
			found    bool
		)
		page.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			discount, found = parser.FirstInt(sel.Text())
			return !found
		})
		if found {
			return float64(discount)
		}
	}
	return 0
}

func (s *MarkupStrategy) extractShopName(page *goquery.Document) string {
	for _, selector := range shopSelectors {
		sel := page.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if text := strings.TrimSpace(sel.Text()); text != "" {
			return text
		}
	}
	return models.DefaultShopName
}

func (s *MarkupStrategy) extractRating(page *goquery.Document) *float64 {
	for _, selector := range ratingSelectors {
		var rating *float64
		page.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			v, ok := parser.FirstDecimal(sel.Text())
			if ok && v >= 0 && v <= 5 {
				rating = models.Float(v)
				return false
			}
			return true
		})
		if rating != nil {
			return rating
		}
	}
	return nil
}
