package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/maltedev/shopee-price-tracker/internal/jsontree"
	"github.com/maltedev/shopee-price-tracker/internal/models"
)

const apiPayloadDepth = 64

// PrivateAPIStrategy looks the item up on the storefront's internal item
// endpoint. It needs both identifiers and ignores the page document.
type PrivateAPIStrategy struct {
	fetcher *Fetcher
	opts    Options
	logger  *slog.Logger
}

func NewPrivateAPIStrategy(fetcher *Fetcher, opts Options, logger *slog.Logger) *PrivateAPIStrategy {
	return &PrivateAPIStrategy{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With("component", "private_api"),
	}
}

func (s *PrivateAPIStrategy) Name() string { return "private_api" }

func (s *PrivateAPIStrategy) Extract(ctx context.Context, doc *Document, ids models.ParsedIDs) (*models.ProductRecord, bool) {
	if !ids.HasIdentifiers() {
		return nil, false
	}

	endpoint := s.endpoint(ids)
	resp, err := s.fetcher.Get(ctx, endpoint, s.fetcher.apiHeaders(s.opts.MobileUserAgent, doc.URL))
	if err != nil {
		s.logger.Debug("item lookup failed", "item_id", ids.ItemID, "error", err)
		return nil, false
	}

	if resp.StatusCode != http.StatusOK {
		s.logger.Debug("item lookup refused", "item_id", ids.ItemID, "status", resp.StatusCode)
		return nil, false
	}

	return s.parse(resp.Body)
}

func (s *PrivateAPIStrategy) endpoint(ids models.ParsedIDs) string {
	q := url.Values{}
	q.Set("itemid", ids.ItemID)
	q.Set("shopid", ids.ShopID)
	return strings.TrimRight(s.opts.APIBaseURL, "/") + "/api/v2/item/get?" + q.Encode()
}

// parse reads {data:{name, price, price_before_discount, discount, shop:{name}, rating:{rating_star}}}.
// Prices are fixed-point integers scaled by PriceDivisor.
func (s *PrivateAPIStrategy) parse(body []byte) (*models.ProductRecord, bool) {
	root, err := jsontree.Decode(body, apiPayloadDepth)
	if err != nil {
		return nil, false
	}

	data, ok := root.Get("data")
	if !ok || data.Kind != jsontree.Object {
		return nil, false
	}

	nameVal, _ := data.Get("name")
	name := strings.TrimSpace(nameVal.Text())
	if name == "" {
		return nil, false
	}

	priceVal, _ := data.Get("price")
	rawPrice, ok := priceVal.Float()
	if !ok || rawPrice <= 0 {
		return nil, false
	}

	rawOriginal := rawPrice
	if v, ok := data.Get("price_before_discount"); ok && v.Kind != jsontree.Null {
		f, ok := v.Float()
		if !ok {
			return nil, false
		}
		rawOriginal = f
	}

	var discount float64
	if v, ok := data.Get("discount"); ok && v.Kind != jsontree.Null {
		f, ok := v.Float()
		if !ok {
			return nil, false
		}
		discount = float64(int64(f))
	}

	shopName := models.DefaultShopName
	if shop, ok := data.Get("shop"); ok {
		if n, ok := shop.Get("name"); ok && n.Text() != "" {
			shopName = n.Text()
		}
	}

	var rating *float64
	if r, ok := data.Get("rating"); ok {
		if star, ok := r.Get("rating_star"); ok {
			if f, ok := star.Float(); ok {
				rating = models.Float(f)
			}
		}
	}

	divisor := s.opts.PriceDivisor
	if divisor <= 0 {
		divisor = 1
	}

	return &models.ProductRecord{
		Name:          name,
		Price:         rawPrice / divisor,
		OriginalPrice: rawOriginal / divisor,
		Discount:      discount,
		ShopName:      shopName,
		Rating:        rating,
	}, true
}
