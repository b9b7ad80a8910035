package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/shopee-price-tracker/internal/jsontree"
	"github.com/maltedev/shopee-price-tracker/internal/models"
)

// StructuredDataStrategy reads schema.org Product blocks embedded as JSON-LD.
type StructuredDataStrategy struct {
	logger *slog.Logger
}

func NewStructuredDataStrategy(logger *slog.Logger) *StructuredDataStrategy {
	return &StructuredDataStrategy{logger: logger.With("component", "structured_data")}
}

func (s *StructuredDataStrategy) Name() string { return "structured_data" }

func (s *StructuredDataStrategy) Extract(ctx context.Context, doc *Document, ids models.ParsedIDs) (*models.ProductRecord, bool) {
	if doc == nil || len(doc.Body) == 0 {
		return nil, false
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, false
	}

	var result *models.ProductRecord
	page.Find(`script[type="application/ld+json"]`).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		root, err := jsontree.Decode([]byte(sel.Text()), apiPayloadDepth)
		if err != nil {
			s.logger.Debug("skipping malformed ld+json block", "index", i, "error", err)
			return true
		}

		for _, block := range productBlocks(root) {
			if rec, ok := s.fromBlock(block); ok {
				result = rec
				return false
			}
		}
		return true
	})

	return result, result != nil
}

// productBlocks flattens a JSON-LD payload (object, array or @graph) into candidate objects.
func productBlocks(root *jsontree.Value) []*jsontree.Value {
	var out []*jsontree.Value
	switch root.Kind {
	case jsontree.Object:
		out = append(out, root)
		if graph, ok := root.Get("@graph"); ok && graph.Kind == jsontree.Array {
			out = append(out, graph.Items...)
		}
	case jsontree.Array:
		out = append(out, root.Items...)
	}
	return out
}

func isProductBlock(block *jsontree.Value) bool {
	if block.Kind != jsontree.Object {
		return false
	}

	if t, ok := block.Get("@type"); ok {
		if t.Text() == "Product" {
			return true
		}
		for _, item := range t.Items {
			if item.Text() == "Product" {
				return true
			}
		}
	}

	return block.Has("name") && block.Has("offers")
}

func (s *StructuredDataStrategy) fromBlock(block *jsontree.Value) (*models.ProductRecord, bool) {
	if !isProductBlock(block) {
		return nil, false
	}

	nameVal, _ := block.Get("name")
	name := strings.TrimSpace(nameVal.Text())
	if name == "" {
		return nil, false
	}

	offers, ok := block.Get("offers")
	if !ok {
		return nil, false
	}
	if offers.Kind == jsontree.Array {
		if len(offers.Items) == 0 {
			return nil, false
		}
		offers = offers.Items[0]
	}

	priceVal, ok := offers.Get("price")
	if !ok || !priceVal.Truthy() {
		return nil, false
	}

	price, ok := priceVal.Float()
	if !ok {
		return nil, false
	}

	return &models.ProductRecord{
		Name:          name,
		Price:         price,
		OriginalPrice: price,
		ShopName:      models.DefaultShopName,
	}, true
}
