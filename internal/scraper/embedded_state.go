package scraper

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/maltedev/shopee-price-tracker/internal/jsontree"
	"github.com/maltedev/shopee-price-tracker/internal/models"
)

// stateDecodeDepth bounds decoding of inline state. The product search itself
// is bounded separately by Options.StateSearchDepth.
const stateDecodeDepth = 256

var stateMarkers = []*regexp.Regexp{
	regexp.MustCompile(`window\.__INITIAL_STATE__\s*=\s*`),
	regexp.MustCompile(`__data__\s*=\s*`),
	regexp.MustCompile(`<script>\s*var\s+\w+\s*=\s*`),
}

// EmbeddedStateStrategy searches application state inlined by the client
// bundle for the first object carrying both a name and a price.
type EmbeddedStateStrategy struct {
	opts   Options
	logger *slog.Logger
}

func NewEmbeddedStateStrategy(opts Options, logger *slog.Logger) *EmbeddedStateStrategy {
	return &EmbeddedStateStrategy{
		opts:   opts,
		logger: logger.With("component", "embedded_state"),
	}
}

func (s *EmbeddedStateStrategy) Name() string { return "embedded_state" }

func (s *EmbeddedStateStrategy) Extract(ctx context.Context, doc *Document, ids models.ParsedIDs) (*models.ProductRecord, bool) {
	if doc == nil || len(doc.Body) == 0 {
		return nil, false
	}

	text := string(doc.Body)
	for _, marker := range stateMarkers {
		for _, loc := range marker.FindAllStringIndex(text, -1) {
			if ctx.Err() != nil {
				return nil, false
			}

			blob, ok := captureObject(text[loc[1]:], s.opts.MaxStateBytes)
			if !ok {
				continue
			}

			root, err := jsontree.Decode([]byte(blob), stateDecodeDepth)
			if err != nil {
				s.logger.Debug("inline state not decodable", "marker", marker.String(), "error", err)
				continue
			}

			if rec, ok := s.search(root); ok {
				return rec, true
			}
		}
	}

	return nil, false
}

func (s *EmbeddedStateStrategy) search(root *jsontree.Value) (*models.ProductRecord, bool) {
	return jsontree.Search(root, s.opts.StateSearchDepth, func(obj *jsontree.Value) (*models.ProductRecord, bool, bool) {
		if !obj.Has("price") || !obj.Has("name") {
			return nil, false, false
		}
		rec, ok := s.build(obj)
		return rec, ok, true
	})
}

// build rejects nodes with an empty name or an out-of-bounds price; the
// optional siblings fall back to defaults when missing or malformed.
func (s *EmbeddedStateStrategy) build(node *jsontree.Value) (*models.ProductRecord, bool) {
	nameVal, _ := node.Get("name")
	name := strings.TrimSpace(nameVal.Text())
	if name == "" {
		return nil, false
	}

	priceVal, _ := node.Get("price")
	if !priceVal.Truthy() {
		return nil, false
	}
	price, ok := priceVal.Float()
	if !ok || !s.opts.withinBounds(price) {
		return nil, false
	}

	rec := &models.ProductRecord{
		Name:          name,
		Price:         price,
		OriginalPrice: price,
		ShopName:      models.DefaultShopName,
	}

	if v, ok := node.Get("original_price"); ok {
		if f, ok := v.Float(); ok {
			rec.OriginalPrice = f
		}
	}
	if v, ok := node.Get("discount"); ok {
		if f, ok := v.Float(); ok {
			rec.Discount = f
		}
	}
	if v, ok := node.Get("shop_name"); ok && v.Text() != "" {
		rec.ShopName = v.Text()
	}
	if v, ok := node.Get("rating"); ok && v.Truthy() {
		if f, ok := v.Float(); ok {
			rec.Rating = models.Float(f)
		}
	}

	return rec, true
}

// captureObject returns the balanced {...} literal at the start of s, skipping
// braces inside string literals. limit caps how far the scan may run.
func captureObject(s string, limit int) (string, bool) {
	if len(s) == 0 || s[0] != '{' {
		return "", false
	}
	if limit <= 0 || limit > len(s) {
		limit = len(s)
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < limit; i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
