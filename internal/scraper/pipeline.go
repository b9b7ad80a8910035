package scraper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/metrics"
	"github.com/maltedev/shopee-price-tracker/internal/models"
	"github.com/maltedev/shopee-price-tracker/internal/parser"
)

// Scraper runs one tracking call: parse identifiers, obtain a document,
// run the strategy chain and fall back to a synthetic record. It keeps no
// state between calls and is safe for concurrent use.
type Scraper struct {
	opts        Options
	fetcher     *Fetcher
	renderer    Renderer
	chain       *Chain
	synthesizer *Synthesizer
	normalizer  *Normalizer
	metrics     *metrics.Registry
	logger      *slog.Logger
}

// NewDefaultChain wires the live strategies in priority order.
func NewDefaultChain(opts Options, fetcher *Fetcher, normalizer *Normalizer, reg *metrics.Registry, logger *slog.Logger) *Chain {
	return NewChain(normalizer, reg, logger,
		NewPrivateAPIStrategy(fetcher, opts, logger),
		NewStructuredDataStrategy(logger),
		NewEmbeddedStateStrategy(opts, logger),
		NewMarkupStrategy(opts, logger),
	)
}

// New builds a scraper. renderer may be nil when script rendering is disabled.
func New(opts Options, fetcher *Fetcher, renderer Renderer, chain *Chain, synthesizer *Synthesizer, normalizer *Normalizer, reg *metrics.Registry, logger *slog.Logger) *Scraper {
	return &Scraper{
		opts:        opts,
		fetcher:     fetcher,
		renderer:    renderer,
		chain:       chain,
		synthesizer: synthesizer,
		normalizer:  normalizer,
		metrics:     reg,
		logger:      logger.With("component", "scraper"),
	}
}

// ScrapeProduct always yields a record unless ctx is cancelled, in which case
// no record is produced and ctx.Err() is returned.
func (s *Scraper) ScrapeProduct(ctx context.Context, rawURL string) (*models.ProductRecord, error) {
	started := time.Now()
	defer s.metrics.ObserveScrape(started)

	rawURL = strings.TrimSpace(rawURL)
	s.logger.Info("scraping product", "url", rawURL)

	doc := s.obtainDocument(ctx, rawURL)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.extract(ctx, doc)
}

// ScrapeDocument runs the chain over an already fetched page.
func (s *Scraper) ScrapeDocument(ctx context.Context, rawURL string, body []byte) (*models.ProductRecord, error) {
	return s.extract(ctx, &Document{URL: strings.TrimSpace(rawURL), Body: body})
}

func (s *Scraper) extract(ctx context.Context, doc *Document) (*models.ProductRecord, error) {
	ids := parser.ParseIdentifiers(doc.URL)

	if rec, ok := s.chain.Extract(ctx, doc, ids); ok {
		return rec, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Warn("all strategies missed, emitting synthetic record",
		"url", doc.URL,
		"item_id", ids.ItemID)
	s.metrics.ObserveSynthetic()

	rec, err := s.normalizer.Normalize(s.synthesizer.Synthesize(ids, doc.URL))
	if err != nil {
		// Seeds always carry a name, so this only trips on a broken catalog.
		rec = s.synthesizer.Synthesize(ids, doc.URL)
	}
	return rec, nil
}

// obtainDocument prefers a rendered page and falls back to a plain fetch.
// A failed fetch yields a document without a body; the private API strategy
// does not need one.
func (s *Scraper) obtainDocument(ctx context.Context, rawURL string) *Document {
	doc := &Document{URL: rawURL}

	if s.renderer != nil {
		if body, err := s.render(ctx, rawURL); err == nil && len(body) > 0 {
			doc.Body = body
			doc.Rendered = true
			return doc
		} else if err != nil {
			s.metrics.ObserveRenderFailure()
			s.logger.Warn("render failed, falling back to plain fetch", "url", rawURL, "error", err)
		}
	}

	if s.fetcher == nil || ctx.Err() != nil {
		return doc
	}

	body, err := s.fetcher.FetchPage(ctx, rawURL)
	if err != nil {
		s.logger.Warn("page fetch failed", "url", rawURL, "error", err)
		return doc
	}
	doc.Body = body
	return doc
}

func (s *Scraper) render(ctx context.Context, rawURL string) ([]byte, error) {
	timeout := s.opts.RenderTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.renderer.Render(ctx, rawURL)
}
