package scraper

import (
	"context"
	"errors"
	"log/slog"

	"github.com/maltedev/shopee-price-tracker/internal/metrics"
	"github.com/maltedev/shopee-price-tracker/internal/models"
)

// Chain tries strategies in order and returns the first valid record.
type Chain struct {
	strategies []Strategy
	normalizer *Normalizer
	metrics    *metrics.Registry
	logger     *slog.Logger
}

func NewChain(normalizer *Normalizer, reg *metrics.Registry, logger *slog.Logger, strategies ...Strategy) *Chain {
	return &Chain{
		strategies: strategies,
		normalizer: normalizer,
		metrics:    reg,
		logger:     logger.With("component", "strategy_chain"),
	}
}

// Names lists the strategies in the order they are tried.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Extract returns nil, false when every strategy missed or ctx was cancelled.
func (c *Chain) Extract(ctx context.Context, doc *Document, ids models.ParsedIDs) (*models.ProductRecord, bool) {
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			return nil, false
		}

		candidate, ok := s.Extract(ctx, doc, ids)
		if !ok || candidate == nil {
			c.logger.Debug("strategy missed", "strategy", s.Name(), "url", doc.URL)
			c.metrics.ObserveStrategy(s.Name(), false)
			continue
		}

		candidate.URL = doc.URL
		candidate.ProductID = ids.ItemID
		candidate.Source = s.Name()
		candidate.IsSynthetic = false

		rec, err := c.normalizer.Normalize(candidate)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				c.logger.Debug("strategy result rejected",
					"strategy", s.Name(),
					"field", verr.Field,
					"reason", verr.Reason)
			}
			c.metrics.ObserveStrategy(s.Name(), false)
			continue
		}

		c.metrics.ObserveStrategy(s.Name(), true)
		c.logger.Info("strategy succeeded", "strategy", s.Name(), "url", doc.URL, "price", rec.Price)
		return rec, true
	}

	return nil, false
}
