package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/metrics"
	"github.com/maltedev/shopee-price-tracker/internal/models"
)

// Header is the column layout shared by the CSV and spreadsheet sinks.
var Header = []string{"Product Name", "Product ID", "Price", "Discount (%)", "Shop Name", "Rating", "URL", "Timestamp"}

// Sink persists emitted records. It is the only way records leave the tracker.
type Sink interface {
	Name() string
	Append(ctx context.Context, rec *models.ProductRecord) error
}

// Multi appends every record to all of its sinks. Every sink is attempted
// even when an earlier one fails; the joined error names each failure.
type Multi struct {
	sinks   []Sink
	metrics *metrics.Registry
	logger  *slog.Logger
}

func NewMulti(reg *metrics.Registry, logger *slog.Logger, sinks ...Sink) *Multi {
	return &Multi{
		sinks:   sinks,
		metrics: reg,
		logger:  logger.With("component", "sink"),
	}
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Append(ctx context.Context, rec *models.ProductRecord) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.Append(ctx, rec)
		m.metrics.ObserveSink(s.Name(), err)
		if err != nil {
			m.logger.Error("sink append failed", "sink", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Len reports how many sinks are attached.
func (m *Multi) Len() int { return len(m.sinks) }

// row renders rec in Header order.
func row(rec *models.ProductRecord) []string {
	rating := ""
	if rec.Rating != nil {
		rating = strconv.FormatFloat(*rec.Rating, 'f', -1, 64)
	}
	return []string{
		rec.Name,
		rec.ProductID,
		strconv.FormatFloat(rec.Price, 'f', 2, 64),
		strconv.FormatFloat(rec.Discount, 'f', -1, 64),
		rec.ShopName,
		rating,
		rec.URL,
		rec.Timestamp.UTC().Format(time.RFC3339),
	}
}
