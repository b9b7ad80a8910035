package tracker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/models"
	"github.com/maltedev/shopee-price-tracker/internal/sink"
)

var (
	ErrNoURLs     = errors.New("no product URLs configured")
	ErrNoProducts = errors.New("no products discovered")
)

// ProductScraper produces one record per product URL.
type ProductScraper interface {
	ScrapeProduct(ctx context.Context, url string) (*models.ProductRecord, error)
}

// LinkDiscoverer turns a category or search page into product URLs.
type LinkDiscoverer interface {
	Discover(ctx context.Context, categoryURL string, limit int) ([]string, error)
}

// Pacer spaces consecutive scrapes. ratelimit.AdaptiveRateLimiter satisfies it.
type Pacer interface {
	Wait(ctx context.Context) error
	RecordSuccess()
	RecordError()
}

// Result is the outcome of tracking one URL.
type Result struct {
	URL    string                `json:"url"`
	Record *models.ProductRecord `json:"record,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// Summary aggregates a run over several URLs. Succeeded counts records that
// reached the sink, synthetic ones included.
type Summary struct {
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Synthetic int      `json:"synthetic"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

type Tracker struct {
	scraper    ProductScraper
	sink       sink.Sink
	discoverer LinkDiscoverer
	pacer      Pacer
	urls       []string
	logger     *slog.Logger
}

// New creates a tracker. discoverer and pacer may be nil.
func New(scraper ProductScraper, s sink.Sink, discoverer LinkDiscoverer, pacer Pacer, urls []string, logger *slog.Logger) *Tracker {
	return &Tracker{
		scraper:    scraper,
		sink:       s,
		discoverer: discoverer,
		pacer:      pacer,
		urls:       urls,
		logger:     logger.With("component", "tracker"),
	}
}

// TrackProduct scrapes url and appends the record to the sink. The record is
// returned even when the sink fails so callers can still report it.
func (t *Tracker) TrackProduct(ctx context.Context, url string) (*models.ProductRecord, error) {
	rec, err := t.scraper.ScrapeProduct(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to scrape %s: %w", url, err)
	}

	if err := t.sink.Append(ctx, rec); err != nil {
		return rec, fmt.Errorf("failed to store record: %w", err)
	}

	t.logger.Info("product tracked",
		"name", rec.Name,
		"price", rec.Price,
		"source", rec.Source,
		"synthetic", rec.IsSynthetic)
	return rec, nil
}

// TrackAll tracks every configured URL in order.
func (t *Tracker) TrackAll(ctx context.Context) (Summary, error) {
	if len(t.urls) == 0 {
		return Summary{}, ErrNoURLs
	}
	return t.TrackURLs(ctx, t.urls)
}

// TrackFile tracks the URLs listed in path, one per line. Blank lines and
// lines starting with # are ignored. limit <= 0 means no limit.
func (t *Tracker) TrackFile(ctx context.Context, path string, limit int) (Summary, error) {
	urls, err := ReadURLFile(path)
	if err != nil {
		return Summary{}, err
	}
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	if len(urls) == 0 {
		return Summary{}, ErrNoURLs
	}
	return t.TrackURLs(ctx, urls)
}

// TrackCategory discovers product links on a category page and tracks them.
func (t *Tracker) TrackCategory(ctx context.Context, categoryURL string, limit int) (Summary, error) {
	if t.discoverer == nil {
		return Summary{}, fmt.Errorf("category discovery is not configured")
	}

	urls, err := t.discoverer.Discover(ctx, categoryURL, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to discover products: %w", err)
	}
	if len(urls) == 0 {
		return Summary{}, ErrNoProducts
	}

	t.logger.Info("category discovered", "url", categoryURL, "products", len(urls))
	return t.TrackURLs(ctx, urls)
}

// TrackURLs tracks urls sequentially, pacing between scrapes. It stops early
// only when ctx ends, returning what was done so far with ctx.Err().
func (t *Tracker) TrackURLs(ctx context.Context, urls []string) (Summary, error) {
	var summary Summary

	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rec, err := t.trackPaced(ctx, url)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return summary, err
		}

		summary.Attempted++
		res := Result{URL: url, Record: rec}
		switch {
		case err != nil:
			summary.Failed++
			res.Error = err.Error()
			t.logger.Error("failed to track product", "url", url, "error", err)
		case rec.IsSynthetic:
			summary.Succeeded++
			summary.Synthetic++
		default:
			summary.Succeeded++
		}
		summary.Results = append(summary.Results, res)
	}

	t.logger.Info("tracking run complete",
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"synthetic", summary.Synthetic,
		"failed", summary.Failed)
	return summary, nil
}

// trackPaced waits for the pacer and reports the outcome back to it. A
// synthetic record counts as an error because every live strategy missed.
func (t *Tracker) trackPaced(ctx context.Context, url string) (*models.ProductRecord, error) {
	if t.pacer != nil {
		if err := t.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	rec, err := t.TrackProduct(ctx, url)
	if t.pacer != nil {
		if err != nil || rec.IsSynthetic {
			t.pacer.RecordError()
		} else {
			t.pacer.RecordSuccess()
		}
	}
	return rec, err
}

// RunScheduler runs TrackAll immediately and then every interval until ctx ends.
func (t *Tracker) RunScheduler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %s", interval)
	}

	t.logger.Info("scheduler started", "interval", interval, "products", len(t.urls))
	t.scheduledRun(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("scheduler stopping")
			return nil
		case <-ticker.C:
			t.scheduledRun(ctx)
		}
	}
}

func (t *Tracker) scheduledRun(ctx context.Context) {
	if _, err := t.TrackAll(ctx); err != nil && ctx.Err() == nil {
		t.logger.Error("scheduled run failed", "error", err)
	}
}

// ReadURLFile reads one URL per line, skipping blanks and # comments.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read url file: %w", err)
	}
	return urls, nil
}
