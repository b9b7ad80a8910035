package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/metrics"
)

const maxBodyBytes = 16 << 20

// HostWaiter paces outgoing requests per host.
type HostWaiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Fetcher issues plain HTTP GETs with browser-like headers. Every call gets
// its own timeout.
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter HostWaiter
	metrics *metrics.Registry
	logger  *slog.Logger
}

func NewFetcher(opts Options, limiter HostWaiter, reg *metrics.Registry, logger *slog.Logger) *Fetcher {
	jar, _ := cookiejar.New(nil)
	return &Fetcher{
		client: &http.Client{
			Jar: jar,
		},
		opts:    opts,
		limiter: limiter,
		metrics: reg,
		logger:  logger.With("component", "fetcher"),
	}
}

// NewFetcherWithClient is used by tests to point the fetcher at httptest servers.
func NewFetcherWithClient(client *http.Client, opts Options, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		opts:   opts,
		logger: logger.With("component", "fetcher"),
	}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Get performs one request. Transport failures are returned as errors; any
// status code is returned as a Response for the caller to judge.
func (f *Fetcher) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	// Accept-Encoding is left to the transport so gzip bodies are decoded.
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// FetchPage downloads a product or category page with desktop headers.
// Non-2xx statuses are reported as errors.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.Get(ctx, url, f.pageHeaders())
	if err != nil {
		f.metrics.ObserveFetchFailure()
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		f.metrics.ObserveFetchFailure()
		return nil, ErrBlocked
	case resp.StatusCode == http.StatusTooManyRequests:
		f.metrics.ObserveFetchFailure()
		return nil, ErrRateLimited
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		f.metrics.ObserveFetchFailure()
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	f.logger.Debug("page fetched", "url", url, "bytes", len(resp.Body))
	return resp.Body, nil
}

func (f *Fetcher) pageHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                f.opts.UserAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           f.opts.AcceptLanguage,
		"Connection":                "keep-alive",
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Cache-Control":             "max-age=0",
	}
}

func (f *Fetcher) apiHeaders(userAgent, referer string) map[string]string {
	h := map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "application/json",
		"Accept-Language": f.opts.AcceptLanguage,
	}
	if referer != "" {
		h["Referer"] = referer
	}
	return h
}

func (f *Fetcher) timeout() time.Duration {
	if f.opts.RequestTimeout <= 0 {
		return 10 * time.Second
	}
	return f.opts.RequestTimeout
}
