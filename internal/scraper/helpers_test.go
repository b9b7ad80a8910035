package scraper

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/models"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClock() time.Time { return fixedNow }

// handlerTransport serves every request from h, whatever the host.
type handlerTransport struct {
	h http.Handler
}

func (t handlerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func newTestFetcher(h http.Handler) *Fetcher {
	return NewFetcherWithClient(&http.Client{Transport: handlerTransport{h: h}}, DefaultOptions(), testLogger())
}

// siteMux routes the item API and product pages separately and counts API hits.
type siteMux struct {
	apiStatus int
	apiBody   string
	pageBody  string
	apiCalls  atomic.Int32
	pageCalls atomic.Int32
}

func (m *siteMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v2/item/get" {
		m.apiCalls.Add(1)
		status := m.apiStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(m.apiBody))
		return
	}

	m.pageCalls.Add(1)
	if m.pageBody == "" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	_, _ = w.Write([]byte(m.pageBody))
}

type stubStrategy struct {
	name  string
	rec   *models.ProductRecord
	calls int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Extract(ctx context.Context, doc *Document, ids models.ParsedIDs) (*models.ProductRecord, bool) {
	s.calls++
	if s.rec == nil {
		return nil, false
	}
	return s.rec.Clone(), true
}

type stubRenderer struct {
	body []byte
	err  error
	hits int
}

func (r *stubRenderer) Render(ctx context.Context, url string) ([]byte, error) {
	r.hits++
	return r.body, r.err
}

const adidasURL = "https://shopee.ph/adidas-Lifestyle-Adilette-Clog-i.319506484.27785404088"
