package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maltedev/shopee-price-tracker/internal/models"
	"github.com/maltedev/shopee-price-tracker/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	clogURL = "https://shopee.ph/adidas-Clog-i.319506484.27785404088"
	tentURL = "https://shopee.ph/Camping-Tent-i.25956400196.25956400196"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(url string, synthetic bool) *models.ProductRecord {
	source := "private_api"
	if synthetic {
		source = models.SourceSynthetic
	}
	return &models.ProductRecord{
		Name:        "product",
		URL:         url,
		Price:       100,
		Timestamp:   time.Now(),
		IsSynthetic: synthetic,
		Source:      source,
	}
}

type MockScraper struct{ mock.Mock }

func (m *MockScraper) ScrapeProduct(ctx context.Context, url string) (*models.ProductRecord, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProductRecord), args.Error(1)
}

type MockSink struct{ mock.Mock }

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Append(ctx context.Context, rec *models.ProductRecord) error {
	return m.Called(ctx, rec).Error(0)
}

type MockDiscoverer struct{ mock.Mock }

func (m *MockDiscoverer) Discover(ctx context.Context, categoryURL string, limit int) ([]string, error) {
	args := m.Called(ctx, categoryURL, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type countingPacer struct {
	mu        sync.Mutex
	waits     int
	successes int
	errors    int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	return ctx.Err()
}

func (p *countingPacer) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.successes++
}

func (p *countingPacer) RecordError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors++
}

func TestTrackProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("appends the record", func(t *testing.T) {
		sc := new(MockScraper)
		sk := new(MockSink)
		rec := record(clogURL, false)
		sc.On("ScrapeProduct", ctx, clogURL).Return(rec, nil)
		sk.On("Append", ctx, rec).Return(nil)

		got, err := New(sc, sk, nil, nil, nil, testLogger()).TrackProduct(ctx, clogURL)
		require.NoError(t, err)
		assert.Same(t, rec, got)
		sk.AssertExpectations(t)
	})

	t.Run("sink failure keeps the record", func(t *testing.T) {
		sc := new(MockScraper)
		sk := new(MockSink)
		rec := record(clogURL, false)
		sc.On("ScrapeProduct", ctx, clogURL).Return(rec, nil)
		sk.On("Append", ctx, rec).Return(errors.New("sheet locked"))

		got, err := New(sc, sk, nil, nil, nil, testLogger()).TrackProduct(ctx, clogURL)
		require.Error(t, err)
		assert.Same(t, rec, got)
	})

	t.Run("scrape cancelled", func(t *testing.T) {
		sc := new(MockScraper)
		sk := new(MockSink)
		sc.On("ScrapeProduct", ctx, clogURL).Return(nil, context.Canceled)

		got, err := New(sc, sk, nil, nil, nil, testLogger()).TrackProduct(ctx, clogURL)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, context.Canceled)
		sk.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})
}

func TestTrackAll(t *testing.T) {
	ctx := context.Background()
	sc := new(MockScraper)
	sk := new(MockSink)
	pacer := &countingPacer{}

	live := record(clogURL, false)
	synthetic := record(tentURL, true)
	sc.On("ScrapeProduct", ctx, clogURL).Return(live, nil)
	sc.On("ScrapeProduct", ctx, tentURL).Return(synthetic, nil)
	sc.On("ScrapeProduct", ctx, "https://shopee.ph/broken").Return(nil, errors.New("boom"))
	sk.On("Append", ctx, mock.Anything).Return(nil)

	tr := New(sc, sk, nil, pacer, []string{clogURL, tentURL, "https://shopee.ph/broken"}, testLogger())
	summary, err := tr.TrackAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Synthetic)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Results, 3)
	assert.NotEmpty(t, summary.Results[2].Error)

	assert.Equal(t, 3, pacer.waits)
	assert.Equal(t, 1, pacer.successes)
	assert.Equal(t, 2, pacer.errors)
}

func TestTrackAll_NoURLs(t *testing.T) {
	_, err := New(new(MockScraper), new(MockSink), nil, nil, nil, testLogger()).TrackAll(context.Background())
	assert.ErrorIs(t, err, ErrNoURLs)
}

func TestTrackURLs_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sc := new(MockScraper)
	sk := new(MockSink)

	sc.On("ScrapeProduct", ctx, clogURL).Return(record(clogURL, false), nil).Run(func(mock.Arguments) { cancel() })
	sk.On("Append", ctx, mock.Anything).Return(nil)

	summary, err := New(sc, sk, nil, nil, nil, testLogger()).TrackURLs(ctx, []string{clogURL, tentURL})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Attempted)
	sc.AssertNotCalled(t, "ScrapeProduct", ctx, tentURL)
}

func TestTrackFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "# watch list\n" + clogURL + "\n\n   \n" + tentURL + "\nhttps://shopee.ph/third-i.1.2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	sc := new(MockScraper)
	sk := new(MockSink)
	sc.On("ScrapeProduct", ctx, mock.Anything).Return(record(clogURL, false), nil)
	sk.On("Append", ctx, mock.Anything).Return(nil)

	tr := New(sc, sk, nil, nil, nil, testLogger())
	summary, err := tr.TrackFile(ctx, path, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Attempted)
	sc.AssertCalled(t, "ScrapeProduct", ctx, clogURL)
	sc.AssertCalled(t, "ScrapeProduct", ctx, tentURL)
	sc.AssertNumberOfCalls(t, "ScrapeProduct", 2)

	_, err = tr.TrackFile(ctx, filepath.Join(t.TempDir(), "missing.txt"), 0)
	assert.Error(t, err)
}

func TestReadURLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("#only comments\n\n"), 0o644))

	urls, err := ReadURLFile(path)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestTrackCategory(t *testing.T) {
	ctx := context.Background()
	category := "https://shopee.ph/Men-Shoes-cat.11021121"

	t.Run("tracks discovered links", func(t *testing.T) {
		sc := new(MockScraper)
		sk := new(MockSink)
		d := new(MockDiscoverer)
		d.On("Discover", ctx, category, 2).Return([]string{clogURL, tentURL}, nil)
		sc.On("ScrapeProduct", ctx, mock.Anything).Return(record(clogURL, false), nil)
		sk.On("Append", ctx, mock.Anything).Return(nil)

		summary, err := New(sc, sk, d, nil, nil, testLogger()).TrackCategory(ctx, category, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Succeeded)
	})

	t.Run("nothing discovered", func(t *testing.T) {
		d := new(MockDiscoverer)
		d.On("Discover", ctx, category, 0).Return([]string{}, nil)

		_, err := New(new(MockScraper), new(MockSink), d, nil, nil, testLogger()).TrackCategory(ctx, category, 0)
		assert.ErrorIs(t, err, ErrNoProducts)
	})

	t.Run("discovery error", func(t *testing.T) {
		d := new(MockDiscoverer)
		d.On("Discover", ctx, category, 0).Return(nil, errors.New("blocked"))

		_, err := New(new(MockScraper), new(MockSink), d, nil, nil, testLogger()).TrackCategory(ctx, category, 0)
		assert.Error(t, err)
	})

	t.Run("no discoverer", func(t *testing.T) {
		_, err := New(new(MockScraper), new(MockSink), nil, nil, nil, testLogger()).TrackCategory(ctx, category, 0)
		assert.Error(t, err)
	})
}

// funcScraper lets scheduler and worker tests count calls without mock
// expectations bound to a specific context.
type funcScraper func(ctx context.Context, url string) (*models.ProductRecord, error)

func (f funcScraper) ScrapeProduct(ctx context.Context, url string) (*models.ProductRecord, error) {
	return f(ctx, url)
}

type nopSink struct{}

func (nopSink) Name() string { return "nop" }
func (nopSink) Append(context.Context, *models.ProductRecord) error { return nil }

func TestRunScheduler(t *testing.T) {
	var calls atomic.Int32
	sc := funcScraper(func(ctx context.Context, url string) (*models.ProductRecord, error) {
		calls.Add(1)
		return record(url, false), nil
	})

	t.Run("runs immediately then on each tick", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		tr := New(sc, nopSink{}, nil, nil, []string{clogURL}, testLogger())

		done := make(chan error, 1)
		go func() { done <- tr.RunScheduler(ctx, 20*time.Millisecond) }()

		require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("scheduler did not stop")
		}
	})

	t.Run("first run happens before the first tick", func(t *testing.T) {
		calls.Store(0)
		ctx, cancel := context.WithCancel(context.Background())
		tr := New(sc, nopSink{}, nil, nil, []string{clogURL}, testLogger())

		go func() { _ = tr.RunScheduler(ctx, time.Hour) }()
		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
		cancel()
	})

	t.Run("invalid interval", func(t *testing.T) {
		tr := New(sc, nopSink{}, nil, nil, []string{clogURL}, testLogger())
		assert.Error(t, tr.RunScheduler(context.Background(), 0))
	})
}

func TestWorker(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	sc := funcScraper(func(ctx context.Context, url string) (*models.ProductRecord, error) {
		mu.Lock()
		defer mu.Unlock()
		seen[url]++
		if url == "https://shopee.ph/flaky" && seen[url] == 1 {
			return nil, errors.New("temporary")
		}
		return record(url, false), nil
	})

	q := queue.NewBatchQueue(queue.NewInMemoryQueue(), 2)
	w := NewWorker(New(sc, nopSink{}, nil, nil, nil, testLogger()), q, nil, 1, testLogger())

	tasks, err := w.Enqueue([]string{clogURL, " ", tentURL, "https://shopee.ph/flaky"}, 5)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
	assert.Equal(t, 3, w.Pending())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[clogURL] == 1 && seen[tentURL] == 1 && seen["https://shopee.ph/flaky"] == 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	sc := funcScraper(func(ctx context.Context, url string) (*models.ProductRecord, error) {
		calls.Add(1)
		return nil, errors.New("always")
	})

	inner := queue.NewInMemoryQueue()
	q := queue.NewBatchQueue(inner, 1)
	w := NewWorker(New(sc, nopSink{}, nil, nil, nil, testLogger()), q, nil, 2, testLogger())

	_, err := w.Enqueue([]string{clogURL}, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 0, w.Pending())
}

type failingSink struct{ calls atomic.Int32 }

func (s *failingSink) Name() string { return "failing" }
func (s *failingSink) Append(context.Context, *models.ProductRecord) error {
	s.calls.Add(1)
	return errors.New("sink down")
}

func TestWorker_SinkFailureIsNotRetried(t *testing.T) {
	var scrapes atomic.Int32
	sc := funcScraper(func(ctx context.Context, url string) (*models.ProductRecord, error) {
		scrapes.Add(1)
		return record(url, false), nil
	})
	snk := &failingSink{}

	q := queue.NewBatchQueue(queue.NewInMemoryQueue(), 1)
	w := NewWorker(New(sc, snk, nil, nil, nil, testLogger()), q, nil, 3, testLogger())

	_, err := w.Enqueue([]string{clogURL}, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	require.Eventually(t, func() bool { return snk.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), scrapes.Load())
	assert.Equal(t, int32(1), snk.calls.Load())
	assert.Equal(t, 0, w.Pending())
}
