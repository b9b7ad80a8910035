package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns a private prometheus registry. All helper methods are safe to
// call on a nil *Registry so components can run without metrics.
type Registry struct {
	reg              *prometheus.Registry
	StrategyHits     *prometheus.CounterVec
	StrategyMisses   *prometheus.CounterVec
	SyntheticRecords prometheus.Counter
	RenderFailures   prometheus.Counter
	FetchFailures    prometheus.Counter
	SinkAppends      *prometheus.CounterVec
	SinkFailures     *prometheus.CounterVec
	ScrapeSeconds    prometheus.Histogram
	QueueDepth       prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_tracker_strategy_hits_total",
		Help: "Records produced by each extraction strategy.",
	}, []string{"strategy"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_tracker_strategy_misses_total",
		Help: "Extraction attempts that yielded no valid record.",
	}, []string{"strategy"})
	synthetic := prometheus.NewCounter(prometheus.CounterOpts{Name: "price_tracker_synthetic_records_total"})
	renderFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "price_tracker_render_failures_total"})
	fetchFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "price_tracker_fetch_failures_total"})
	sinkAppends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_tracker_sink_appends_total",
	}, []string{"sink"})
	sinkFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "price_tracker_sink_failures_total",
	}, []string{"sink"})
	scrapeSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "price_tracker_scrape_seconds",
		Buckets: prometheus.DefBuckets,
	})
	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{Name: "price_tracker_queue_depth"})

	r.MustRegister(hits, misses, synthetic, renderFailures, fetchFailures, sinkAppends, sinkFailures, scrapeSeconds, queueDepth)
	return &Registry{
		reg:              r,
		StrategyHits:     hits,
		StrategyMisses:   misses,
		SyntheticRecords: synthetic,
		RenderFailures:   renderFailures,
		FetchFailures:    fetchFailures,
		SinkAppends:      sinkAppends,
		SinkFailures:     sinkFailures,
		ScrapeSeconds:    scrapeSeconds,
		QueueDepth:       queueDepth,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveStrategy(name string, hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.StrategyHits.WithLabelValues(name).Inc()
		return
	}
	r.StrategyMisses.WithLabelValues(name).Inc()
}

func (r *Registry) ObserveSynthetic() {
	if r == nil {
		return
	}
	r.SyntheticRecords.Inc()
}

func (r *Registry) ObserveRenderFailure() {
	if r == nil {
		return
	}
	r.RenderFailures.Inc()
}

func (r *Registry) ObserveFetchFailure() {
	if r == nil {
		return
	}
	r.FetchFailures.Inc()
}

func (r *Registry) ObserveSink(name string, err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.SinkFailures.WithLabelValues(name).Inc()
		return
	}
	r.SinkAppends.WithLabelValues(name).Inc()
}

func (r *Registry) ObserveScrape(started time.Time) {
	if r == nil {
		return
	}
	r.ScrapeSeconds.Observe(time.Since(started).Seconds())
}

func (r *Registry) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.QueueDepth.Set(float64(n))
}
