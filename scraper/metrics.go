package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request phases used as metric labels.
const (
	phaseListing = "listing"
	phaseDetail  = "detail"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry             *prometheus.Registry
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      prometheus.Histogram
	RecordsWrittenTotal  prometheus.Counter
	PagesTotal           prometheus.Counter
	ErrorsTotal          *prometheus.CounterVec
	DetailCacheHitsTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_written_total",
			Help: "Total number of rows appended to the output.",
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total number of listing pages processed.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of fetch errors by phase and type.",
		},
		[]string{"phase", "error_type"},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_detail_cache_hits_total",
			Help: "Detail pages served from the in-run cache instead of the network.",
		},
	)

	registry.MustRegister(requests, requestDuration, records, pages, errorsTotal, cacheHits)

	return &Metrics{
		Registry:             registry,
		RequestsTotal:        requests,
		RequestDuration:      requestDuration,
		RecordsWrittenTotal:  records,
		PagesTotal:           pages,
		ErrorsTotal:          errorsTotal,
		DetailCacheHitsTotal: cacheHits,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncRecords increments the rows written counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsWrittenTotal.Inc()
}

// IncPages increments the processed listing pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncError increments the errors counter for a phase and type label.
func (m *Metrics) IncError(phase, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(phase, errorType).Inc()
}

// IncCacheHit increments the detail cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.DetailCacheHitsTotal.Inc()
}
