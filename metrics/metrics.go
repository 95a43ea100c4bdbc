// Package metrics exposes Prometheus collectors shared by the fetcher and the
// crawl orchestrator. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request phases.
const (
	PhaseListing = "listing"
	PhaseDetail  = "detail"
)

// Metrics bundles Prometheus collectors for a catalog run.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RetriesTotal     prometheus.Counter
	ErrorsTotal      *prometheus.CounterVec
	CacheHitsTotal   prometheus.Counter
	ListingPages     prometheus.Counter
	RecordsTotal     prometheus.Counter
	DuplicatesTotal  prometheus.Counter
	ExtractionIssues *prometheus.CounterVec
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_requests_total",
				Help: "HTTP requests issued, by crawl phase.",
			},
			[]string{"phase"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_request_duration_seconds",
				Help:    "HTTP request latency, by crawl phase.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase"},
		),
		RetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_retries_total",
				Help: "Retry attempts scheduled after transient fetch failures.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_errors_total",
				Help: "Fetch and parse failures, by error type.",
			},
			[]string{"error_type"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_cache_hits_total",
				Help: "Detail URLs skipped because they were queued recently.",
			},
		),
		ListingPages: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_listing_pages_total",
				Help: "Listing pages parsed.",
			},
		),
		RecordsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_records_total",
				Help: "Product records accepted for output.",
			},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_duplicates_total",
				Help: "Records dropped because their identifier was already emitted.",
			},
		),
		ExtractionIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_extraction_issues_total",
				Help: "Detail pages skipped for missing or invalid required fields, by field.",
			},
			[]string{"field"},
		),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RetriesTotal,
		m.ErrorsTotal,
		m.CacheHitsTotal,
		m.ListingPages,
		m.RecordsTotal,
		m.DuplicatesTotal,
		m.ExtractionIssues,
	)
	return m
}

// IncRequest counts one HTTP request in phase.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError counts a failure under an error type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) IncListingPage() {
	if m == nil {
		return
	}
	m.ListingPages.Inc()
}

func (m *Metrics) IncRecord() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

// IncExtractionIssue counts a skipped detail page once per offending field.
func (m *Metrics) IncExtractionIssue(fields ...string) {
	if m == nil {
		return
	}
	if len(fields) == 0 {
		fields = []string{"document"}
	}
	for _, field := range fields {
		m.ExtractionIssues.WithLabelValues(field).Inc()
	}
}
