// Package metrics bundles the Prometheus collectors shared by the pipeline stages.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics bundles Prometheus collectors for one process.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	PagesTotal        *prometheus.CounterVec
	ItemsScrapedTotal prometheus.Counter
	DuplicatesTotal   prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	RejectedTotal     *prometheus.CounterVec
	RowsInsertedTotal prometheus.Counter
	RowsSkippedTotal  prometheus.Counter
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
	LastSuccess       prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "books_etl_requests_total",
			Help: "Total search page requests by outcome.",
		},
		[]string{"outcome"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "books_etl_request_duration_seconds",
			Help:    "Latency of search page requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "books_etl_pages_total",
			Help: "Search pages processed by result.",
		},
		[]string{"result"},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "books_etl_items_scraped_total",
			Help: "Unique listings collected from search pages.",
		},
	)
	duplicates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "books_etl_duplicates_total",
			Help: "Listings dropped because their title was already seen in the run.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "books_etl_fetch_errors_total",
			Help: "Search page fetch errors by type.",
		},
		[]string{"error_type"},
	)
	rejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "books_etl_records_rejected_total",
			Help: "Records rejected during normalization by reason.",
		},
		[]string{"reason"},
	)
	inserted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "books_etl_rows_inserted_total",
			Help: "Rows inserted into the sink table.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "books_etl_rows_skipped_total",
			Help: "Rows skipped while preparing insert batches.",
		},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "books_etl_runs_total",
			Help: "Pipeline runs by status.",
		},
		[]string{"status"},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "books_etl_run_duration_seconds",
			Help:    "Wall time of pipeline runs.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		},
	)
	lastSuccess := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "books_etl_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		},
	)

	registry.MustRegister(
		requests, requestDuration, pages, itemsScraped, duplicates, errorsTotal,
		rejected, inserted, skipped, runs, runDuration, lastSuccess,
	)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		PagesTotal:        pages,
		ItemsScrapedTotal: itemsScraped,
		DuplicatesTotal:   duplicates,
		ErrorsTotal:       errorsTotal,
		RejectedTotal:     rejected,
		RowsInsertedTotal: inserted,
		RowsSkippedTotal:  skipped,
		RunsTotal:         runs,
		RunDuration:       runDuration,
		LastSuccess:       lastSuccess,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPage counts a processed page by result (ok, empty, error).
func (m *Metrics) IncPage(result string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(result).Inc()
}

// AddItems increments the items scraped counter.
func (m *Metrics) AddItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.Add(float64(n))
}

// AddDuplicates increments the duplicate listings counter.
func (m *Metrics) AddDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DuplicatesTotal.Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncRejected counts a record rejected by the normalizer.
func (m *Metrics) IncRejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

// AddInserted increments the inserted rows counter.
func (m *Metrics) AddInserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsInsertedTotal.Add(float64(n))
}

// AddSkipped increments the skipped rows counter.
func (m *Metrics) AddSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsSkippedTotal.Add(float64(n))
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration, finished time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
	if status == "success" {
		m.LastSuccess.Set(float64(finished.Unix()))
	}
}

// Push sends the registry to a Prometheus Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
