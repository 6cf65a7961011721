package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aluiziolira/sanctions-screen/models"
)

// Metrics bundles Prometheus collectors for the screening run.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   prometheus.Counter
	RequestDuration prometheus.Histogram
	ResultsTotal    *prometheus.CounterVec
	EntityLinks     prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sanctions_screen_requests_total",
			Help: "Total search requests issued.",
		},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sanctions_screen_request_duration_seconds",
			Help:    "Latency of search requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	results := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sanctions_screen_results_total",
			Help: "Screened names by outcome.",
		},
		[]string{"status"},
	)
	links := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sanctions_screen_entity_links_total",
			Help: "Distinct entity links found across all result pages.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sanctions_screen_errors_total",
			Help: "Failed searches by error type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, results, links, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		ResultsTotal:    results,
		EntityLinks:     links,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests counter.
func (m *Metrics) IncRequest() {
	if m == nil {
		return
	}
	m.RequestsTotal.Inc()
}

// ObserveDuration records a request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncResult counts one finished name under its status.
func (m *Metrics) IncResult(status models.Status) {
	if m == nil {
		return
	}
	m.ResultsTotal.WithLabelValues(string(status)).Inc()
}

// AddLinks adds n to the entity links counter.
func (m *Metrics) AddLinks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EntityLinks.Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
