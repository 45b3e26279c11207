// Package metrics exposes Prometheus collectors for the integrity service on
// a private registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

const namespace = "invoice_integrity"

// AppMetrics holds every collector the service records into
type AppMetrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Validations          *prometheus.CounterVec
	ValidationDataErrors prometheus.Counter

	DuplicateAnalyses   *prometheus.CounterVec
	DuplicateConfidence prometheus.Histogram
	CandidatesCompared  prometheus.Histogram
	AnalysisDuration    prometheus.Histogram

	EventFailures *prometheus.CounterVec
}

// New registers all collectors on a fresh registry. Go and process
// collectors are included when withRuntime is set.
func New(withRuntime bool) *AppMetrics {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(
			prometheus.NewGoCollector(),
			prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{Namespace: namespace}),
		)
	}

	m := &AppMetrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Arithmetic validations by outcome.",
		}, []string{"outcome"}),
		ValidationDataErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_data_errors_total",
			Help:      "Validation tests that failed on non-numeric input.",
		}),
		DuplicateAnalyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_analyses_total",
			Help:      "Duplicate analyses by recommended action.",
		}, []string{"action"}),
		DuplicateConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duplicate_confidence",
			Help:      "Overall confidence of completed duplicate analyses.",
			Buckets:   []float64{0.1, 0.25, 0.5, 0.7, 0.85, 0.9, 0.95},
		}),
		CandidatesCompared: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duplicate_candidates_compared",
			Help:      "Candidates compared per analysis.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duplicate_analysis_duration_seconds",
			Help:      "Wall time of a duplicate analysis including retrieval.",
			Buckets:   prometheus.DefBuckets,
		}),
		EventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Events that could not be published, by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.HTTPRequests, m.HTTPDuration,
		m.Validations, m.ValidationDataErrors,
		m.DuplicateAnalyses, m.DuplicateConfidence, m.CandidatesCompared, m.AnalysisDuration,
		m.EventFailures,
	)
	return m
}

// Registry returns the registry the collectors live in
func (m *AppMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format
func (m *AppMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *AppMetrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveValidation records one validation report
func (m *AppMetrics) ObserveValidation(r *models.ValidationReport) {
	outcome := "invalid"
	switch {
	case r.TestsRun == 0:
		outcome = "nothing_to_validate"
	case r.OverallPassed:
		outcome = "valid"
	}
	m.Validations.WithLabelValues(outcome).Inc()
	if r.DataErrors > 0 {
		m.ValidationDataErrors.Add(float64(r.DataErrors))
	}
}

// ObserveAnalysis records one duplicate analysis
func (m *AppMetrics) ObserveAnalysis(r *models.DuplicateAnalysisResult, d time.Duration) {
	m.DuplicateAnalyses.WithLabelValues(string(r.RecommendedAction)).Inc()
	m.AnalysisDuration.Observe(d.Seconds())
	if conf, ok := r.ConfidenceScore(); ok {
		m.DuplicateConfidence.Observe(conf)
		m.CandidatesCompared.Observe(float64(r.CandidatesCompared))
	}
}

func (m *AppMetrics) ObserveEventFailure(eventType string) {
	m.EventFailures.WithLabelValues(eventType).Inc()
}
