package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	CompositesCreated   *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	AnalysesIngested    *prometheus.CounterVec
	ReviewsRun          *prometheus.CounterVec
	DraftsCleaned       prometheus.Counter
	AggregationDuration prometheus.Histogram
	ExtractionDuration  prometheus.Histogram
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers all collectors with reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CompositesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "composites_created_total",
			Help: "Composite versions created, by origin",
		}, []string{"origin"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "composite_transitions_total",
			Help: "Workflow actions applied to composites, by action and outcome",
		}, []string{"action", "outcome"}),
		AnalysesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Name: "analyses_ingested_total",
			Help: "Uploaded analyses, by resulting status",
		}, []string{"status"}),
		ReviewsRun: f.NewCounterVec(prometheus.CounterOpts{
			Name: "composite_reviews_total",
			Help: "Periodic composite reviews, by result",
		}, []string{"result"}),
		DraftsCleaned: f.NewCounter(prometheus.CounterOpts{
			Name: "composite_drafts_cleaned_total",
			Help: "Stale draft composites deleted by housekeeping",
		}),
		AggregationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "composite_aggregation_duration_seconds",
			Help:    "Duration of aggregating analyses into a composite",
			Buckets: durationBuckets,
		}),
		ExtractionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "analysis_extraction_duration_seconds",
			Help:    "Duration of extracting readings from an uploaded file",
			Buckets: durationBuckets,
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests, by method, route and status code",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency, by method and route",
			Buckets: durationBuckets,
		}, []string{"method", "route"}),
	}
}

// NewNop returns metrics registered on a private registry, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// CompositeCreated records a new composite version.
func (m *Metrics) CompositeCreated(origin string) {
	m.CompositesCreated.WithLabelValues(origin).Inc()
}

// Transition records a workflow action. err decides the outcome label.
func (m *Metrics) Transition(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
}

// AnalysisIngested records an uploaded analysis.
func (m *Metrics) AnalysisIngested(status string) {
	m.AnalysesIngested.WithLabelValues(status).Inc()
}

// Review records the result of one material review.
func (m *Metrics) Review(result string) {
	m.ReviewsRun.WithLabelValues(result).Inc()
}

// ObserveAggregation records aggregation time since start.
func (m *Metrics) ObserveAggregation(start time.Time) {
	m.AggregationDuration.Observe(time.Since(start).Seconds())
}

// ObserveExtraction records extraction time since start.
func (m *Metrics) ObserveExtraction(start time.Time) {
	m.ExtractionDuration.Observe(time.Since(start).Seconds())
}
