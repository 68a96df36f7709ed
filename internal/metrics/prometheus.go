package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the narration engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Document metrics
	ActiveDocuments  prometheus.Gauge
	DocumentsCreated prometheus.Counter
	DocumentsRemoved prometheus.Counter
	DocumentLifetime prometheus.Histogram

	// Boundary refinement metrics
	SegmentsRefined    prometheus.Counter
	RefinerFallbacks   prometheus.Counter
	DegenerateSegments prometheus.Counter
	RefineDuration     prometheus.Histogram

	// Playback metrics
	PlaybackTransitions *prometheus.CounterVec
	SegmentsScheduled   prometheus.Counter
	SegmentsSkipped     prometheus.Counter

	// Export metrics
	Renders        prometheus.Counter
	RenderFailures prometheus.Counter
	RenderDuration prometheus.Histogram
	ExportSize     prometheus.Histogram

	// Recognizer metrics
	RecognizerRequests  prometheus.Counter
	RecognizerSuccesses prometheus.Counter
	RecognizerFailures  prometheus.Counter
	RecognizerDuration  prometheus.Histogram
	RecognizerRetries   prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Document metrics
		ActiveDocuments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "narration_active_documents",
			Help: "Current number of open documents",
		}),
		DocumentsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_documents_created_total",
			Help: "Total number of documents created or reopened",
		}),
		DocumentsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_documents_removed_total",
			Help: "Total number of documents closed",
		}),
		DocumentLifetime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "narration_document_lifetime_seconds",
			Help:    "Time documents stayed open",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5 hours
		}),

		// Boundary refinement metrics
		SegmentsRefined: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_segments_refined_total",
			Help: "Total number of recognizer segments refined",
		}),
		RefinerFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_refiner_fallbacks_total",
			Help: "Total number of segments where no speech was found",
		}),
		DegenerateSegments: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_degenerate_segments_total",
			Help: "Total number of refined segments with non-positive duration",
		}),
		RefineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "narration_refine_duration_seconds",
			Help:    "Time spent extracting the envelope and refining every segment of a recording",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),

		// Playback metrics
		PlaybackTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "narration_playback_transitions_total",
			Help: "Total number of playback state transitions by target state",
		}, []string{"state"}),
		SegmentsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_segments_scheduled_total",
			Help: "Total number of audio segments scheduled for playback",
		}),
		SegmentsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_segments_skipped_total",
			Help: "Total number of degenerate audio segments skipped during scheduling",
		}),

		// Export metrics
		Renders: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_renders_total",
			Help: "Total number of offline renders completed",
		}),
		RenderFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_render_failures_total",
			Help: "Total number of failed offline renders",
		}),
		RenderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "narration_render_duration_seconds",
			Help:    "Time spent rendering and encoding an export",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),
		ExportSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "narration_export_size_bytes",
			Help:    "Size of exported WAV files in bytes",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 12), // 64KB to ~128MB
		}),

		// Recognizer metrics
		RecognizerRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_recognizer_requests_total",
			Help: "Total number of alignment requests sent to the recognizer",
		}),
		RecognizerSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_recognizer_successes_total",
			Help: "Total number of successful alignment requests",
		}),
		RecognizerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_recognizer_failures_total",
			Help: "Total number of failed alignment requests",
		}),
		RecognizerDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "narration_recognizer_duration_seconds",
			Help:    "Duration of alignment requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		RecognizerRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "narration_recognizer_retries_total",
			Help: "Total number of alignment request retries",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "narration_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "narration_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "narration_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveDocuments sets the current number of open documents
func (m *Metrics) SetActiveDocuments(count int) {
	if m == nil {
		return
	}
	m.ActiveDocuments.Set(float64(count))
}

// RecordDocumentCreated increments the documents created counter
func (m *Metrics) RecordDocumentCreated() {
	if m == nil {
		return
	}
	m.DocumentsCreated.Inc()
}

// RecordDocumentRemoved increments the documents removed counter and records lifetime
func (m *Metrics) RecordDocumentRemoved(lifetimeSeconds float64) {
	if m == nil {
		return
	}
	m.DocumentsRemoved.Inc()
	m.DocumentLifetime.Observe(lifetimeSeconds)
}

// RecordRefinement records one refinement pass over a recording
func (m *Metrics) RecordRefinement(segments, fallbacks, degenerate int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SegmentsRefined.Add(float64(segments))
	m.RefinerFallbacks.Add(float64(fallbacks))
	m.DegenerateSegments.Add(float64(degenerate))
	m.RefineDuration.Observe(durationSeconds)
}

// RecordPlaybackTransition counts a transition into state
func (m *Metrics) RecordPlaybackTransition(state string) {
	if m == nil {
		return
	}
	m.PlaybackTransitions.WithLabelValues(state).Inc()
}

// RecordSegmentsScheduled records the outcome of one play command
func (m *Metrics) RecordSegmentsScheduled(scheduled, skipped int) {
	if m == nil {
		return
	}
	m.SegmentsScheduled.Add(float64(scheduled))
	m.SegmentsSkipped.Add(float64(skipped))
}

// RecordRender records a completed export
func (m *Metrics) RecordRender(durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.Renders.Inc()
	m.RenderDuration.Observe(durationSeconds)
	m.ExportSize.Observe(float64(sizeBytes))
}

// RecordRenderFailure increments the render failures counter
func (m *Metrics) RecordRenderFailure() {
	if m == nil {
		return
	}
	m.RenderFailures.Inc()
}

// RecordRecognizerRequest increments recognizer requests counter
func (m *Metrics) RecordRecognizerRequest() {
	if m == nil {
		return
	}
	m.RecognizerRequests.Inc()
}

// RecordRecognizerSuccess records a successful alignment
func (m *Metrics) RecordRecognizerSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RecognizerSuccesses.Inc()
	m.RecognizerDuration.Observe(durationSeconds)
}

// RecordRecognizerFailure records a failed alignment
func (m *Metrics) RecordRecognizerFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RecognizerFailures.Inc()
	m.RecognizerDuration.Observe(durationSeconds)
}

// RecordRecognizerRetry increments the retry counter
func (m *Metrics) RecordRecognizerRetry() {
	if m == nil {
		return
	}
	m.RecognizerRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
