package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the interview audio service
type Metrics struct {
	// Chunk ingest metrics
	ChunksReceived  prometheus.Counter
	ChunksProcessed prometheus.Counter
	ChunkFailures   prometheus.Counter
	ChunkDuration   prometheus.Histogram
	ChunkSize       prometheus.Histogram

	// Session metrics
	ActiveSessions    prometheus.Gauge
	SessionsCreated   prometheus.Counter
	SessionsFinalized prometheus.Counter
	SessionsEvicted   prometheus.Counter
	SessionDuration   prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Finalization metrics
	FinalizeDuration prometheus.Histogram
	FinalizePartials prometheus.Counter
	MergedChunks     prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Chunk ingest metrics
		ChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_chunks_received_total",
			Help: "Total number of audio chunks received",
		}),
		ChunksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_chunks_processed_total",
			Help: "Total number of audio chunks fully processed",
		}),
		ChunkFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_chunk_failures_total",
			Help: "Total number of chunk pipeline failures",
		}),
		ChunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "interview_chunk_duration_seconds",
			Help:    "Probed playback duration of ingested chunks",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~2 minutes
		}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "interview_chunk_size_bytes",
			Help:    "Size of ingested audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "interview_active_sessions",
			Help: "Current number of in-flight recording sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_sessions_created_total",
			Help: "Total number of recording sessions created",
		}),
		SessionsFinalized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_sessions_finalized_total",
			Help: "Total number of recording sessions finalized",
		}),
		SessionsEvicted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_sessions_evicted_total",
			Help: "Total number of sessions dropped by cache eviction or idle sweep",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "interview_session_duration_seconds",
			Help:    "Total audio duration of finalized sessions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 9), // 10s to ~85 minutes
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "interview_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Finalization metrics
		FinalizeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "interview_finalize_duration_seconds",
			Help:    "Wall time of recording finalization",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		FinalizePartials: promauto.NewCounter(prometheus.CounterOpts{
			Name: "interview_finalize_partials_total",
			Help: "Total number of finalizations that proceeded with partial results",
		}),
		MergedChunks: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "interview_merged_chunks",
			Help:    "Number of chunks merged per finalized recording",
			Buckets: prometheus.LinearBuckets(1, 5, 10), // 1 to 46 chunks
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "interview_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "interview_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkReceived increments the chunks received counter
func (m *Metrics) RecordChunkReceived(sizeBytes int) {
	m.ChunksReceived.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordChunkProcessed records a fully processed chunk
func (m *Metrics) RecordChunkProcessed(durationSeconds float64) {
	m.ChunksProcessed.Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordChunkFailure increments the chunk failure counter
func (m *Metrics) RecordChunkFailure() {
	m.ChunkFailures.Inc()
}

// SetActiveSessions sets the current number of in-flight sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionFinalized records a finalized recording and its duration
func (m *Metrics) RecordSessionFinalized(durationSeconds float64, mergedChunks int) {
	m.SessionsFinalized.Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.MergedChunks.Observe(float64(mergedChunks))
}

// RecordSessionEvicted increments the eviction counter
func (m *Metrics) RecordSessionEvicted() {
	m.SessionsEvicted.Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordFinalize records the wall time of a finalization
func (m *Metrics) RecordFinalize(durationSeconds float64, partial bool) {
	m.FinalizeDuration.Observe(durationSeconds)
	if partial {
		m.FinalizePartials.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
