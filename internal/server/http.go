package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/config"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/metrics"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/pipeline"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/session"
	"github.com/Team-Ooleem/GoodJob-backend-sub000/internal/transcription"
)

// HTTPServer provides the chunk ingest API plus monitoring endpoints
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	cache     *session.Cache
	processor *pipeline.Processor
	finalizer *pipeline.Finalizer
	sttClient *transcription.Client
	metrics   *metrics.Metrics

	maxChunkBytes int64
	startTime     time.Time
}

// NewHTTPServer creates the HTTP API server
func NewHTTPServer(logger *slog.Logger, cfg *config.Config, cache *session.Cache,
	processor *pipeline.Processor, finalizer *pipeline.Finalizer,
	sttClient *transcription.Client, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:        logger,
		config:        cfg,
		cache:         cache,
		processor:     processor,
		finalizer:     finalizer,
		sttClient:     sttClient,
		metrics:       m,
		maxChunkBytes: int64(cfg.Server.MaxChunkSizeMB) << 20,
		startTime:     time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Chunk ingest endpoint
	mux.HandleFunc("/chunks", h.withMetrics("/chunks", h.handleChunk))

	// Finalization endpoint
	mux.HandleFunc("/canvases/", h.withMetrics("/canvases/{id}/finalize", h.handleCanvas))

	// Session monitoring endpoints
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{key}", h.handleSessionDetail))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleChunk implements the POST /chunks endpoint. It accepts one audio
// chunk as multipart form data and runs the full processing pipeline.
func (h *HTTPServer) handleChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxChunkBytes)
	if err := r.ParseMultipartForm(h.maxChunkBytes); err != nil {
		http.Error(w, "Chunk too large or malformed multipart body", http.StatusRequestEntityTooLarge)
		return
	}

	canvasID := r.FormValue("canvas_id")
	if canvasID == "" {
		http.Error(w, "canvas_id is required", http.StatusBadRequest)
		return
	}

	chunkIndex, err := strconv.Atoi(r.FormValue("chunk_index"))
	if err != nil || chunkIndex < 0 {
		http.Error(w, "chunk_index must be a non-negative integer", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read audio data", http.StatusBadRequest)
		return
	}

	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "audio/webm"
	}

	h.metrics.RecordChunkReceived(len(data))

	input := pipeline.ChunkInput{
		Data:                  data,
		MimeType:              mimeType,
		CanvasID:              canvasID,
		ChunkIndex:            chunkIndex,
		MentorID:              r.FormValue("mentor_id"),
		MenteeID:              r.FormValue("mentee_id"),
		Diarization:           parseBool(r.FormValue("use_diarization")),
		IsNewRecordingSession: parseBool(r.FormValue("is_new_recording_session")),
	}

	result, err := h.processor.ProcessChunk(r.Context(), input)
	if err != nil {
		h.metrics.RecordChunkFailure()
		if errors.Is(err, session.ErrFinalizing) {
			http.Error(w, "Recording is finalizing, chunk rejected", http.StatusConflict)
			return
		}
		http.Error(w, "Chunk processing failed", http.StatusInternalServerError)
		return
	}

	if !result.TimeLimit.Blocked {
		h.metrics.RecordChunkProcessed(result.Duration)
	}
	h.metrics.SetActiveSessions(h.cache.Len())

	response := map[string]interface{}{
		"chunk": result,
	}

	// The last chunk of a recording triggers finalization inline so the
	// client gets the consolidated result in one round trip.
	if parseBool(r.FormValue("is_final_chunk")) {
		finalResult, err := h.finalizer.Finalize(r.Context(), canvasID)
		if err != nil {
			h.logger.Error("Inline finalization failed",
				slog.String("canvas_id", canvasID),
				slog.String("error", err.Error()),
			)
			http.Error(w, "Finalization failed", http.StatusInternalServerError)
			return
		}
		h.recordFinalize(finalResult)
		response["finalize"] = finalResult
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleCanvas implements the POST /canvases/{canvas_id}/finalize endpoint
func (h *HTTPServer) handleCanvas(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/canvases/")
	canvasID, action, found := strings.Cut(rest, "/")
	if !found || action != "finalize" || canvasID == "" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.finalizer.Finalize(r.Context(), canvasID)
	if err != nil {
		h.logger.Error("Finalization failed",
			slog.String("canvas_id", canvasID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Finalization failed", http.StatusInternalServerError)
		return
	}

	h.recordFinalize(result)
	h.metrics.SetActiveSessions(h.cache.Len())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *HTTPServer) recordFinalize(result *pipeline.Result) {
	if result.Empty {
		return
	}
	h.metrics.RecordSessionFinalized(result.Duration, result.MergedChunks)
	h.metrics.RecordFinalize(result.Duration, result.Partial)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := h.cache.All()
	infos := make([]session.Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.GetInfo())
	}

	response := map[string]interface{}{
		"total_sessions": len(infos),
		"timestamp":      time.Now().UTC(),
		"sessions":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleSessionDetail implements the /sessions/{session_key} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionKey := r.URL.Path[len("/sessions/"):]
	if sessionKey == "" {
		http.Error(w, "Session key required", http.StatusBadRequest)
		return
	}

	sess, exists := h.cache.Get(sessionKey)
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sess.GetInfo())
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	sttStats := h.sttClient.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "interview-audio-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"session_cache": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.cache.Len(),
			},
			"transcription": map[string]interface{}{
				"status":          "running",
				"total_requests":  sttStats.TotalRequests,
				"success_rate":    sttStats.SuccessRate,
				"active_requests": sttStats.ActiveRequests,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"port":              h.config.Server.Port,
			"address":           h.config.Server.Address,
			"max_chunk_size_mb": h.config.Server.MaxChunkSizeMB,
		},
		"session": map[string]interface{}{
			"max_sessions":     h.config.Session.MaxSessions,
			"idle_timeout":     h.config.Session.IdleTimeout,
			"warning_minutes":  h.config.Session.WarningMinutes,
			"critical_minutes": h.config.Session.CriticalMinutes,
			"expire_minutes":   h.config.Session.ExpireMinutes,
		},
		"finalize": map[string]interface{}{
			"max_wait":           h.config.Finalize.MaxWait,
			"partial_threshold":  h.config.Finalize.PartialThreshold,
			"segment_batch_size": h.config.Finalize.SegmentBatchSize,
		},
		"transcription": map[string]interface{}{
			"endpoint":       h.config.Transcription.Endpoint,
			"timeout":        h.config.Transcription.Timeout,
			"max_retries":    h.config.Transcription.MaxRetries,
			"max_concurrent": h.config.Transcription.MaxConcurrent,
			"language":       h.config.Transcription.Language,
			// Note: API key is intentionally omitted for security
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"sessions": map[string]interface{}{
			"active_count": h.cache.Len(),
		},
		"transcription": h.sttClient.GetStats(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Interview Audio Processing Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                                  "API documentation",
			"POST /chunks":                           "Ingest one audio chunk (multipart form)",
			"POST /canvases/{canvas_id}/finalize":    "Finalize a canvas recording",
			"GET /sessions":                          "List all in-flight recording sessions",
			"GET /sessions/{session_key}":            "Get detailed session information",
			"GET /health":                            "Service health check",
			"GET /config":                            "Get service configuration",
			"GET /stats":                             "Get service statistics",
			"GET /metrics":                           "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}
