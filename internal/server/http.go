package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/narration-engine/internal/audio"
	"github.com/skypro1111/narration-engine/internal/config"
	"github.com/skypro1111/narration-engine/internal/document"
	"github.com/skypro1111/narration-engine/internal/metrics"
	"github.com/skypro1111/narration-engine/internal/playback"
	"github.com/skypro1111/narration-engine/internal/render"
	"github.com/skypro1111/narration-engine/internal/store"
	"github.com/skypro1111/narration-engine/internal/token"
)

const (
	serviceName    = "narration-engine"
	serviceVersion = "1.0.0"
)

// HTTPServer provides the document editing API plus monitoring endpoints
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	docs    *document.Manager
	metrics *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(logger *slog.Logger, appConfig *config.Config, docs *document.Manager, m *metrics.Metrics) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		docs:      docs,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", appConfig.HTTP.Address, appConfig.HTTP.Port),
		Handler:     mux,
		ReadTimeout: 60 * time.Second,
		// Exports of long recordings are rendered inside the request
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("GET /config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("GET /stats", h.withMetrics("/stats", h.handleStats))

	// Documents
	mux.HandleFunc("POST /documents", h.withMetrics("/documents", h.handleCreateDocument))
	mux.HandleFunc("GET /documents", h.withMetrics("/documents", h.handleListDocuments))
	mux.HandleFunc("GET /documents/{id}", h.withMetrics("/documents/{id}", h.handleGetDocument))
	mux.HandleFunc("DELETE /documents/{id}", h.withMetrics("/documents/{id}", h.handleDeleteDocument))
	mux.HandleFunc("POST /documents/{id}/open", h.withMetrics("/documents/{id}/open", h.handleOpenDocument))
	mux.HandleFunc("GET /documents/{id}/tokens", h.withMetrics("/documents/{id}/tokens", h.handleTokens))
	mux.HandleFunc("PATCH /documents/{id}/tokens/{idx}", h.withMetrics("/documents/{id}/tokens/{idx}", h.handleTrim))
	mux.HandleFunc("GET /documents/{id}/export", h.withMetrics("/documents/{id}/export", h.handleExport))

	// Playback
	mux.HandleFunc("POST /documents/{id}/play", h.withMetrics("/documents/{id}/play", h.handlePlay))
	mux.HandleFunc("POST /documents/{id}/pause", h.withMetrics("/documents/{id}/pause", h.handlePause))
	mux.HandleFunc("POST /documents/{id}/stop", h.withMetrics("/documents/{id}/stop", h.handleStop))
	mux.HandleFunc("POST /documents/{id}/toggle", h.withMetrics("/documents/{id}/toggle", h.handleToggle))
	mux.HandleFunc("GET /documents/{id}/state", h.withMetrics("/documents/{id}/state", h.handleState))
	mux.HandleFunc("GET /documents/{id}/ws", h.withMetrics("/documents/{id}/ws", h.handleWebSocket))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("GET /metrics", promhttp.Handler())

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

// Hijack lets the websocket upgrader take over the connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes
func (h *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error("Request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, document.ErrNotFound), errors.Is(err, store.ErrInvalidID), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrNotOpen):
		return http.StatusConflict
	case errors.Is(err, document.ErrTooManyOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, audio.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, audio.ErrDecode), errors.Is(err, document.ErrNoRecognizer), errors.Is(err, render.ErrEmptyTimeline):
		return http.StatusUnprocessableEntity
	case errors.Is(err, token.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrEmptyAudio), errors.Is(err, token.ErrInvalidSequence),
		errors.Is(err, token.ErrNotAudio), errors.Is(err, playback.ErrInvalidOffset), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.docs.GetStats()

	components := map[string]interface{}{
		"document_manager": map[string]interface{}{
			"status":           "running",
			"active_documents": stats.ActiveDocuments,
			"max_open":         stats.MaxOpen,
		},
		"refiner": map[string]interface{}{
			"status":              "running",
			"total_segments":      stats.Refiner.TotalSegments,
			"fallback_percentage": stats.Refiner.FallbackPercentage,
		},
	}
	if stats.Recognizer != nil {
		components["recognizer"] = map[string]interface{}{
			"status":          "running",
			"total_requests":  stats.Recognizer.TotalRequests,
			"success_rate":    stats.Recognizer.SuccessRate,
			"active_requests": stats.Recognizer.ActiveRequests,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": components,
	})
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"http": map[string]interface{}{
			"port":            h.config.HTTP.Port,
			"address":         h.config.HTTP.Address,
			"max_upload_size": h.config.HTTP.MaxUploadSize,
		},
		"refiner":  h.config.Refiner,
		"playback": h.config.Playback,
		"export":   h.config.Export,
		"documents": map[string]interface{}{
			"data_dir":         h.config.Documents.DataDir,
			"max_open":         h.config.Documents.MaxOpen,
			"idle_timeout":     h.config.Documents.IdleTimeout,
			"cleanup_interval": h.config.Documents.CleanupInterval,
		},
		"recognizer": map[string]interface{}{
			"enabled":        h.config.Recognizer.Enabled,
			"endpoint":       h.config.Recognizer.Endpoint,
			"timeout":        h.config.Recognizer.Timeout,
			"max_retries":    h.config.Recognizer.MaxRetries,
			"max_concurrent": h.config.Recognizer.MaxConcurrent,
			"language":       h.config.Recognizer.Language,
			// API key is omitted
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"documents": h.docs.GetStats(),
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Narration Engine",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                                "API documentation",
			"GET /health":                          "Service health check",
			"GET /config":                          "Get service configuration",
			"GET /stats":                           "Get service statistics",
			"GET /metrics":                         "Prometheus metrics",
			"POST /documents":                      "Create a document (multipart: audio, tokens, name)",
			"GET /documents":                       "List stored documents",
			"GET /documents/{id}":                  "Get document details",
			"DELETE /documents/{id}":               "Close and delete a document",
			"POST /documents/{id}/open":            "Reopen a stored document",
			"GET /documents/{id}/tokens":           "Get the token timeline",
			"PATCH /documents/{id}/tokens/{idx}":   "Trim an audio token",
			"POST /documents/{id}/play?start=":     "Start playback",
			"POST /documents/{id}/pause":           "Pause playback",
			"POST /documents/{id}/stop":            "Stop playback",
			"POST /documents/{id}/toggle":          "Toggle pause",
			"GET /documents/{id}/state":            "Get playback state",
			"GET /documents/{id}/export":           "Download the rendered WAV",
			"GET /documents/{id}/ws":               "Playback state feed and controls",
		},
		"timestamp": time.Now().UTC(),
	})
}
