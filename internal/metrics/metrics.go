package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openswarm_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openswarm_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ProcessesRunning tracks currently supervised processes
	ProcessesRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openswarm_processes_running",
			Help: "Number of supervised processes currently running",
		},
	)

	// ProcessDuration tracks how long processes run
	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openswarm_process_duration_seconds",
			Help:    "Process duration in seconds",
			Buckets: []float64{0.1, 1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"state"},
	)

	// ChunksCaptured counts output chunks captured per stream kind
	ChunksCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openswarm_chunks_captured_total",
			Help: "Total number of output chunks captured",
		},
		[]string{"stream_kind"},
	)

	// BufferEvictions counts chunks evicted from ring buffers
	BufferEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openswarm_buffer_evictions_total",
			Help: "Total number of chunks evicted due to ring buffer bounds",
		},
		[]string{"stream_kind"},
	)

	// Subscribers tracks attached stream subscribers
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "openswarm_subscribers",
			Help: "Number of attached stream subscribers",
		},
	)

	// SubscriberOverflows counts slow-subscriber overflow events by policy
	SubscriberOverflows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openswarm_subscriber_overflows_total",
			Help: "Total number of subscriber queue overflow events",
		},
		[]string{"policy"},
	)

	// FilterMatches counts redaction rule matches
	FilterMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openswarm_filter_matches_total",
			Help: "Total number of redaction rule matches",
		},
	)

	// FilterErrors counts chunks withheld because a filter failed to apply
	FilterErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openswarm_filter_errors_total",
			Help: "Total number of chunks withheld due to filter errors",
		},
	)

	// LifecycleEventsDropped counts control-channel events dropped because
	// the channel was full (the producer never blocks on it)
	LifecycleEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "openswarm_lifecycle_events_dropped_total",
			Help: "Total number of lifecycle events dropped from the control channel",
		},
	)

	// ToolCalls tracks MCP tool invocations
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openswarm_tool_calls_total",
			Help: "Total number of MCP tool calls",
		},
		[]string{"tool", "status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/mcp", "/mcp/", "/metrics":
		return path
	default:
		if len(path) > 5 && path[:5] == "/mcp/" {
			return "/mcp"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordProcessStart increments the running process gauge
func RecordProcessStart() {
	ProcessesRunning.Inc()
}

// RecordProcessEnd decrements the running process gauge and records duration
func RecordProcessEnd(state string, durationSeconds float64) {
	ProcessesRunning.Dec()
	ProcessDuration.WithLabelValues(state).Observe(durationSeconds)
}

// RecordChunk records a captured output chunk
func RecordChunk(streamKind string) {
	ChunksCaptured.WithLabelValues(streamKind).Inc()
}

// RecordEviction records a ring buffer eviction
func RecordEviction(streamKind string) {
	BufferEvictions.WithLabelValues(streamKind).Inc()
}

// RecordOverflow records a subscriber overflow under the given policy
func RecordOverflow(policy string) {
	SubscriberOverflows.WithLabelValues(policy).Inc()
}

// RecordToolCall records an MCP tool invocation
func RecordToolCall(tool, status string) {
	ToolCalls.WithLabelValues(tool, status).Inc()
}
