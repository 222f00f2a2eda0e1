package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yte121/openswarm/internal/auth"
	"github.com/yte121/openswarm/internal/gateway"
	"github.com/yte121/openswarm/internal/logger"
	"github.com/yte121/openswarm/internal/metrics"
	"github.com/yte121/openswarm/internal/schedule"
)

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Pinger is implemented by launchers that can verify backend
// connectivity (the Docker launcher pings the daemon).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps the MCP server with the process gateway and stores
type Server struct {
	gateway        *gateway.Gateway
	authStore      *auth.Store
	scheduleStore  *schedule.Store
	scheduleRunner *schedule.Runner
	pinger         Pinger
	mcpServer      *mcp.Server // The underlying MCP server for handling requests
	registry       *Registry   // Tool registry for unified tool management
}

// ServerConfig holds optional server dependencies
type ServerConfig struct {
	ScheduleStore *schedule.Store
	Pinger        Pinger
}

// NewServer creates a new MCP server instance
func NewServer(gw *gateway.Gateway, authStore *auth.Store, cfg *ServerConfig) *Server {
	s := &Server{
		gateway:   gw,
		authStore: authStore,
		registry:  NewRegistry(),
	}

	if cfg != nil {
		s.scheduleStore = cfg.ScheduleStore
		s.pinger = cfg.Pinger
	}

	// Initialize schedule runner if store is provided
	if s.scheduleStore != nil {
		s.scheduleRunner = schedule.NewRunner(s.scheduleStore, s.executeSchedule)
	}

	// Register all tools with the registry
	s.registerAllTools(s.registry)

	return s
}

// Close shuts down the server and cleans up resources
func (s *Server) Close() {
	// Stop schedule runner first (waits for in-flight)
	if s.scheduleRunner != nil {
		s.scheduleRunner.Stop()
	}
}

// Serve starts the MCP HTTP server
func (s *Server) Serve(addr string) error {
	// Start schedule runner if configured
	if s.scheduleRunner != nil {
		s.scheduleRunner.Start()
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "openswarm",
		Version: "0.1.0",
	}, nil)

	// Register tools from registry
	s.registry.RegisterWithMCPServer(s.mcpServer)

	// Create HTTP handler with streamable transport
	// Enable EventStore for SSE stream resumption support
	mcpHandler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.mcpServer
	}, &mcp.StreamableHTTPOptions{
		EventStore: mcp.NewMemoryEventStore(nil),
	})

	// Wrap with request ID and logging middleware
	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Generate or extract request ID
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add request ID to response headers
		w.Header().Set("X-Request-ID", requestID)

		// Add to context for downstream handlers
		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		ctx = WithRemoteAddr(ctx, r.RemoteAddr)
		r = r.WithContext(ctx)

		logger.Info("HTTP %s %s from %s [request_id=%s]", r.Method, r.URL.Path, r.RemoteAddr, requestID)
		mcpHandler.ServeHTTP(w, r)
	})

	// Wrap with auth middleware (Bearer token only)
	authedHandler := auth.Middleware(s.authStore)(loggingHandler)

	// Wrap with rate limiting (after auth, so we can rate limit per-token)
	rateLimiter := auth.DefaultRateLimiter() // 10 req/s, burst 20
	rateLimitedHandler := auth.RateLimitMiddleware(rateLimiter)(authedHandler)

	// Create main mux with health endpoints (no auth required) and MCP endpoints
	mainMux := http.NewServeMux()

	// Health endpoints - no authentication required
	mainMux.HandleFunc("/health", s.handleHealthCheck)
	mainMux.HandleFunc("/ready", s.handleReadinessCheck)

	// Metrics endpoint - no authentication required (Prometheus scraping)
	mainMux.Handle("/metrics", metrics.Handler())

	// MCP endpoints - require authentication, rate limiting, wrapped with metrics middleware
	mainMux.Handle("/mcp", metrics.Middleware(rateLimitedHandler))
	mainMux.Handle("/mcp/", metrics.Middleware(rateLimitedHandler))

	logger.Info("🚀 Openswarm MCP server listening on %s", addr)
	logger.Info("💚 Health check: http://localhost%s/health", addr)
	logger.Info("💚 Readiness check: http://localhost%s/ready", addr)
	logger.Info("📊 Metrics: http://localhost%s/metrics", addr)
	return http.ListenAndServe(addr, mainMux)
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck verifies the server can serve requests
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Check launcher backend availability when one is wired
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"not ready","reason":"launcher backend unavailable"}`))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// GetRegistry returns the tool registry for external access
func (s *Server) GetRegistry() *Registry {
	return s.registry
}

// executeSchedule is called by the schedule runner to launch a
// scheduled command. It returns the process id of the launched process.
func (s *Server) executeSchedule(ctx context.Context, sched *schedule.Schedule) (string, error) {
	p, err := s.gateway.Stream(ctx, gateway.LaunchRequest{
		Command:          sched.Command,
		WorkingDirectory: sched.WorkingDir,
		Environment:      sched.Environment,
	})
	if err != nil {
		return "", err
	}
	return p.ID, nil
}
