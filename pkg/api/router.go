package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/shardstore/internal/logger"
	"github.com/marmos91/shardstore/pkg/api/handlers"
	"github.com/marmos91/shardstore/pkg/service"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//
// Routes:
//   - GET /health, GET /health/ready - probes
//   - GET /metrics - Prometheus scrape endpoint (when a gatherer is given)
//   - /api/v1/... - status, node, file, and admin operations
//
// No per-request timeout middleware is installed: uploads and downloads
// stream through this server and are bounded by the server's read/write
// timeouts instead.
func NewRouter(svc *service.Service, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	healthHandler := handlers.NewHealthHandler(svc)
	nodeHandler := handlers.NewNodeHandler(svc)
	fileHandler := handlers.NewFileHandler(svc)
	adminHandler := handlers.NewAdminHandler(svc)

	// Health routes - unauthenticated
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", healthHandler.Status)

		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", nodeHandler.List)
			r.Post("/", nodeHandler.Add)
			r.Post("/elect", nodeHandler.Elect)
			r.Get("/{id}/health", nodeHandler.Health)
			r.Patch("/{id}/status", nodeHandler.SetStatus)
		})

		r.Route("/files", func(r chi.Router) {
			r.Get("/", fileHandler.List)
			r.Post("/", fileHandler.Store)
			r.Get("/{id}", fileHandler.Get)
			r.Delete("/{id}", fileHandler.Delete)
			r.Get("/{id}/content", fileHandler.Content)
			r.Get("/{id}/health", fileHandler.Health)
			r.Get("/{id}/integrity", fileHandler.Integrity)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/verify", adminHandler.Verify)
			r.Post("/replicas/ensure", adminHandler.EnsureReplicas)
			r.Post("/pending/drain", adminHandler.DrainPending)
			r.Post("/maintain", adminHandler.Maintain)
			r.Get("/cache/stats", adminHandler.CacheStats)
			r.Post("/cache/flush", adminHandler.CacheFlush)
		})
	})

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
