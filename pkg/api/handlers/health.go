package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/shardstore/pkg/api/respond"
	"github.com/marmos91/shardstore/pkg/service"
)

// startedAt marks process start for uptime reporting.
var startedAt = time.Now()

// HealthHandler serves the liveness, readiness, and status endpoints.
type HealthHandler struct {
	service *service.Service
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(svc *service.Service) *HealthHandler {
	return &HealthHandler{service: svc}
}

// Liveness handles GET /health.
//
// Returns 200 as long as the process is serving requests. No
// dependencies are checked; use Readiness for that.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(startedAt)
	respond.JSON(w, http.StatusOK, respond.Healthy(map[string]interface{}{
		"service":    "shardstore",
		"started_at": startedAt.UTC().Format(time.RFC3339),
		"uptime":     uptime.String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready.
//
// Returns 200 when the metadata store answers a ping, 503 otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Store().Ping(r.Context()); err != nil {
		respond.JSON(w, http.StatusServiceUnavailable, respond.Unhealthy("metadata store unreachable"))
		return
	}
	respond.JSON(w, http.StatusOK, respond.Healthy(nil))
}

// Status handles GET /api/v1/status.
//
// Returns the full cluster statistics snapshot: node counts, chunk
// status breakdown, pending backlog, cache stats, and overall health.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.ShowStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(stats))
}
