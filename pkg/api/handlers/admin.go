package handlers

import (
	"net/http"

	"github.com/marmos91/shardstore/pkg/api/respond"
	"github.com/marmos91/shardstore/pkg/service"
)

// AdminHandler serves the maintenance endpoints: verification sweeps,
// replica top-ups, backlog drains, and cache administration.
type AdminHandler struct {
	service *service.Service
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(svc *service.Service) *AdminHandler {
	return &AdminHandler{service: svc}
}

// verifyRequest narrows a verification sweep. Both fields empty means
// the whole cluster.
type verifyRequest struct {
	NodeID uint   `json:"node_id,omitempty"`
	FileID string `json:"file_id,omitempty"`
}

// Verify handles POST /api/v1/admin/verify.
//
// Runs a verification and repair sweep over the whole cluster, one
// node, or one file depending on the request body. An empty body sweeps
// everything.
func (h *AdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if r.ContentLength > 0 {
		if err := decodeJSONBody(w, r, &req); err != nil {
			respond.JSON(w, http.StatusBadRequest, respond.Error(err.Error()))
			return
		}
	}

	ctx := r.Context()
	switch {
	case req.FileID != "":
		stats, err := h.service.VerifyFile(ctx, req.FileID)
		if err != nil {
			writeError(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, respond.OK(stats))
	case req.NodeID != 0:
		stats, err := h.service.VerifyNode(ctx, req.NodeID)
		if err != nil {
			writeError(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, respond.OK(stats))
	default:
		stats, err := h.service.VerifyAll(ctx)
		if err != nil {
			writeError(w, err)
			return
		}
		respond.JSON(w, http.StatusOK, respond.OK(stats))
	}
}

// EnsureReplicas handles POST /api/v1/admin/replicas/ensure.
//
// Tops every uploaded primary up to the minimum replica count.
func (h *AdminHandler) EnsureReplicas(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.EnsureReplicas(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(stats))
}

// DrainPending handles POST /api/v1/admin/pending/drain.
//
// Walks the pending-replication backlog once.
func (h *AdminHandler) DrainPending(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DrainPendingReplications(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(stats))
}

// Maintain handles POST /api/v1/admin/maintain.
//
// Chains a verification sweep, a replica top-up, and a backlog drain.
func (h *AdminHandler) Maintain(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Maintain(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(stats))
}

// CacheStats handles GET /api/v1/admin/cache/stats.
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, respond.OK(h.service.Cache().Stats()))
}

// CacheFlush handles POST /api/v1/admin/cache/flush.
func (h *AdminHandler) CacheFlush(w http.ResponseWriter, r *http.Request) {
	h.service.Cache().Flush()
	respond.JSON(w, http.StatusOK, respond.OK(nil))
}
