package handlers

import (
	"net/http"

	"github.com/marmos91/shardstore/pkg/api/respond"
	"github.com/marmos91/shardstore/pkg/cluster"
	"github.com/marmos91/shardstore/pkg/metadata"
	"github.com/marmos91/shardstore/pkg/service"
)

// NodeHandler serves the node administration endpoints.
type NodeHandler struct {
	service *service.Service
}

// NewNodeHandler creates a node handler.
func NewNodeHandler(svc *service.Service) *NodeHandler {
	return &NodeHandler{service: svc}
}

// nodeView is the API representation of a node. Credentials are never
// echoed back.
type nodeView struct {
	ID        uint                 `json:"id"`
	Name      string               `json:"name"`
	Address   string               `json:"address"`
	Bucket    string               `json:"bucket"`
	Backend   metadata.BackendKind `json:"backend"`
	Status    metadata.NodeStatus  `json:"status"`
	Priority  int                  `json:"priority"`
	IsPrimary bool                 `json:"is_primary"`
	UseSSL    bool                 `json:"use_ssl"`
}

func toNodeView(node *metadata.Node) nodeView {
	return nodeView{
		ID:        node.ID,
		Name:      node.Name,
		Address:   node.Address,
		Bucket:    node.Bucket,
		Backend:   node.Backend,
		Status:    node.Status,
		Priority:  node.Priority,
		IsPrimary: node.IsPrimary,
		UseSSL:    node.UseSSL,
	}
}

// List handles GET /api/v1/nodes.
func (h *NodeHandler) List(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.service.Registry().List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]nodeView, 0, len(nodes))
	for _, node := range nodes {
		views = append(views, toNodeView(node))
	}
	respond.JSON(w, http.StatusOK, respond.OK(views))
}

// addNodeRequest is the body of POST /api/v1/nodes.
type addNodeRequest struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
	Backend   string `json:"backend,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Primary   bool   `json:"primary,omitempty"`
}

// Add handles POST /api/v1/nodes.
//
// Registers a new storage node. The node's bucket is created when the
// node is reachable; an unreachable node is still registered.
func (h *NodeHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respond.JSON(w, http.StatusBadRequest, respond.Error(err.Error()))
		return
	}

	node, err := h.service.AddNode(r.Context(), cluster.AddNodeParams{
		Name:      req.Name,
		Address:   req.Address,
		AccessKey: req.AccessKey,
		SecretKey: req.SecretKey,
		Bucket:    req.Bucket,
		UseSSL:    req.UseSSL,
		Backend:   metadata.BackendKind(req.Backend),
		Priority:  req.Priority,
		Primary:   req.Primary,
	})
	if err != nil {
		respond.JSON(w, http.StatusBadRequest, respond.Error(err.Error()))
		return
	}
	respond.JSON(w, http.StatusCreated, respond.OK(toNodeView(node)))
}

// Elect handles POST /api/v1/nodes/elect.
//
// Forces a primary election and returns the elected node.
func (h *NodeHandler) Elect(w http.ResponseWriter, r *http.Request) {
	node, err := h.service.ElectPrimary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(toNodeView(node)))
}

// Health handles GET /api/v1/nodes/{id}/health.
func (h *NodeHandler) Health(w http.ResponseWriter, r *http.Request) {
	id, err := nodeIDParam(r)
	if err != nil {
		respond.JSON(w, http.StatusBadRequest, respond.Error(err.Error()))
		return
	}

	node, err := h.service.Registry().Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := h.service.Health().NodeHealth(r.Context(), node)
	if err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(report))
}

// setStatusRequest is the body of PATCH /api/v1/nodes/{id}/status.
type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus handles PATCH /api/v1/nodes/{id}/status.
//
// Changes a node's administrative status. Taking a node out of active
// drops its primary flag and triggers a re-election.
func (h *NodeHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := nodeIDParam(r)
	if err != nil {
		respond.JSON(w, http.StatusBadRequest, respond.Error(err.Error()))
		return
	}

	var req setStatusRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respond.JSON(w, http.StatusBadRequest, respond.Error(err.Error()))
		return
	}

	status := metadata.NodeStatus(req.Status)
	if !status.IsValid() {
		respond.JSON(w, http.StatusBadRequest, respond.Error("status must be active, inactive or maintenance"))
		return
	}

	if err := h.service.SetNodeStatus(r.Context(), id, status); err != nil {
		writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respond.OK(map[string]interface{}{
		"node_id": id,
		"status":  status,
	}))
}
