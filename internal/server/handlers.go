package server

import (
	"fmt"
	"net/http"

	"github.com/risquanter/riskcast/internal/interfaces"
	"github.com/risquanter/riskcast/internal/models"
)

// --- Tree handlers ---

func (s *Server) handleTreeCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		trees, err := s.app.TreeService.ListTrees(r.Context())
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{"trees": trees})

	case http.MethodPost:
		var req struct {
			Name  string             `json:"name"`
			Nodes []*models.RiskNode `json:"nodes"`
		}
		if !DecodeJSON(w, r, &req) {
			return
		}
		tree, err := s.app.TreeService.CreateTree(r.Context(), req.Name, req.Nodes)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, tree)

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request, treeID string) {
	switch r.Method {
	case http.MethodGet:
		tree, err := s.app.TreeService.GetTree(r.Context(), treeID)
		if err != nil {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("Tree not found: %v", err))
			return
		}
		WriteJSON(w, http.StatusOK, tree)

	case http.MethodDelete:
		if err := s.app.TreeService.DeleteTree(r.Context(), treeID); err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"deleted": treeID})

	default:
		RequireMethod(w, r, http.MethodGet, http.MethodDelete)
	}
}

// --- Node handlers ---

func (s *Server) handleNodeAdd(w http.ResponseWriter, r *http.Request, treeID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var node models.RiskNode
	if !DecodeJSON(w, r, &node) {
		return
	}
	tree, err := s.app.TreeService.AddNode(r.Context(), treeID, &node)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, tree)
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request, treeID, nodeID string) {
	switch r.Method {
	case http.MethodPut:
		var node models.RiskNode
		if !DecodeJSON(w, r, &node) {
			return
		}
		node.ID = nodeID
		tree, err := s.app.TreeService.UpdateNode(r.Context(), treeID, &node)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, tree)

	case http.MethodDelete:
		tree, err := s.app.TreeService.RemoveNode(r.Context(), treeID, nodeID)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, tree)

	default:
		RequireMethod(w, r, http.MethodPut, http.MethodDelete)
	}
}

// --- Simulation handlers ---

// simulateRequest is the JSON body shared by the simulate and curves
// endpoints. Zero values defer to server-configured defaults.
type simulateRequest struct {
	NodeID      string             `json:"node_id"`
	NodeIDs     []string           `json:"node_ids"`
	NTrials     int                `json:"n_trials"`
	NTicks      int                `json:"n_ticks"`
	Depth       int                `json:"depth"`
	Parallelism int                `json:"parallelism"`
	Seeds       *models.SeedTriple `json:"seeds"`
}

func (req *simulateRequest) options() interfaces.SimulateOptions {
	opts := interfaces.SimulateOptions{
		NTrials:     req.NTrials,
		Depth:       req.Depth,
		Parallelism: req.Parallelism,
	}
	if req.Seeds != nil {
		opts.Seeds = *req.Seeds
	}
	return opts
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request, treeID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req simulateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.NodeID == "" {
		WriteError(w, http.StatusBadRequest, "node_id is required")
		return
	}

	summary, err := s.app.Engine.ComputeResult(r.Context(), treeID, req.NodeID, req.options())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) handleCurves(w http.ResponseWriter, r *http.Request, treeID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req simulateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.NodeIDs) == 0 {
		WriteError(w, http.StatusBadRequest, "node_ids is required")
		return
	}

	bundle, err := s.app.Engine.ComputeCurves(r.Context(), treeID, req.NodeIDs, req.NTicks, req.options())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleCurveChart(w http.ResponseWriter, r *http.Request, treeID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req simulateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.NodeIDs) == 0 {
		WriteError(w, http.StatusBadRequest, "node_ids is required")
		return
	}

	bundle, err := s.app.Engine.ComputeCurves(r.Context(), treeID, req.NodeIDs, req.NTicks, req.options())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	png, err := s.app.Engine.RenderCurveChart(bundle)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// --- Cache handlers ---

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, s.app.Engine.CacheStats())
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req struct {
		TreeID string `json:"tree_id"`
		NodeID string `json:"node_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.TreeID == "" || req.NodeID == "" {
		WriteError(w, http.StatusBadRequest, "tree_id and node_id are required")
		return
	}

	removed, err := s.app.Engine.InvalidateNode(r.Context(), req.TreeID, req.NodeID)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.app.Engine.ClearCache()
	WriteJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
