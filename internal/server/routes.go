package server

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/risquanter/riskcast/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)
	mux.HandleFunc("/debug/memstats", s.handleMemstats)

	// Trees and nodes
	mux.HandleFunc("/api/trees/", s.routeTrees)
	mux.HandleFunc("/api/trees", s.handleTreeCollection)

	// Result cache
	mux.HandleFunc("/api/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/api/cache/invalidate", s.handleCacheInvalidate)
	mux.HandleFunc("/api/cache/clear", s.handleCacheClear)
}

// routeTrees dispatches /api/trees/{id}/* to the appropriate handler.
func (s *Server) routeTrees(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/trees/")
	if path == "" {
		WriteError(w, http.StatusBadRequest, "tree id is required in path")
		return
	}

	parts := strings.Split(path, "/")
	treeID := parts[0]

	switch {
	case len(parts) == 1:
		s.handleTree(w, r, treeID)
	case len(parts) == 2 && parts[1] == "nodes":
		s.handleNodeAdd(w, r, treeID)
	case len(parts) == 3 && parts[1] == "nodes":
		s.handleNode(w, r, treeID, parts[2])
	case len(parts) == 2 && parts[1] == "simulate":
		s.handleSimulate(w, r, treeID)
	case len(parts) == 2 && parts[1] == "curves":
		s.handleCurves(w, r, treeID)
	case len(parts) == 3 && parts[1] == "curves" && parts[2] == "chart":
		s.handleCurveChart(w, r, treeID)
	default:
		WriteError(w, http.StatusNotFound, "Unknown tree endpoint")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

func (s *Server) handleMemstats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"heap_alloc_mb":  m.HeapAlloc / 1024 / 1024,
		"heap_sys_mb":    m.HeapSys / 1024 / 1024,
		"heap_objects":   m.HeapObjects,
		"num_gc":         m.NumGC,
		"goroutines":     runtime.NumGoroutine(),
		"gc_pause_ms":    float64(m.PauseNs[(m.NumGC+255)%256]) / 1e6,
		"next_gc_mb":     m.NextGC / 1024 / 1024,
		"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
	})
}
