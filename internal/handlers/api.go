package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
)

// IndexCounter reports the size of the in-memory vector index
type IndexCounter interface {
	Count(ctx context.Context) (int, error)
}

// APIHandler handles service-level HTTP requests
type APIHandler struct {
	agentService interfaces.AgentService
	storage      interfaces.StorageManager
	index        IndexCounter
	startedAt    time.Time
	logger       arbor.ILogger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(
	agentService interfaces.AgentService,
	storage interfaces.StorageManager,
	index IndexCounter,
	logger arbor.ILogger,
) *APIHandler {
	return &APIHandler{
		agentService: agentService,
		storage:      storage,
		index:        index,
		startedAt:    time.Now(),
		logger:       logger,
	}
}

// HealthHandler handles GET /api/health requests
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status := "healthy"
	checks := map[string]string{
		"storage": "ok",
		"agent":   "ok",
	}

	if _, err := h.storage.DocumentStorage().CountDocuments(); err != nil {
		status = "degraded"
		checks["storage"] = err.Error()
	}
	if err := h.agentService.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		checks["agent"] = err.Error()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	indexed, err := h.index.Count(r.Context())
	if err != nil {
		indexed = 0
	}

	WriteJSON(w, code, map[string]interface{}{
		"status":             status,
		"checks":             checks,
		"indexed_chunks":     indexed,
		"goroutines_spawned": common.GetGoroutineCount(),
		"uptime":             time.Since(h.startedAt).Round(time.Second).String(),
		"version":            common.GetVersion(),
	})
}

// VersionHandler handles GET /api/version requests
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}
