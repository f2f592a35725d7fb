package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/api"
	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/services"
)

// APIHandler serves the pipeline HTTP API.
type APIHandler struct {
	db       *gorm.DB
	pipeline *services.Pipeline
}

func NewAPIHandler(db *gorm.DB, pipeline *services.Pipeline) *APIHandler {
	return &APIHandler{db: db, pipeline: pipeline}
}

// RegisterRoutes registers all API routes on the mux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)

	// Pipeline
	mux.HandleFunc("POST /api/pipeline/run", h.handlePipelineRun)
	mux.HandleFunc("GET /api/stats", h.handleStats)

	// Events
	mux.HandleFunc("GET /api/events", h.handleListEvents)

	// Incidents
	mux.HandleFunc("GET /api/incidents", h.handleListIncidents)
	mux.HandleFunc("GET /api/incidents/{id}", h.handleGetIncident)
	mux.HandleFunc("GET /api/incidents/{id}/timeline", h.handleIncidentTimeline)
	mux.HandleFunc("PATCH /api/incidents/{id}/status", h.handleUpdateIncidentStatus)
	mux.HandleFunc("POST /api/incidents/{id}/rca", h.handleRunRCA)
	mux.HandleFunc("POST /api/incidents/{id}/remediate", h.handleRemediate)
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// tenantIDParam parses the required tenant_id query parameter.
func tenantIDParam(r *http.Request) (uint, bool) {
	raw := r.URL.Query().Get("tenant_id")
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *APIHandler) handlePipelineRun(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(r)
	if !ok {
		api.RespondError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			api.RespondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		since = &t
	}

	result, err := h.pipeline.Run(tenantID, since)
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "pipeline run failed")
		return
	}
	api.RespondJSON(w, http.StatusOK, result)
}

func (h *APIHandler) handleRunRCA(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := h.pipeline.AnalyzeIncident(id)
	if err != nil {
		respondIncidentError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, result)
}

func (h *APIHandler) handleRemediate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := h.pipeline.RunRCAAndRemediate(id)
	if err != nil {
		respondIncidentError(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, result)
}

func respondIncidentError(w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrIncidentNotFound) {
		api.RespondErrorWithCode(w, http.StatusNotFound, "incident_not_found", "Incident not found")
		return
	}
	api.RespondError(w, http.StatusInternalServerError, "analysis failed")
}

// handleStats returns pipeline counters for a tenant's dashboard.
func (h *APIHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(r)
	if !ok {
		api.RespondError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	stats := map[string]int64{}
	counts := []struct {
		key   string
		model interface{}
		where string
		args  []interface{}
	}{
		{"events_total", &database.Event{}, "tenant_id = ?", []interface{}{tenantID}},
		{"events_unprocessed", &database.Event{}, "tenant_id = ? AND processed = ?", []interface{}{tenantID, false}},
		{"incidents_total", &database.Incident{}, "tenant_id = ?", []interface{}{tenantID}},
		{"incidents_open", &database.Incident{}, "tenant_id = ? AND status = ?", []interface{}{tenantID, database.IncidentStatusOpen}},
		{"incidents_analyzed", &database.Incident{}, "tenant_id = ? AND rca_status = ?", []interface{}{tenantID, database.RCAStatusCompleted}},
		{"work_orders_auto", &database.WorkOrder{}, "tenant_id = ? AND source = ?", []interface{}{tenantID, database.WorkOrderSourceAuto}},
	}
	for _, c := range counts {
		var n int64
		if err := h.db.Model(c.model).Where(c.where, c.args...).Count(&n).Error; err != nil {
			api.RespondError(w, http.StatusInternalServerError, "failed to compute stats")
			return
		}
		stats[c.key] = n
	}

	api.RespondJSON(w, http.StatusOK, stats)
}
