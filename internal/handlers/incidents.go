package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/api"
	"github.com/industriq/blackbox/internal/database"
)

func (h *APIHandler) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(r)
	if !ok {
		api.RespondError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	q := h.db.Model(&database.Incident{}).Where("tenant_id = ?", tenantID)
	if status := r.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if severity := r.URL.Query().Get("severity"); severity != "" {
		q = q.Where("severity = ?", severity)
	}
	if rcaStatus := r.URL.Query().Get("rca_status"); rcaStatus != "" {
		q = q.Where("rca_status = ?", rcaStatus)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	p := api.ParsePagination(r)
	var incidents []database.Incident
	err := q.Order("start_time desc").Offset(p.Offset()).Limit(p.PerPage).Find(&incidents).Error
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"incidents":   incidents,
		"total":       total,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total_pages": p.TotalPages(total),
	})
}

func (h *APIHandler) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.loadIncident(w, r)
	if !ok {
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

// TimelineEntry is one event in an incident's reconstructed timeline.
type TimelineEntry struct {
	Event         database.Event     `json:"event"`
	Role          database.EventRole `json:"role"`
	SequenceOrder int                `json:"sequence_order"`
}

func (h *APIHandler) handleIncidentTimeline(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.loadIncident(w, r)
	if !ok {
		return
	}

	var links []database.IncidentEvent
	err := h.db.Where("incident_id = ?", incident.ID).
		Order("sequence_order asc").
		Find(&links).Error
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "failed to load timeline")
		return
	}

	entries := make([]TimelineEntry, 0, len(links))
	for _, link := range links {
		var event database.Event
		if err := h.db.Where("id = ?", link.EventID).First(&event).Error; err != nil {
			continue
		}
		entries = append(entries, TimelineEntry{
			Event:         event,
			Role:          link.Role,
			SequenceOrder: link.SequenceOrder,
		})
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"incident_id": incident.ID,
		"timeline":    entries,
	})
}

var validStatusTransitions = map[database.IncidentStatus]bool{
	database.IncidentStatusOpen:          true,
	database.IncidentStatusInvestigating: true,
	database.IncidentStatusResolved:      true,
	database.IncidentStatusClosed:        true,
}

func (h *APIHandler) handleUpdateIncidentStatus(w http.ResponseWriter, r *http.Request) {
	incident, ok := h.loadIncident(w, r)
	if !ok {
		return
	}

	var req struct {
		Status database.IncidentStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if !validStatusTransitions[req.Status] {
		api.RespondValidationError(w, map[string]string{"status": "must be OPEN, INVESTIGATING, RESOLVED or CLOSED"})
		return
	}

	updates := map[string]interface{}{"status": req.Status}
	if req.Status == database.IncidentStatusResolved && incident.ResolvedAt == nil {
		now := time.Now().UTC()
		updates["resolved_at"] = &now
		updates["end_time"] = &now
	}

	if err := h.db.Model(&database.Incident{}).Where("id = ?", incident.ID).Updates(updates).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "failed to update incident")
		return
	}

	if err := h.db.Where("id = ?", incident.ID).First(incident).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "failed to reload incident")
		return
	}
	api.RespondJSON(w, http.StatusOK, incident)
}

func (h *APIHandler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantIDParam(r)
	if !ok {
		api.RespondError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	q := h.db.Model(&database.Event{}).Where("tenant_id = ?", tenantID)
	if category := r.URL.Query().Get("category"); category != "" {
		q = q.Where("category = ?", category)
	}
	if severity := r.URL.Query().Get("severity"); severity != "" {
		q = q.Where("severity = ?", severity)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		api.RespondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	p := api.ParsePagination(r)
	var events []database.Event
	err := q.Order("event_time desc").Offset(p.Offset()).Limit(p.PerPage).Find(&events).Error
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"events":      events,
		"total":       total,
		"page":        p.Page,
		"per_page":    p.PerPage,
		"total_pages": p.TotalPages(total),
	})
}

// loadIncident resolves the path id, writing the error response on failure.
func (h *APIHandler) loadIncident(w http.ResponseWriter, r *http.Request) (*database.Incident, bool) {
	id := r.PathValue("id")
	var incident database.Incident
	err := h.db.Where("id = ?", id).First(&incident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		api.RespondErrorWithCode(w, http.StatusNotFound, "incident_not_found", "Incident not found")
		return nil, false
	}
	if err != nil {
		api.RespondError(w, http.StatusInternalServerError, "failed to load incident")
		return nil, false
	}
	return &incident, true
}
