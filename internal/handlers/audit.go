package handlers

import (
	"net/http"
	"time"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/repositories"
	"github.com/campuscare/clinicdesk/internal/services"
	pkghttp "github.com/campuscare/clinicdesk/pkg/http"
)

// AuditHandler serves the audit trail to administrators.
type AuditHandler struct {
	service *services.AuditService
}

func NewAuditHandler(service *services.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

type AuditLogResponse struct {
	ID            string                 `json:"id"`
	EventType     string                 `json:"event_type"`
	ActorID       *string                `json:"actor_id,omitempty"`
	ActorRole     *string                `json:"actor_role,omitempty"`
	ResourceType  *string                `json:"resource_type,omitempty"`
	ResourceID    *string                `json:"resource_id,omitempty"`
	Action        string                 `json:"action"`
	Success       bool                   `json:"success"`
	FailureReason *string                `json:"failure_reason,omitempty"`
	IPAddress     *string                `json:"ip_address,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}

func toAuditLogResponse(e *models.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:            e.ID,
		EventType:     e.EventType,
		ActorID:       e.ActorID,
		ActorRole:     e.ActorRole,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Action:        e.Action,
		Success:       e.Success,
		FailureReason: e.FailureReason,
		IPAddress:     e.IPAddress,
		Metadata:      e.Metadata,
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// List returns the audit trail, newest first. Supports event_type, actor_id,
// and since filters. Routes mount this behind the admin role check.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := repositories.AuditLogFilter{
		EventType: r.URL.Query().Get("event_type"),
		ActorID:   r.URL.Query().Get("actor_id"),
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "since must be RFC 3339")
			return
		}
		filter.Since = since
	}

	limit, offset := paginationParams(r)

	entries, err := h.service.List(r.Context(), filter, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list audit entries")
		return
	}

	out := make([]AuditLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAuditLogResponse(e))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"entries": out})
}
