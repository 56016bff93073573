package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/services"
	pkghttp "github.com/campuscare/clinicdesk/pkg/http"
)

// VisitHandler handles visit log HTTP requests
type VisitHandler struct {
	service *services.VisitService
}

func NewVisitHandler(service *services.VisitService) *VisitHandler {
	return &VisitHandler{service: service}
}

type CreateVisitRequest struct {
	StudentName string  `json:"student_name" validate:"required,min=1,max=200"`
	VisitedAt   string  `json:"visited_at,omitempty"`
	Reason      string  `json:"reason" validate:"required,min=1,max=500"`
	Treatment   string  `json:"treatment" validate:"max=1000"`
	MedicineID  *string `json:"medicine_id,omitempty"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
}

type VisitResponse struct {
	ID          string  `json:"id"`
	StudentName string  `json:"student_name"`
	VisitedAt   string  `json:"visited_at"`
	Reason      string  `json:"reason"`
	Treatment   string  `json:"treatment,omitempty"`
	MedicineID  *string `json:"medicine_id,omitempty"`
	Quantity    int     `json:"quantity,omitempty"`
	RecordedBy  string  `json:"recorded_by"`
	CreatedAt   string  `json:"created_at"`
}

func toVisitResponse(v *models.Visit) VisitResponse {
	return VisitResponse{
		ID:          v.ID,
		StudentName: v.StudentName,
		VisitedAt:   v.VisitedAt.UTC().Format(time.RFC3339),
		Reason:      v.Reason,
		Treatment:   v.Treatment,
		MedicineID:  v.MedicineID,
		Quantity:    v.Quantity,
		RecordedBy:  v.RecordedBy,
		CreatedAt:   v.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *VisitHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req CreateVisitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	input := services.CreateVisitInput{
		StudentName: req.StudentName,
		Reason:      req.Reason,
		Treatment:   req.Treatment,
		MedicineID:  req.MedicineID,
		Quantity:    req.Quantity,
	}
	if req.VisitedAt != "" {
		visitedAt, err := time.Parse(time.RFC3339, req.VisitedAt)
		if err != nil {
			pkghttp.WriteBadRequest(w, "visited_at must be RFC 3339")
			return
		}
		input.VisitedAt = visitedAt
	}

	visit, err := h.service.RecordVisit(r.Context(), input, principal)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientStock):
			pkghttp.WriteConflict(w, err.Error())
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteBadRequest(w, "Unknown medicine")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid visit payload")
		default:
			pkghttp.WriteInternalError(w, "Failed to record visit")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toVisitResponse(visit))
}

func (h *VisitHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	visit, err := h.service.GetVisit(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Visit not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to load visit")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toVisitResponse(visit))
}

// List returns the visit log, optionally scoped to a date range via
// ?from=2025-03-01&to=2025-03-31 (both dates inclusive).
func (h *VisitHandler) List(w http.ResponseWriter, r *http.Request) {
	fromRaw := r.URL.Query().Get("from")
	toRaw := r.URL.Query().Get("to")

	if fromRaw != "" || toRaw != "" {
		from, err := time.Parse("2006-01-02", fromRaw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "from must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse("2006-01-02", toRaw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "to must be YYYY-MM-DD")
			return
		}

		visits, err := h.service.ListVisitsBetween(r.Context(), from, to.AddDate(0, 0, 1))
		if err != nil {
			if errors.Is(err, models.ErrBadRequest) {
				pkghttp.WriteBadRequest(w, "to must not precede from")
				return
			}
			pkghttp.WriteInternalError(w, "Failed to list visits")
			return
		}
		h.writeList(w, visits)
		return
	}

	limit, offset := paginationParams(r)
	visits, err := h.service.ListVisits(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list visits")
		return
	}
	h.writeList(w, visits)
}

func (h *VisitHandler) writeList(w http.ResponseWriter, visits []*models.Visit) {
	out := make([]VisitResponse, 0, len(visits))
	for _, v := range visits {
		out = append(out, toVisitResponse(v))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"visits": out})
}

func (h *VisitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.DeleteVisit(r.Context(), id, principal); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Visit not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to delete visit")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// paginationParams parses limit/offset query parameters with service-side
// clamping left to the services.
func paginationParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
