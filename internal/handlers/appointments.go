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

// AppointmentHandler handles appointment book HTTP requests
type AppointmentHandler struct {
	service   *services.AppointmentService
	badgeLead time.Duration
}

func NewAppointmentHandler(service *services.AppointmentService, badgeLead time.Duration) *AppointmentHandler {
	return &AppointmentHandler{
		service:   service,
		badgeLead: badgeLead,
	}
}

type AppointmentRequest struct {
	StudentName string `json:"student_name" validate:"required,min=1,max=200"`
	StartsAt    string `json:"starts_at" validate:"required"`
	Reason      string `json:"reason" validate:"max=500"`
}

type AppointmentResponse struct {
	ID           string `json:"id"`
	StudentName  string `json:"student_name"`
	StartsAt     string `json:"starts_at"`
	Reason       string `json:"reason,omitempty"`
	CreatedBy    string `json:"created_by"`
	MinutesUntil int    `json:"minutes_until"`
}

func toAppointmentResponse(a *models.Appointment, now time.Time) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		StudentName:  a.StudentName,
		StartsAt:     a.StartsAt.UTC().Format(time.RFC3339),
		Reason:       a.Reason,
		CreatedBy:    a.CreatedBy,
		MinutesUntil: a.MinutesUntil(now),
	}
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req AppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		pkghttp.WriteBadRequest(w, "starts_at must be RFC 3339")
		return
	}

	appointment, err := h.service.CreateAppointment(r.Context(), services.AppointmentInput{
		StudentName: req.StudentName,
		StartsAt:    startsAt,
		Reason:      req.Reason,
	}, principal)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Appointment must be in the future")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to create appointment")
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toAppointmentResponse(appointment, time.Now()))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appointment, err := h.service.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Appointment not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to load appointment")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toAppointmentResponse(appointment, time.Now()))
}

// List returns the appointment book, optionally scoped to a single day via
// the ?day=2025-03-10 parameter.
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	if day := r.URL.Query().Get("day"); day != "" {
		parsed, err := time.ParseInLocation("2006-01-02", day, now.Location())
		if err != nil {
			pkghttp.WriteBadRequest(w, "day must be YYYY-MM-DD")
			return
		}

		appointments, err := h.service.ListByDay(r.Context(), parsed)
		if err != nil {
			pkghttp.WriteInternalError(w, "Failed to list appointments")
			return
		}
		h.writeList(w, appointments, now)
		return
	}

	limit, offset := paginationParams(r)
	appointments, err := h.service.ListAppointments(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list appointments")
		return
	}
	h.writeList(w, appointments, now)
}

// Upcoming returns today's appointments inside the reminder window: the badge
// set. An optional ?window= overrides the lead in minutes.
func (h *AppointmentHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	lead := h.badgeLead
	if raw := r.URL.Query().Get("window"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 || minutes > 24*60 {
			pkghttp.WriteBadRequest(w, "window must be minutes between 1 and 1440")
			return
		}
		lead = time.Duration(minutes) * time.Minute
	}

	appointments, err := h.service.ListUpcoming(r.Context(), now, lead)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list upcoming appointments")
		return
	}
	h.writeList(w, appointments, now)
}

// CheckInQR serves the printable check-in QR code as PNG.
func (h *AppointmentHandler) CheckInQR(w http.ResponseWriter, r *http.Request) {
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	png, err := h.service.CheckInQR(r.Context(), chi.URLParam(r, "id"), size)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Appointment not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.DeleteAppointment(r.Context(), chi.URLParam(r, "id"), principal); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Appointment not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to delete appointment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentHandler) writeList(w http.ResponseWriter, appointments []*models.Appointment, now time.Time) {
	out := make([]AppointmentResponse, 0, len(appointments))
	for _, a := range appointments {
		out = append(out, toAppointmentResponse(a, now))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"appointments": out})
}
