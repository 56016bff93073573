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

// MedicineHandler handles medicine inventory HTTP requests
type MedicineHandler struct {
	service *services.MedicineService
}

func NewMedicineHandler(service *services.MedicineService) *MedicineHandler {
	return &MedicineHandler{service: service}
}

type MedicineRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=200"`
	Stock     int    `json:"stock" validate:"gte=0"`
	Unit      string `json:"unit" validate:"max=50"`
	ExpiresAt string `json:"expires_at" validate:"required"`
}

type MedicineResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Unit      string `json:"unit"`
	ExpiresAt string `json:"expires_at"`
	Expired   bool   `json:"expired"`
}

func toMedicineResponse(m *models.Medicine) MedicineResponse {
	return MedicineResponse{
		ID:        m.ID,
		Name:      m.Name,
		Stock:     m.Stock,
		Unit:      m.Unit,
		ExpiresAt: m.ExpiresAt.UTC().Format(time.RFC3339),
		Expired:   m.IsExpired(time.Now()),
	}
}

func (h *MedicineHandler) parseInput(w http.ResponseWriter, r *http.Request) (services.MedicineInput, bool) {
	var req MedicineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return services.MedicineInput{}, false
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return services.MedicineInput{}, false
	}

	expiresAt, err := time.Parse(time.RFC3339, req.ExpiresAt)
	if err != nil {
		pkghttp.WriteBadRequest(w, "expires_at must be RFC 3339")
		return services.MedicineInput{}, false
	}

	return services.MedicineInput{
		Name:      req.Name,
		Stock:     req.Stock,
		Unit:      req.Unit,
		ExpiresAt: expiresAt,
	}, true
}

func (h *MedicineHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	input, ok := h.parseInput(w, r)
	if !ok {
		return
	}

	medicine, err := h.service.CreateMedicine(r.Context(), input, principal)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Medicine already exists")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid medicine payload")
		default:
			pkghttp.WriteInternalError(w, "Failed to create medicine")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toMedicineResponse(medicine))
}

func (h *MedicineHandler) Get(w http.ResponseWriter, r *http.Request) {
	medicine, err := h.service.GetMedicine(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Medicine not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to load medicine")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toMedicineResponse(medicine))
}

func (h *MedicineHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	medicines, err := h.service.ListMedicines(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list medicines")
		return
	}

	out := make([]MedicineResponse, 0, len(medicines))
	for _, m := range medicines {
		out = append(out, toMedicineResponse(m))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"medicines": out})
}

// LowStock serves the restock panel.
func (h *MedicineHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold, _ := strconv.Atoi(r.URL.Query().Get("threshold"))

	medicines, err := h.service.ListLowStock(r.Context(), threshold)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list low-stock medicines")
		return
	}

	out := make([]MedicineResponse, 0, len(medicines))
	for _, m := range medicines {
		out = append(out, toMedicineResponse(m))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"medicines": out})
}

func (h *MedicineHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	input, ok := h.parseInput(w, r)
	if !ok {
		return
	}

	medicine, err := h.service.UpdateMedicine(r.Context(), chi.URLParam(r, "id"), input, principal)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Medicine not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to update medicine")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toMedicineResponse(medicine))
}

func (h *MedicineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.DeleteMedicine(r.Context(), chi.URLParam(r, "id"), principal); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Medicine not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to delete medicine")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
