package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/services"
	pkghttp "github.com/campuscare/clinicdesk/pkg/http"
)

// ReportHandler handles AI report HTTP requests
type ReportHandler struct {
	service *services.ReportService
}

func NewReportHandler(service *services.ReportService) *ReportHandler {
	return &ReportHandler{service: service}
}

type GenerateReportRequest struct {
	Kind string `json:"kind" validate:"required,oneof=visit_summary inventory_forecast health_trend"`
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

type ReportResponse struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	PeriodFrom string `json:"period_from"`
	PeriodTo   string `json:"period_to"`
	Content    string `json:"content"`
	Model      string `json:"model"`
	CreatedBy  string `json:"created_by"`
	CreatedAt  string `json:"created_at"`
}

func toReportResponse(r *models.Report) ReportResponse {
	return ReportResponse{
		ID:         r.ID,
		Kind:       r.Kind,
		PeriodFrom: r.PeriodFrom.UTC().Format(time.RFC3339),
		PeriodTo:   r.PeriodTo.UTC().Format(time.RFC3339),
		Content:    r.Content,
		Model:      r.Model,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r)
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		pkghttp.WriteBadRequest(w, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		pkghttp.WriteBadRequest(w, "to must be YYYY-MM-DD")
		return
	}

	report, err := h.service.Generate(r.Context(), req.Kind, from, to, principal)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid report request")
		case errors.Is(err, models.ErrRateLimitExceeded):
			pkghttp.WriteTooManyRequests(w, "Report generation rate limit reached, try again shortly")
		case errors.Is(err, models.ErrProviderUnavailable):
			pkghttp.WriteBadGateway(w, "Report generator is unavailable, try again later")
		default:
			pkghttp.WriteInternalError(w, "Failed to generate report")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, toReportResponse(report))
}

func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Report not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to load report")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, toReportResponse(report))
}

func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)
	kind := r.URL.Query().Get("kind")

	reports, err := h.service.ListReports(r.Context(), kind, limit, offset)
	if err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Unknown report kind")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to list reports")
		return
	}

	out := make([]ReportResponse, 0, len(reports))
	for _, report := range reports {
		out = append(out, toReportResponse(report))
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"reports": out})
}
