package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/pkg/metrics"
)

// TextGenerator produces report prose from a prompt. Implemented by
// OpenAIClient; tests substitute a stub.
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (content string, model string, err error)
}

// VisitLister supplies visit data for report generation.
type VisitLister interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]*models.Visit, error)
}

// MedicineLister supplies inventory data for report generation.
type MedicineLister interface {
	List(ctx context.Context, limit, offset int) ([]*models.Medicine, error)
}

// ReportStore persists generated reports.
type ReportStore interface {
	Create(ctx context.Context, report *models.Report) (*models.Report, error)
	GetByID(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, kind string, limit, offset int) ([]*models.Report, error)
}

// ReportService generates AI-assisted reports. The external provider sits
// behind a circuit breaker and a request-rate limiter: when the provider is
// down, callers get ErrProviderUnavailable immediately instead of stacking up
// timeouts.
type ReportService struct {
	generator TextGenerator
	visits    VisitLister
	medicines MedicineLister
	store     ReportStore
	breaker   *gobreaker.CircuitBreaker[string]
	limiter   *rate.Limiter
	logger    *slog.Logger
	audit     AuditRecorder
	metrics   *metrics.Collector
}

func NewReportService(
	generator TextGenerator,
	visits VisitLister,
	medicines MedicineLister,
	store ReportStore,
	requestsPerMinute int,
	logger *slog.Logger,
	audit AuditRecorder,
	collector *metrics.Collector,
) *ReportService {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 6
	}

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "report-generator",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("report generator breaker state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &ReportService{
		generator: generator,
		visits:    visits,
		medicines: medicines,
		store:     store,
		breaker:   breaker,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		logger:    logger,
		audit:     audit,
		metrics:   collector,
	}
}

// Generate builds the prompt for the requested kind, calls the provider, and
// persists the result.
func (s *ReportService) Generate(ctx context.Context, kind string, from, to time.Time, principal models.Principal) (*models.Report, error) {
	if !models.IsValidReportKind(kind) {
		return nil, models.ErrBadRequest
	}
	if !from.Before(to) {
		return nil, models.ErrBadRequest
	}

	if !s.limiter.Allow() {
		s.metrics.ReportsTotal.WithLabelValues(kind, "rate_limited").Inc()
		return nil, models.ErrRateLimitExceeded
	}

	prompt, err := s.buildPrompt(ctx, kind, from, to)
	if err != nil {
		return nil, err
	}

	var model string
	content, err := s.breaker.Execute(func() (string, error) {
		var innerErr error
		var text string
		text, model, innerErr = s.generator.Complete(ctx, prompt)
		return text, innerErr
	})
	if err != nil {
		s.metrics.ReportsTotal.WithLabelValues(kind, "error").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, models.ErrProviderUnavailable
		}
		s.logger.Error("report generation failed", slog.String("kind", kind), slog.Any("error", err))
		return nil, models.ErrProviderUnavailable
	}

	report := &models.Report{
		Kind:       kind,
		PeriodFrom: from,
		PeriodTo:   to,
		Content:    content,
		Model:      model,
		CreatedBy:  principal.UserID,
	}

	created, err := s.store.Create(ctx, report)
	if err != nil {
		s.logger.Error("failed to persist report", slog.Any("error", err))
		return nil, err
	}

	s.metrics.ReportsTotal.WithLabelValues(kind, "success").Inc()
	resourceType := models.AuditResourceTypeReport
	s.audit.Record(ctx, &models.AuditLog{
		EventType:    "report_generated",
		ActorID:      &principal.UserID,
		ActorRole:    &principal.Role,
		ResourceType: &resourceType,
		ResourceID:   &created.ID,
		Action:       models.AuditActionCreate,
		Success:      true,
		Metadata:     models.AuditMetadata{"kind": kind},
	})

	return created, nil
}

func (s *ReportService) GetReport(ctx context.Context, id string) (*models.Report, error) {
	return s.store.GetByID(ctx, id)
}

func (s *ReportService) ListReports(ctx context.Context, kind string, limit, offset int) ([]*models.Report, error) {
	if kind != "" && !models.IsValidReportKind(kind) {
		return nil, models.ErrBadRequest
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, kind, limit, offset)
}

func (s *ReportService) buildPrompt(ctx context.Context, kind string, from, to time.Time) (string, error) {
	var b strings.Builder

	switch kind {
	case models.ReportKindVisitSummary, models.ReportKindHealthTrend:
		visits, err := s.visits.ListBetween(ctx, from, to)
		if err != nil {
			return "", err
		}

		if kind == models.ReportKindVisitSummary {
			fmt.Fprintf(&b, "Summarize the clinic visits between %s and %s for a weekly staff report.\n\n",
				from.Format("2006-01-02"), to.Format("2006-01-02"))
		} else {
			fmt.Fprintf(&b, "Identify health trends across clinic visits between %s and %s. Flag recurring complaints.\n\n",
				from.Format("2006-01-02"), to.Format("2006-01-02"))
		}

		fmt.Fprintf(&b, "Visits (%d total):\n", len(visits))
		for _, v := range visits {
			fmt.Fprintf(&b, "- %s: %s, reason: %s, treatment: %s\n",
				v.VisitedAt.Format("2006-01-02 15:04"), v.StudentName, v.Reason, v.Treatment)
		}

	case models.ReportKindInventoryForecast:
		medicines, err := s.medicines.List(ctx, 500, 0)
		if err != nil {
			return "", err
		}

		b.WriteString("Forecast medicine restocking needs based on current inventory. Call out anything expiring soon or running low.\n\n")
		fmt.Fprintf(&b, "Inventory (%d items):\n", len(medicines))
		for _, m := range medicines {
			fmt.Fprintf(&b, "- %s: %d %s, expires %s\n", m.Name, m.Stock, m.Unit, m.ExpiresAt.Format("2006-01-02"))
		}
	}

	return b.String(), nil
}
