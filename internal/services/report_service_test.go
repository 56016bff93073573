package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/clinicdesk/internal/models"
)

type stubGenerator struct {
	content string
	err     error
	calls   int
}

func (g *stubGenerator) Complete(_ context.Context, _ string) (string, string, error) {
	g.calls++
	if g.err != nil {
		return "", "", g.err
	}
	return g.content, "stub-model", nil
}

type stubVisitLister struct{ visits []*models.Visit }

func (l *stubVisitLister) ListBetween(context.Context, time.Time, time.Time) ([]*models.Visit, error) {
	return l.visits, nil
}

type stubMedicineLister struct{ medicines []*models.Medicine }

func (l *stubMedicineLister) List(context.Context, int, int) ([]*models.Medicine, error) {
	return l.medicines, nil
}

type stubReportStore struct{ created []*models.Report }

func (s *stubReportStore) Create(_ context.Context, r *models.Report) (*models.Report, error) {
	r.ID = "r1"
	r.CreatedAt = time.Now()
	s.created = append(s.created, r)
	return r, nil
}

func (s *stubReportStore) GetByID(context.Context, string) (*models.Report, error) {
	return nil, models.ErrNotFound
}

func (s *stubReportStore) List(context.Context, string, int, int) ([]*models.Report, error) {
	return nil, nil
}

func newReportHarness(gen *stubGenerator, rpm int) (*ReportService, *stubReportStore) {
	store := &stubReportStore{}
	svc := NewReportService(
		gen,
		&stubVisitLister{visits: []*models.Visit{{StudentName: "Kim Soto", VisitedAt: time.Now(), Reason: "headache", Treatment: "rest"}}},
		&stubMedicineLister{},
		store,
		rpm,
		slog.Default(),
		nopAuditRecorder{},
		testCollector,
	)
	return svc, store
}

var reportPrincipal = models.Principal{UserID: "u1", Role: models.RoleAdmin}

func reportPeriod() (time.Time, time.Time) {
	to := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return to.AddDate(0, 0, -7), to
}

func TestReportService_Generate_Success(t *testing.T) {
	gen := &stubGenerator{content: "Quiet week, 1 visit."}
	svc, store := newReportHarness(gen, 60)
	from, to := reportPeriod()

	report, err := svc.Generate(context.Background(), models.ReportKindVisitSummary, from, to, reportPrincipal)

	require.NoError(t, err)
	assert.Equal(t, "Quiet week, 1 visit.", report.Content)
	assert.Equal(t, "stub-model", report.Model)
	assert.Len(t, store.created, 1)
}

func TestReportService_Generate_InvalidKind(t *testing.T) {
	svc, _ := newReportHarness(&stubGenerator{}, 60)
	from, to := reportPeriod()

	_, err := svc.Generate(context.Background(), "weekly_horoscope", from, to, reportPrincipal)
	assert.Equal(t, models.ErrBadRequest, err)
}

func TestReportService_Generate_InvalidPeriod(t *testing.T) {
	svc, _ := newReportHarness(&stubGenerator{}, 60)
	from, to := reportPeriod()

	_, err := svc.Generate(context.Background(), models.ReportKindVisitSummary, to, from, reportPrincipal)
	assert.Equal(t, models.ErrBadRequest, err)
}

func TestReportService_Generate_RateLimited(t *testing.T) {
	gen := &stubGenerator{content: "ok"}
	svc, _ := newReportHarness(gen, 1) // one request per minute
	from, to := reportPeriod()

	_, err := svc.Generate(context.Background(), models.ReportKindVisitSummary, from, to, reportPrincipal)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), models.ReportKindVisitSummary, from, to, reportPrincipal)
	assert.Equal(t, models.ErrRateLimitExceeded, err)
}

func TestReportService_Generate_BackToBackWithinBudget(t *testing.T) {
	gen := &stubGenerator{content: "ok"}
	svc, _ := newReportHarness(gen, 60)
	from, to := reportPeriod()

	// Consecutive requests inside the per-minute budget all reach the provider.
	for i := 0; i < 3; i++ {
		_, err := svc.Generate(context.Background(), models.ReportKindVisitSummary, from, to, reportPrincipal)
		require.NoError(t, err, "request %d", i+1)
	}
	assert.Equal(t, 3, gen.calls)
}

func TestReportService_Generate_BreakerOpensAfterFailures(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream down")}
	svc, _ := newReportHarness(gen, 600)
	from, to := reportPeriod()

	for i := 0; i < 3; i++ {
		_, err := svc.Generate(context.Background(), models.ReportKindVisitSummary, from, to, reportPrincipal)
		assert.Equal(t, models.ErrProviderUnavailable, err)
	}
	require.Equal(t, 3, gen.calls)

	// Breaker is open now: the provider is no longer consulted.
	_, err := svc.Generate(context.Background(), models.ReportKindVisitSummary, from, to, reportPrincipal)
	assert.Equal(t, models.ErrProviderUnavailable, err)
	assert.Equal(t, 3, gen.calls)
}
