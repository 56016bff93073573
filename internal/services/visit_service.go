package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/repositories"
	"github.com/campuscare/clinicdesk/pkg/metrics"
)

// VisitService records and serves student visits. Dispensing medicine during
// a visit moves stock in the same transaction as the visit row.
type VisitService struct {
	visits    *repositories.VisitRepository
	medicines *repositories.MedicineRepository
	logger    *slog.Logger
	audit     AuditRecorder
	metrics   *metrics.Collector
}

func NewVisitService(
	visits *repositories.VisitRepository,
	medicines *repositories.MedicineRepository,
	logger *slog.Logger,
	audit AuditRecorder,
	collector *metrics.Collector,
) *VisitService {
	return &VisitService{
		visits:    visits,
		medicines: medicines,
		logger:    logger,
		audit:     audit,
		metrics:   collector,
	}
}

// CreateVisitInput carries the validated request payload.
type CreateVisitInput struct {
	StudentName string
	VisitedAt   time.Time
	Reason      string
	Treatment   string
	MedicineID  *string
	Quantity    int
}

func (s *VisitService) RecordVisit(ctx context.Context, input CreateVisitInput, principal models.Principal) (*models.Visit, error) {
	input.StudentName = strings.TrimSpace(input.StudentName)
	if input.StudentName == "" || strings.TrimSpace(input.Reason) == "" {
		return nil, models.ErrBadRequest
	}
	if input.MedicineID != nil && input.Quantity <= 0 {
		return nil, models.ErrBadRequest
	}
	if input.VisitedAt.IsZero() {
		input.VisitedAt = time.Now()
	}

	visit := &models.Visit{
		StudentName: input.StudentName,
		VisitedAt:   input.VisitedAt,
		Reason:      input.Reason,
		Treatment:   input.Treatment,
		MedicineID:  input.MedicineID,
		Quantity:    input.Quantity,
		RecordedBy:  principal.UserID,
	}

	created, err := s.visits.Create(ctx, visit, s.medicines)
	if err != nil {
		s.logger.Error("failed to record visit", slog.Any("error", err))
		return nil, err
	}

	s.metrics.VisitsRecordedTotal.Inc()
	if created.MedicineID != nil {
		s.metrics.MedicinesDispensed.Add(float64(created.Quantity))
	}

	resourceType := models.AuditResourceTypeVisit
	s.audit.Record(ctx, &models.AuditLog{
		EventType:    "visit_recorded",
		ActorID:      &principal.UserID,
		ActorRole:    &principal.Role,
		ResourceType: &resourceType,
		ResourceID:   &created.ID,
		Action:       models.AuditActionCreate,
		Success:      true,
	})

	return created, nil
}

func (s *VisitService) GetVisit(ctx context.Context, id string) (*models.Visit, error) {
	return s.visits.GetByID(ctx, id)
}

func (s *VisitService) ListVisits(ctx context.Context, limit, offset int) ([]*models.Visit, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.visits.List(ctx, limit, offset)
}

// ListVisitsBetween returns visits with visited_at in [from, to), oldest first.
func (s *VisitService) ListVisitsBetween(ctx context.Context, from, to time.Time) ([]*models.Visit, error) {
	if to.Before(from) {
		return nil, models.ErrBadRequest
	}
	return s.visits.ListBetween(ctx, from, to)
}

func (s *VisitService) DeleteVisit(ctx context.Context, id string, principal models.Principal) error {
	if err := s.visits.Delete(ctx, id); err != nil {
		return err
	}

	resourceType := models.AuditResourceTypeVisit
	s.audit.Record(ctx, &models.AuditLog{
		EventType:    "visit_deleted",
		ActorID:      &principal.UserID,
		ActorRole:    &principal.Role,
		ResourceType: &resourceType,
		ResourceID:   &id,
		Action:       models.AuditActionDelete,
		Success:      true,
	})

	return nil
}
