package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/repositories"
)

// MedicineService manages the medicine inventory.
type MedicineService struct {
	medicines *repositories.MedicineRepository
	logger    *slog.Logger
	audit     AuditRecorder
}

func NewMedicineService(medicines *repositories.MedicineRepository, logger *slog.Logger, audit AuditRecorder) *MedicineService {
	return &MedicineService{
		medicines: medicines,
		logger:    logger,
		audit:     audit,
	}
}

type MedicineInput struct {
	Name      string
	Stock     int
	Unit      string
	ExpiresAt time.Time
}

func (s *MedicineService) CreateMedicine(ctx context.Context, input MedicineInput, principal models.Principal) (*models.Medicine, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" || input.Stock < 0 || input.ExpiresAt.IsZero() {
		return nil, models.ErrBadRequest
	}
	if input.Unit == "" {
		input.Unit = "unit"
	}

	medicine := &models.Medicine{
		Name:      input.Name,
		Stock:     input.Stock,
		Unit:      input.Unit,
		ExpiresAt: input.ExpiresAt,
	}

	created, err := s.medicines.Create(ctx, medicine)
	if err != nil {
		s.logger.Error("failed to create medicine", slog.Any("error", err))
		return nil, err
	}

	s.recordAudit(ctx, principal, created.ID, models.AuditActionCreate)
	return created, nil
}

func (s *MedicineService) GetMedicine(ctx context.Context, id string) (*models.Medicine, error) {
	return s.medicines.GetByID(ctx, id)
}

func (s *MedicineService) ListMedicines(ctx context.Context, limit, offset int) ([]*models.Medicine, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.medicines.List(ctx, limit, offset)
}

// ListLowStock serves the inventory dashboard's restock panel.
func (s *MedicineService) ListLowStock(ctx context.Context, threshold int) ([]*models.Medicine, error) {
	if threshold <= 0 {
		threshold = 10
	}
	return s.medicines.ListLowStock(ctx, threshold)
}

func (s *MedicineService) UpdateMedicine(ctx context.Context, id string, input MedicineInput, principal models.Principal) (*models.Medicine, error) {
	existing, err := s.medicines.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		existing.Name = name
	}
	if input.Stock >= 0 {
		existing.Stock = input.Stock
	}
	if input.Unit != "" {
		existing.Unit = input.Unit
	}
	if !input.ExpiresAt.IsZero() {
		existing.ExpiresAt = input.ExpiresAt
	}

	if err := s.medicines.Update(ctx, existing); err != nil {
		s.logger.Error("failed to update medicine", slog.String("id", id), slog.Any("error", err))
		return nil, err
	}

	s.recordAudit(ctx, principal, id, models.AuditActionUpdate)
	return existing, nil
}

func (s *MedicineService) DeleteMedicine(ctx context.Context, id string, principal models.Principal) error {
	if err := s.medicines.Delete(ctx, id); err != nil {
		return err
	}

	s.recordAudit(ctx, principal, id, models.AuditActionDelete)
	return nil
}

func (s *MedicineService) recordAudit(ctx context.Context, principal models.Principal, id, action string) {
	resourceType := models.AuditResourceTypeMedicine
	s.audit.Record(ctx, &models.AuditLog{
		EventType:    "medicine_" + action,
		ActorID:      &principal.UserID,
		ActorRole:    &principal.Role,
		ResourceType: &resourceType,
		ResourceID:   &id,
		Action:       action,
		Success:      true,
	})
}
