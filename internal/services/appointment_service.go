package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/reminder"
	"github.com/campuscare/clinicdesk/internal/repositories"
)

// AppointmentService manages the appointment book. Mutations signal the
// reminder pipeline so badge and toast state refresh without waiting for the
// next tick.
type AppointmentService struct {
	appointments *repositories.AppointmentRepository
	logger       *slog.Logger
	audit        AuditRecorder

	// onChange is invoked after any mutation; wired to the reminder notifier.
	onChange func()

	checkInBaseURL string
}

func NewAppointmentService(
	appointments *repositories.AppointmentRepository,
	checkInBaseURL string,
	logger *slog.Logger,
	audit AuditRecorder,
) *AppointmentService {
	return &AppointmentService{
		appointments:   appointments,
		checkInBaseURL: checkInBaseURL,
		logger:         logger,
		audit:          audit,
	}
}

// SetOnChange registers the hook fired after mutations. Must be called before
// the service starts taking requests.
func (s *AppointmentService) SetOnChange(fn func()) {
	s.onChange = fn
}

type AppointmentInput struct {
	StudentName string
	StartsAt    time.Time
	Reason      string
}

func (s *AppointmentService) CreateAppointment(ctx context.Context, input AppointmentInput, principal models.Principal) (*models.Appointment, error) {
	input.StudentName = strings.TrimSpace(input.StudentName)
	if input.StudentName == "" || input.StartsAt.IsZero() {
		return nil, models.ErrBadRequest
	}
	if input.StartsAt.Before(time.Now()) {
		return nil, models.ErrBadRequest
	}

	appointment := &models.Appointment{
		StudentName: input.StudentName,
		StartsAt:    input.StartsAt,
		Reason:      input.Reason,
		CreatedBy:   principal.UserID,
	}

	created, err := s.appointments.Create(ctx, appointment)
	if err != nil {
		s.logger.Error("failed to create appointment", slog.Any("error", err))
		return nil, err
	}

	s.recordAudit(ctx, principal, created.ID, models.AuditActionCreate)
	s.notifyChanged()
	return created, nil
}

func (s *AppointmentService) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

func (s *AppointmentService) ListAppointments(ctx context.Context, limit, offset int) ([]*models.Appointment, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.appointments.List(ctx, limit, offset)
}

func (s *AppointmentService) ListByDay(ctx context.Context, day time.Time) ([]*models.Appointment, error) {
	return s.appointments.ListByDay(ctx, day)
}

// ListUpcoming returns today's appointments starting within the lead window,
// i.e. the badge set.
func (s *AppointmentService) ListUpcoming(ctx context.Context, now time.Time, lead time.Duration) ([]*models.Appointment, error) {
	todays, err := s.appointments.ListByDay(ctx, now)
	if err != nil {
		return nil, err
	}
	return reminder.Upcoming(todays, now, lead), nil
}

func (s *AppointmentService) DeleteAppointment(ctx context.Context, id string, principal models.Principal) error {
	if err := s.appointments.Delete(ctx, id); err != nil {
		return err
	}

	s.recordAudit(ctx, principal, id, models.AuditActionDelete)
	s.notifyChanged()
	return nil
}

// CheckInQR renders a PNG QR code pointing at the appointment's check-in page,
// for printing on the visit slip.
func (s *AppointmentService) CheckInQR(ctx context.Context, id string, size int) ([]byte, error) {
	appointment, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if size < 128 || size > 1024 {
		size = 256
	}

	url := fmt.Sprintf("%s/appointments/%s/check-in", s.checkInBaseURL, appointment.ID)
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render check-in code: %w", err)
	}

	return png, nil
}

func (s *AppointmentService) notifyChanged() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *AppointmentService) recordAudit(ctx context.Context, principal models.Principal, id, action string) {
	resourceType := models.AuditResourceTypeAppointment
	s.audit.Record(ctx, &models.AuditLog{
		EventType:    "appointment_" + action,
		ActorID:      &principal.UserID,
		ActorRole:    &principal.Role,
		ResourceType: &resourceType,
		ResourceID:   &id,
		Action:       action,
		Success:      true,
	})
}
