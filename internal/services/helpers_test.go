package services

import (
	"context"
	"time"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/pkg/metrics"
)

// Shared collector: promauto registers globally, so tests reuse one instance.
var testCollector = metrics.NewCollector("test")

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc           func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc        func(ctx context.Context, email string) (*models.User, error)
	UpdateFailedLoginFunc func(ctx context.Context, id string, attempts int, lastFailedAt *time.Time) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdateFailedLogin(ctx context.Context, id string, attempts int, lastFailedAt *time.Time) error {
	if m.UpdateFailedLoginFunc != nil {
		return m.UpdateFailedLoginFunc(ctx, id, attempts, lastFailedAt)
	}
	return nil
}

// MockSessionRevocationRepository implements SessionRevocationRepository for testing
type MockSessionRevocationRepository struct {
	RevokeSessionFunc    func(ctx context.Context, sid, userID string, expiresAt time.Time, reason string) error
	IsSessionRevokedFunc func(ctx context.Context, sid string) (bool, error)
}

func (m *MockSessionRevocationRepository) RevokeSession(ctx context.Context, sid, userID string, expiresAt time.Time, reason string) error {
	if m.RevokeSessionFunc != nil {
		return m.RevokeSessionFunc(ctx, sid, userID, expiresAt, reason)
	}
	return nil
}

func (m *MockSessionRevocationRepository) IsSessionRevoked(ctx context.Context, sid string) (bool, error) {
	if m.IsSessionRevokedFunc != nil {
		return m.IsSessionRevokedFunc(ctx, sid)
	}
	return false, nil
}

// MockCodeIssuer implements CodeIssuer for testing
type MockCodeIssuer struct {
	GenerateAndSendFunc func(ctx context.Context, user *models.User) error
	ValidateFunc        func(user *models.User, code string) bool
	SentCount           int
}

func (m *MockCodeIssuer) GenerateAndSend(ctx context.Context, user *models.User) error {
	m.SentCount++
	if m.GenerateAndSendFunc != nil {
		return m.GenerateAndSendFunc(ctx, user)
	}
	return nil
}

func (m *MockCodeIssuer) Validate(user *models.User, code string) bool {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(user, code)
	}
	return code == "123456"
}

// nopAuditRecorder discards audit entries.
type nopAuditRecorder struct{}

func (nopAuditRecorder) Record(context.Context, *models.AuditLog) {}

// NewTestUser creates a user with sane defaults for tests.
func NewTestUser(id, email, name, passwordHash string) *models.User {
	now := time.Now()
	return &models.User{
		ID:             id,
		Email:          email,
		PasswordHash:   passwordHash,
		Name:           name,
		Role:           models.RoleNurse,
		EmailConfirmed: true,
		OTPSecret:      "JBSWY3DPEHPK3PXP",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
