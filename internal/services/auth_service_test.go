package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/config"
	"github.com/campuscare/clinicdesk/internal/kv"
	"github.com/campuscare/clinicdesk/internal/models"
	pkgauth "github.com/campuscare/clinicdesk/pkg/auth"
	"github.com/campuscare/clinicdesk/pkg/clock"
	pkglogger "github.com/campuscare/clinicdesk/pkg/logger"
)

const testPassword = "SecurePassword123!"

var (
	testHashOnce sync.Once
	testHash     string
)

func testPasswordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		h, err := pkgauth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("failed to hash test password: %v", err)
		}
		testHash = h
	})
	return testHash
}

type authHarness struct {
	svc    *AuthService
	users  *MockUserRepository
	codes  *MockCodeIssuer
	revoke *MockSessionRevocationRepository
	clk    *clock.Fake

	// counter writes observed through the repo mock
	counterWrites int
}

func newAuthHarness(t *testing.T, user *models.User) *authHarness {
	t.Helper()

	h := &authHarness{
		clk:    clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		users:  &MockUserRepository{},
		codes:  &MockCodeIssuer{},
		revoke: &MockSessionRevocationRepository{},
	}

	if user != nil {
		h.users.GetByEmailFunc = func(_ context.Context, email string) (*models.User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, models.ErrNotFound
		}
		h.users.GetByIDFunc = func(_ context.Context, id string) (*models.User, error) {
			if id == user.ID {
				return user, nil
			}
			return nil, models.ErrNotFound
		}
		h.users.UpdateFailedLoginFunc = func(_ context.Context, id string, attempts int, lastFailedAt *time.Time) error {
			h.counterWrites++
			user.FailedLoginAttempts = attempts
			user.LastFailedLoginAt = lastFailedAt
			return nil
		}
	}

	logger := slog.Default()
	cfg := config.AuthConfig{
		MaxLoginAttempts:  5,
		LockoutWindow:     time.Hour,
		MaxResendAttempts: 3,
		ResendCooldown:    60 * time.Second,
		ResendBlock:       time.Hour,
	}
	resend := NewResendLimiter(kv.NewMemory(), ResendPolicy{
		MaxAttempts: cfg.MaxResendAttempts,
		Cooldown:    cfg.ResendCooldown,
		Block:       cfg.ResendBlock,
	}, h.clk, logger)
	tm := auth.NewTokenManager("unit-test-secret-key-at-least-32-chars", time.Hour)

	h.svc = NewAuthService(
		h.users, h.revoke, h.codes, resend, tm, cfg, h.clk,
		logger, pkglogger.NewAuditLogger(logger), nopAuditRecorder{}, testCollector,
	)
	return h
}

func TestAuthService_Login_SendsCode(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	h := newAuthHarness(t, user)

	err := h.svc.Login(context.Background(), "nurse@school.edu", testPassword, "10.0.0.1")

	assert.NoError(t, err)
	assert.Equal(t, 1, h.codes.SentCount)
	assert.Equal(t, 0, user.FailedLoginAttempts)
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	h := newAuthHarness(t, nil)

	err := h.svc.Login(context.Background(), "nobody@school.edu", testPassword, "10.0.0.1")

	assert.Equal(t, models.ErrInvalidCredentials, err)
	assert.Zero(t, h.counterWrites, "no local account means no counter to touch")
	assert.Zero(t, h.codes.SentCount)
}

func TestAuthService_Login_WrongPasswordIncrementsCounter(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	h := newAuthHarness(t, user)

	err := h.svc.Login(context.Background(), "nurse@school.edu", "wrong-password", "10.0.0.1")

	assert.Equal(t, models.ErrInvalidCredentials, err)
	assert.Equal(t, 1, user.FailedLoginAttempts)
	require.NotNil(t, user.LastFailedLoginAt)
	assert.Equal(t, h.clk.Now(), *user.LastFailedLoginAt)
}

func TestAuthService_Login_FifthFailureLocks(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	user.FailedLoginAttempts = 4
	at := time.Date(2025, 3, 10, 8, 55, 0, 0, time.UTC)
	user.LastFailedLoginAt = &at
	h := newAuthHarness(t, user)

	err := h.svc.Login(context.Background(), "nurse@school.edu", "wrong-password", "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Equal(t, 5, user.FailedLoginAttempts)
}

func TestAuthService_Login_LockedRejectsBeforePasswordCheck(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	user.FailedLoginAttempts = 5
	at := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC) // 30 minutes ago
	user.LastFailedLoginAt = &at
	h := newAuthHarness(t, user)

	// Correct password is irrelevant while the lock holds.
	err := h.svc.Login(context.Background(), "nurse@school.edu", testPassword, "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Zero(t, h.counterWrites, "a locked attempt does not move the counter")
	assert.Zero(t, h.codes.SentCount)
	assert.Equal(t, 5, user.FailedLoginAttempts)
}

func TestAuthService_Login_LockExpiresAfterWindow(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	user.FailedLoginAttempts = 5
	at := time.Date(2025, 3, 10, 7, 30, 0, 0, time.UTC) // 90 minutes ago
	user.LastFailedLoginAt = &at
	h := newAuthHarness(t, user)

	err := h.svc.Login(context.Background(), "nurse@school.edu", testPassword, "10.0.0.1")

	assert.NoError(t, err)
	assert.Equal(t, 0, user.FailedLoginAttempts, "elapsed window resets the counter")
	assert.Nil(t, user.LastFailedLoginAt)
	assert.Equal(t, 1, h.codes.SentCount)
}

func TestAuthService_Login_CorrectPasswordResetsCounter(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	user.FailedLoginAttempts = 4
	at := time.Date(2025, 3, 10, 8, 55, 0, 0, time.UTC)
	user.LastFailedLoginAt = &at
	h := newAuthHarness(t, user)

	err := h.svc.Login(context.Background(), "nurse@school.edu", testPassword, "10.0.0.1")

	assert.NoError(t, err)
	assert.Equal(t, 0, user.FailedLoginAttempts, "a correct password clears earlier failures")
	assert.Nil(t, user.LastFailedLoginAt)
	assert.Equal(t, 1, h.codes.SentCount)
}

func TestAuthService_Login_LockedErrorCarriesRemainingTime(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	user.FailedLoginAttempts = 5
	at := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC) // 30 minutes into a 1h window
	user.LastFailedLoginAt = &at
	h := newAuthHarness(t, user)

	err := h.svc.Login(context.Background(), "nurse@school.edu", testPassword, "10.0.0.1")

	var locked *models.AccountLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 30*time.Minute, locked.RetryAfter)
	assert.Contains(t, err.Error(), "30 minutes")
}

func TestAuthService_Login_UnconfirmedEmailDoesNotCount(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	user.EmailConfirmed = false
	h := newAuthHarness(t, user)

	err := h.svc.Login(context.Background(), "nurse@school.edu", testPassword, "10.0.0.1")

	assert.Equal(t, models.ErrEmailNotConfirmed, err)
	assert.Zero(t, h.counterWrites)
	assert.Zero(t, h.codes.SentCount)
}

func TestAuthService_VerifyCode_IssuesSession(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	user.FailedLoginAttempts = 2
	at := time.Date(2025, 3, 10, 8, 50, 0, 0, time.UTC)
	user.LastFailedLoginAt = &at
	h := newAuthHarness(t, user)

	result, err := h.svc.VerifyCode(context.Background(), "nurse@school.edu", "123456", "10.0.0.1")

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Token)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "u1", result.Principal.UserID)
	assert.Equal(t, "/appointments", result.HomePath)
	assert.Equal(t, 0, user.FailedLoginAttempts, "success clears the counter")
	assert.Nil(t, user.LastFailedLoginAt)
}

func TestAuthService_VerifyCode_AdminLandsOnDashboard(t *testing.T) {
	user := NewTestUser("u1", "admin@school.edu", "Pat Iger", testPasswordHash(t))
	user.Role = models.RoleAdmin
	h := newAuthHarness(t, user)

	result, err := h.svc.VerifyCode(context.Background(), "admin@school.edu", "123456", "10.0.0.1")

	require.NoError(t, err)
	assert.Equal(t, "/dashboard", result.HomePath)
}

func TestAuthService_VerifyCode_WrongCodeCounts(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	h := newAuthHarness(t, user)

	result, err := h.svc.VerifyCode(context.Background(), "nurse@school.edu", "000000", "10.0.0.1")

	assert.Equal(t, models.ErrInvalidCode, err)
	assert.Nil(t, result)
	assert.Equal(t, 1, user.FailedLoginAttempts)
}

func TestAuthService_VerifyCode_LockedAccount(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	user.FailedLoginAttempts = 5
	at := time.Date(2025, 3, 10, 8, 45, 0, 0, time.UTC)
	user.LastFailedLoginAt = &at
	h := newAuthHarness(t, user)

	result, err := h.svc.VerifyCode(context.Background(), "nurse@school.edu", "123456", "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Nil(t, result)
}

func TestAuthService_ResendCode_CooldownApplies(t *testing.T) {
	user := NewTestUser("u1", "nurse@school.edu", "Dana Cho", testPasswordHash(t))
	h := newAuthHarness(t, user)

	require.NoError(t, h.svc.ResendCode(context.Background(), "nurse@school.edu", "10.0.0.1"))
	assert.Equal(t, 1, h.codes.SentCount)

	// Immediately asking again hits the cooldown.
	err := h.svc.ResendCode(context.Background(), "nurse@school.edu", "10.0.0.1")
	assert.Equal(t, models.ErrResendBlocked, err)
	assert.Equal(t, 1, h.codes.SentCount)

	h.clk.Advance(61 * time.Second)
	require.NoError(t, h.svc.ResendCode(context.Background(), "nurse@school.edu", "10.0.0.1"))
	assert.Equal(t, 2, h.codes.SentCount)
}

func TestAuthService_EnsureProfile_MissingAccountForcesSignOut(t *testing.T) {
	h := newAuthHarness(t, nil)

	var revokedReason string
	h.revoke.RevokeSessionFunc = func(_ context.Context, sid, userID string, _ time.Time, reason string) error {
		revokedReason = reason
		return nil
	}

	claims := &auth.SessionClaims{
		Principal: models.Principal{UserID: "gone", Email: "gone@school.edu", Role: models.RoleNurse},
	}
	claims.ID = "sid-1"

	profile, err := h.svc.EnsureProfile(context.Background(), claims)

	assert.Equal(t, models.ErrProfileNotFound, err)
	assert.Nil(t, profile)
	assert.Equal(t, "profile_not_found", revokedReason)
}
