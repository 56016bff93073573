package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/config"
	"github.com/campuscare/clinicdesk/internal/models"
	pkgauth "github.com/campuscare/clinicdesk/pkg/auth"
	"github.com/campuscare/clinicdesk/pkg/clock"
	pkglogger "github.com/campuscare/clinicdesk/pkg/logger"
	"github.com/campuscare/clinicdesk/pkg/metrics"
)

// UserRepository defines the user persistence operations AuthService needs.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateFailedLogin(ctx context.Context, id string, attempts int, lastFailedAt *time.Time) error
}

// SessionRevocationRepository defines the session revocation operations
type SessionRevocationRepository interface {
	RevokeSession(ctx context.Context, sid, userID string, expiresAt time.Time, reason string) error
	IsSessionRevoked(ctx context.Context, sid string) (bool, error)
}

// CodeIssuer generates and verifies the emailed one-time sign-in codes.
type CodeIssuer interface {
	GenerateAndSend(ctx context.Context, user *models.User) error
	Validate(user *models.User, code string) bool
}

// AuditRecorder persists audit trail entries. Implementations must not block
// the caller.
type AuditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

// AuthService handles sign-in, the lockout policy, and session lifecycle.
type AuthService struct {
	users       UserRepository
	revocations SessionRevocationRepository
	codes       CodeIssuer
	resend      *ResendLimiter
	tm          *auth.TokenManager
	cfg         config.AuthConfig
	clk         clock.Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	audit       AuditRecorder
	metrics     *metrics.Collector
}

func NewAuthService(
	users UserRepository,
	revocations SessionRevocationRepository,
	codes CodeIssuer,
	resend *ResendLimiter,
	tm *auth.TokenManager,
	cfg config.AuthConfig,
	clk clock.Clock,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	audit AuditRecorder,
	collector *metrics.Collector,
) *AuthService {
	return &AuthService{
		users:       users,
		revocations: revocations,
		codes:       codes,
		resend:      resend,
		tm:          tm,
		cfg:         cfg,
		clk:         clk,
		logger:      logger,
		auditLogger: auditLogger,
		audit:       audit,
		metrics:     collector,
	}
}

// SessionResult is returned once sign-in completes.
type SessionResult struct {
	Token     string
	SessionID string
	Principal models.Principal
	HomePath  string
	ExpiresAt time.Time
}

// Login verifies the password and, on success, resets the failure counter and
// emails a one-time code. The session itself is only issued by VerifyCode.
//
// Lockout policy: once an account accumulates MaxLoginAttempts failures, every
// further attempt is rejected up front, without touching the password check or
// the counter, until LockoutWindow has passed since the last failure. An
// elapsed window resets the counter before the attempt is evaluated.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// No local account: nothing to count against. Same answer as a
			// wrong password so the response does not leak which emails exist.
			s.logger.Info("login failed: unknown email")
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				IPAddress:     ip,
				FailureReason: "invalid_credentials",
				Success:       false,
			})
			s.metrics.LoginFailuresTotal.Inc()
			return models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.checkLockout(ctx, user, ip); err != nil {
		return err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return s.recordFailure(ctx, user, ip, "invalid_credentials", models.ErrInvalidCredentials)
	}

	// A confirmed mailbox is a precondition for the code step. This outcome
	// does not count against the lockout budget.
	if !user.EmailConfirmed {
		s.logger.Info("login blocked: email not confirmed", slog.String("user_id", user.ID))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ip,
			FailureReason: "email_not_confirmed",
			Success:       false,
		})
		return models.ErrEmailNotConfirmed
	}

	// A correct password is a successful attempt: clear any accumulated
	// failures before the code step so a later code typo starts from zero.
	if user.FailedLoginAttempts > 0 {
		if err := s.users.UpdateFailedLogin(ctx, user.ID, 0, nil); err != nil {
			s.logger.Error("failed to reset login counter", slog.String("user_id", user.ID), slog.Any("error", err))
		} else {
			user.FailedLoginAttempts = 0
			user.LastFailedLoginAt = nil
		}
	}

	if err := s.codes.GenerateAndSend(ctx, user); err != nil {
		s.logger.Error("failed to deliver sign-in code", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.metrics.CodesSentTotal.Inc()
	s.recordAudit(ctx, &models.AuditLog{
		EventType: models.AuditEventTypeCodeSent,
		ActorID:   &user.ID,
		Action:    models.AuditActionAccess,
		Success:   true,
		IPAddress: &ip,
	})

	return nil
}

// VerifyCode checks the emailed code and issues the session. A wrong code
// counts against the same failure budget as a wrong password.
func (s *AuthService) VerifyCode(ctx context.Context, email, code, ip string) (*SessionResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCode
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.checkLockout(ctx, user, ip); err != nil {
		return nil, err
	}

	if !s.codes.Validate(user, code) {
		return nil, s.recordFailure(ctx, user, ip, "invalid_code", models.ErrInvalidCode)
	}

	// Successful sign-in clears the failure counter and the resend throttle.
	if user.FailedLoginAttempts > 0 {
		if err := s.users.UpdateFailedLogin(ctx, user.ID, 0, nil); err != nil {
			s.logger.Error("failed to reset login counter", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
	s.resend.Reset(user.Email)

	principal := models.Principal{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
	}

	token, sid, err := s.tm.IssueSession(principal)
	if err != nil {
		s.logger.Error("failed to issue session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		IPAddress: ip,
		Success:   true,
	})
	s.recordAudit(ctx, &models.AuditLog{
		EventType: models.AuditEventTypeLogin,
		ActorID:   &user.ID,
		ActorRole: &user.Role,
		Action:    models.AuditActionAccess,
		Success:   true,
		IPAddress: &ip,
	})

	return &SessionResult{
		Token:     token,
		SessionID: sid,
		Principal: principal,
		HomePath:  principal.HomePath(),
		ExpiresAt: s.clk.Now().Add(s.tm.SessionTTL()),
	}, nil
}

// ResendCode sends a fresh sign-in code, subject to the resend throttle.
func (s *AuthService) ResendCode(ctx context.Context, email, ip string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := s.resend.Allow(email); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// The throttle already charged the attempt; answer as if sent so
			// the endpoint cannot be used to probe for accounts.
			return nil
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.checkLockout(ctx, user, ip); err != nil {
		return err
	}

	if err := s.codes.GenerateAndSend(ctx, user); err != nil {
		s.logger.Error("failed to resend sign-in code", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.metrics.CodesSentTotal.Inc()
	s.recordAudit(ctx, &models.AuditLog{
		EventType: models.AuditEventTypeCodeSent,
		ActorID:   &user.ID,
		Action:    models.AuditActionAccess,
		Success:   true,
		IPAddress: &ip,
	})

	return nil
}

// Logout revokes the current session.
func (s *AuthService) Logout(ctx context.Context, claims *auth.SessionClaims, reason string) error {
	expiresAt := s.clk.Now().Add(s.tm.SessionTTL())
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	if err := s.revocations.RevokeSession(ctx, claims.SessionID(), claims.Principal.UserID, expiresAt, reason); err != nil {
		s.logger.Error("failed to revoke session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.recordAudit(ctx, &models.AuditLog{
		EventType: models.AuditEventTypeLogout,
		ActorID:   &claims.Principal.UserID,
		ActorRole: &claims.Principal.Role,
		Action:    models.AuditActionAccess,
		Success:   true,
		Metadata:  models.AuditMetadata{"reason": reason},
	})

	return nil
}

// EnsureProfile resolves the account behind a valid session. A session whose
// account row has disappeared is revoked on the spot and the caller gets
// ErrProfileNotFound, forcing a fresh sign-in.
func (s *AuthService) EnsureProfile(ctx context.Context, claims *auth.SessionClaims) (*models.User, error) {
	user, err := s.users.GetByID(ctx, claims.Principal.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("session for missing profile, forcing sign-out",
				slog.String("user_id", claims.Principal.UserID))
			if err := s.Logout(ctx, claims, "profile_not_found"); err != nil {
				s.logger.Error("failed to revoke orphaned session", slog.Any("error", err))
			}
			return nil, models.ErrProfileNotFound
		}
		s.logger.Error("failed to load profile", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user, nil
}

// checkLockout rejects the attempt while the account is locked and resets the
// counter when the window has elapsed. The user struct is updated in place so
// the caller sees the post-reset state.
func (s *AuthService) checkLockout(ctx context.Context, user *models.User, ip string) error {
	if user.FailedLoginAttempts < s.cfg.MaxLoginAttempts || user.LastFailedLoginAt == nil {
		return nil
	}

	elapsed := s.clk.Now().Sub(*user.LastFailedLoginAt)
	if elapsed < s.cfg.LockoutWindow {
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			UserID:        user.ID,
			IPAddress:     ip,
			FailureReason: "account_locked",
			Success:       false,
		})
		return &models.AccountLockedError{RetryAfter: s.cfg.LockoutWindow - elapsed}
	}

	if err := s.users.UpdateFailedLogin(ctx, user.ID, 0, nil); err != nil {
		s.logger.Error("failed to reset login counter", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	user.FailedLoginAttempts = 0
	user.LastFailedLoginAt = nil
	return nil
}

// recordFailure increments the counter, stamps the failure time, and returns
// either the supplied failure error or a lockout error when this failure
// reaches the limit.
func (s *AuthService) recordFailure(ctx context.Context, user *models.User, ip, reason string, failureErr error) error {
	attempts := user.FailedLoginAttempts + 1
	now := s.clk.Now()

	if err := s.users.UpdateFailedLogin(ctx, user.ID, attempts, &now); err != nil {
		s.logger.Error("failed to record login failure", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.metrics.LoginFailuresTotal.Inc()
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		UserID:        user.ID,
		IPAddress:     ip,
		FailureReason: reason,
		Success:       false,
	})

	if attempts >= s.cfg.MaxLoginAttempts {
		s.metrics.LockoutsTotal.Inc()
		s.logger.Warn("account locked after repeated failures",
			slog.String("user_id", user.ID),
			slog.Int("attempts", attempts))
		s.recordAudit(ctx, &models.AuditLog{
			EventType:     models.AuditEventTypeLockout,
			ActorID:       &user.ID,
			Action:        models.AuditActionAccess,
			Success:       false,
			FailureReason: &reason,
			IPAddress:     &ip,
			Metadata:      models.AuditMetadata{"attempts": attempts},
		})
		return &models.AccountLockedError{RetryAfter: s.cfg.LockoutWindow}
	}

	return failureErr
}

func (s *AuthService) recordAudit(ctx context.Context, entry *models.AuditLog) {
	if s.audit != nil {
		s.audit.Record(ctx, entry)
	}
}
