package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/pkg/clock"
	"github.com/campuscare/clinicdesk/pkg/logger"
)

// EmailSender delivers transactional mail. Implemented by EmailService over
// SES; tests substitute a recorder.
type EmailSender interface {
	SendSignInCode(ctx context.Context, to, name, code string) error
}

// OTPService issues and verifies the emailed one-time sign-in codes. Codes are
// TOTP values derived from the per-user secret with a wider-than-usual step so
// a code survives mail delivery latency.
type OTPService struct {
	sender EmailSender
	period time.Duration
	clk    clock.Clock
	logger *slog.Logger
}

func NewOTPService(sender EmailSender, period time.Duration, clk clock.Clock, logger *slog.Logger) *OTPService {
	return &OTPService{
		sender: sender,
		period: period,
		clk:    clk,
		logger: logger,
	}
}

// NewOTPSecret generates a fresh base32 secret for a user account.
func NewOTPSecret(issuer, email string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: email,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate otp secret: %w", err)
	}
	return key.Secret(), nil
}

func (s *OTPService) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(s.period.Seconds()),
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateAndSend produces the current code for the user and emails it.
func (s *OTPService) GenerateAndSend(ctx context.Context, user *models.User) error {
	code, err := totp.GenerateCodeCustom(user.OTPSecret, s.clk.Now(), s.validateOpts())
	if err != nil {
		return fmt.Errorf("failed to generate sign-in code: %w", err)
	}

	if err := s.sender.SendSignInCode(ctx, user.Email, user.Name, code); err != nil {
		return fmt.Errorf("failed to send sign-in code: %w", err)
	}

	s.logger.Info("sign-in code sent", "email", logger.MaskEmail(user.Email))
	return nil
}

// Validate reports whether code is currently valid for the user's secret.
func (s *OTPService) Validate(user *models.User, code string) bool {
	ok, err := totp.ValidateCustom(code, user.OTPSecret, s.clk.Now(), s.validateOpts())
	if err != nil {
		s.logger.Warn("code validation error", "error", err)
		return false
	}
	return ok
}
