package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication failure conditions
	ErrAccountLocked       = errors.New("too many failed attempts, account is temporarily locked")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidCode         = errors.New("invalid or expired code")
	ErrEmailNotConfirmed   = errors.New("please confirm your email address before signing in")
	ErrProfileNotFound     = errors.New("account profile not found, please contact support")
	ErrResendBlocked       = errors.New("too many resend requests, try again later")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrProviderUnavailable = errors.New("external service unavailable")

	// Inventory conditions
	ErrInsufficientStock = errors.New("insufficient medicine stock")
)

// AccountLockedError carries how much of the lockout window remains, so the
// user-facing message can say when to retry. It matches ErrAccountLocked
// under errors.Is; callers that only care about the condition keep working.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	minutes := int(math.Ceil(e.RetryAfter.Minutes()))
	if minutes <= 1 {
		return "too many failed attempts, try again in 1 minute"
	}
	return fmt.Sprintf("too many failed attempts, try again in %d minutes", minutes)
}

func (e *AccountLockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
