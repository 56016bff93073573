package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/campuscare/clinicdesk/internal/kv"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/pkg/clock"
)

// ResendPolicy bounds how often a user can ask for a fresh sign-in code.
type ResendPolicy struct {
	MaxAttempts int
	Cooldown    time.Duration
	Block       time.Duration
}

type resendRecord struct {
	Attempts     int   `json:"attempts"`
	LastSentAt   int64 `json:"last_sent_at"`
	BlockedUntil int64 `json:"blocked_until,omitempty"`
}

// ResendLimiter throttles code-resend requests per email address. State lives
// in an injected key-value store so tests and deployments choose the backend.
type ResendLimiter struct {
	store  kv.Store
	policy ResendPolicy
	clk    clock.Clock
	logger *slog.Logger
}

func NewResendLimiter(store kv.Store, policy ResendPolicy, clk clock.Clock, logger *slog.Logger) *ResendLimiter {
	return &ResendLimiter{
		store:  store,
		policy: policy,
		clk:    clk,
		logger: logger,
	}
}

func resendKey(email string) string {
	return "resend:" + email
}

// Allow records a resend attempt for email and returns nil when a code may be
// sent now. It returns ErrResendBlocked while the cooldown or the block is in
// effect. A block that has expired resets the counter entirely.
func (l *ResendLimiter) Allow(email string) error {
	key := resendKey(email)
	now := l.clk.Now()

	rec := l.load(key)

	if rec.BlockedUntil > 0 {
		if now.Unix() < rec.BlockedUntil {
			return models.ErrResendBlocked
		}
		// Block elapsed: start over.
		rec = resendRecord{}
	}

	if rec.LastSentAt > 0 && now.Sub(time.Unix(rec.LastSentAt, 0)) < l.policy.Cooldown {
		return models.ErrResendBlocked
	}

	rec.Attempts++
	rec.LastSentAt = now.Unix()

	// The send that exhausts the budget still goes out, but it anchors the
	// block: no further sends until Block has passed since this one.
	if rec.Attempts >= l.policy.MaxAttempts {
		rec.BlockedUntil = now.Add(l.policy.Block).Unix()
		l.logger.Warn("resend limit reached, blocking further sends",
			"attempts", rec.Attempts,
			"blocked_until", time.Unix(rec.BlockedUntil, 0).UTC().Format(time.RFC3339),
		)
	}

	l.save(key, rec)
	return nil
}

// Reset clears the resend state, e.g. after a successful sign-in.
func (l *ResendLimiter) Reset(email string) {
	l.store.Remove(resendKey(email))
}

func (l *ResendLimiter) load(key string) resendRecord {
	var rec resendRecord
	raw, ok := l.store.Get(key)
	if !ok {
		return rec
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// Corrupt state is treated as absent rather than wedging the user.
		l.logger.Warn("dropping unreadable resend record", "error", err)
		l.store.Remove(key)
		return resendRecord{}
	}
	return rec
}

func (l *ResendLimiter) save(key string, rec resendRecord) {
	raw, err := json.Marshal(rec)
	if err != nil {
		l.logger.Error("failed to encode resend record", "error", fmt.Errorf("marshal: %w", err))
		return
	}
	l.store.Set(key, string(raw))
}
