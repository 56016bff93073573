package services

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/clinicdesk/internal/kv"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/pkg/clock"
)

func newTestLimiter() (*ResendLimiter, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	limiter := NewResendLimiter(kv.NewMemory(), ResendPolicy{
		MaxAttempts: 3,
		Cooldown:    60 * time.Second,
		Block:       time.Hour,
	}, clk, slog.Default())
	return limiter, clk
}

func TestResendLimiter_FirstAttemptAllowed(t *testing.T) {
	limiter, _ := newTestLimiter()
	assert.NoError(t, limiter.Allow("a@school.edu"))
}

func TestResendLimiter_CooldownBetweenSends(t *testing.T) {
	limiter, clk := newTestLimiter()

	require.NoError(t, limiter.Allow("a@school.edu"))
	assert.Equal(t, models.ErrResendBlocked, limiter.Allow("a@school.edu"))

	clk.Advance(59 * time.Second)
	assert.Equal(t, models.ErrResendBlocked, limiter.Allow("a@school.edu"))

	clk.Advance(2 * time.Second)
	assert.NoError(t, limiter.Allow("a@school.edu"))
}

func TestResendLimiter_BlocksAfterMaxAttempts(t *testing.T) {
	limiter, clk := newTestLimiter()

	// The third send itself is still permitted.
	for i := 0; i < 3; i++ {
		if i > 0 {
			clk.Advance(61 * time.Second)
		}
		require.NoError(t, limiter.Allow("a@school.edu"), "attempt %d", i+1)
	}

	// But it starts the block: every further attempt is rejected.
	clk.Advance(2 * time.Minute)
	assert.Equal(t, models.ErrResendBlocked, limiter.Allow("a@school.edu"))

	clk.Advance(10 * time.Minute)
	assert.Equal(t, models.ErrResendBlocked, limiter.Allow("a@school.edu"))
}

func TestResendLimiter_BlockExpiryResetsCounter(t *testing.T) {
	limiter, clk := newTestLimiter()

	// Third send at T anchors the block at T+1h.
	for i := 0; i < 3; i++ {
		if i > 0 {
			clk.Advance(61 * time.Second)
		}
		require.NoError(t, limiter.Allow("a@school.edu"))
	}

	// Denied attempts inside the block do not extend it.
	clk.Advance(2 * time.Minute)
	require.Equal(t, models.ErrResendBlocked, limiter.Allow("a@school.edu"))

	clk.Advance(57 * time.Minute) // T+59m
	require.Equal(t, models.ErrResendBlocked, limiter.Allow("a@school.edu"))

	clk.Advance(2 * time.Minute) // T+61m, past the hour since the third send
	assert.NoError(t, limiter.Allow("a@school.edu"), "an expired block starts a fresh budget")
}

func TestResendLimiter_PerEmailIsolation(t *testing.T) {
	limiter, _ := newTestLimiter()

	require.NoError(t, limiter.Allow("a@school.edu"))
	assert.NoError(t, limiter.Allow("b@school.edu"), "throttle state is per address")
}

func TestResendLimiter_ResetClearsState(t *testing.T) {
	limiter, _ := newTestLimiter()

	require.NoError(t, limiter.Allow("a@school.edu"))
	require.Equal(t, models.ErrResendBlocked, limiter.Allow("a@school.edu"))

	limiter.Reset("a@school.edu")
	assert.NoError(t, limiter.Allow("a@school.edu"))
}

func TestResendLimiter_CorruptRecordTreatedAsFresh(t *testing.T) {
	store := kv.NewMemory()
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	limiter := NewResendLimiter(store, ResendPolicy{MaxAttempts: 3, Cooldown: 60 * time.Second, Block: time.Hour}, clk, slog.Default())

	store.Set("resend:a@school.edu", "{not json")
	assert.NoError(t, limiter.Allow("a@school.edu"))
}
