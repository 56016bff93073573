package session

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/pkg/clock"
)

type timeoutRecorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *timeoutRecorder) record(sid string, _ models.Principal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, sid)
}

func (r *timeoutRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func fixedTimeout(d time.Duration) TimeoutResolver {
	return func(string) time.Duration { return d }
}

func waitForCount(t *testing.T, r *timeoutRecorder, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.count() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, want, r.count())
}

func newTestMonitor(d time.Duration, rec *timeoutRecorder, clk clock.Clock) *IdleMonitor {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return NewIdleMonitor(fixedTimeout(d), rec.record, clk, logger)
}

func TestIdleMonitor_FiresOnceAfterSilence(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	rec := &timeoutRecorder{}
	m := newTestMonitor(3*time.Minute, rec, clk)

	m.Register("sid-1", models.Principal{Role: models.RoleStaff})
	time.Sleep(10 * time.Millisecond) // let the watchdog arm its timer

	clk.Advance(3 * time.Minute)
	waitForCount(t, rec, 1)

	// No second fire even as time keeps moving.
	clk.Advance(10 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestIdleMonitor_ActivityResetsWindow(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	rec := &timeoutRecorder{}
	m := newTestMonitor(3*time.Minute, rec, clk)

	m.Register("sid-1", models.Principal{Role: models.RoleStaff})
	time.Sleep(10 * time.Millisecond)

	clk.Advance(2 * time.Minute)
	m.Touch("sid-1")
	time.Sleep(10 * time.Millisecond) // touch rearms before more time passes

	clk.Advance(2 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, rec.count(), "activity at minute 2 should push the deadline to minute 5")

	clk.Advance(time.Minute)
	waitForCount(t, rec, 1)
}

func TestIdleMonitor_StopPreventsFire(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	rec := &timeoutRecorder{}
	m := newTestMonitor(3*time.Minute, rec, clk)

	m.Register("sid-1", models.Principal{Role: models.RoleStaff})
	time.Sleep(10 * time.Millisecond)
	m.Stop("sid-1")

	clk.Advance(time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestIdleMonitor_ZeroTimeoutDisablesMonitoring(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	rec := &timeoutRecorder{}
	m := newTestMonitor(0, rec, clk)

	m.Register("sid-1", models.Principal{Role: models.RoleStaff})
	clk.Advance(24 * time.Hour)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestIdleMonitor_TouchUnknownSessionIsNoop(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	rec := &timeoutRecorder{}
	m := newTestMonitor(3*time.Minute, rec, clk)

	m.Touch("never-registered")
	assert.Equal(t, 0, rec.count())
}
