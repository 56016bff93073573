package reminder

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/pkg/clock"
)

func appt(id string, startsAt time.Time) *models.Appointment {
	return &models.Appointment{ID: id, StudentName: "Jordan Reyes", StartsAt: startsAt, Reason: "checkup"}
}

func TestUpcoming_WindowBoundaries(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	target := appt("a1", day.Add(14*time.Hour)) // today 14:00

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"ten minutes before", day.Add(13*time.Hour + 50*time.Minute), 1},
		{"exactly at lead boundary", day.Add(13*time.Hour + 45*time.Minute), 1},
		{"sixteen minutes before", day.Add(13*time.Hour + 44*time.Minute), 0},
		{"at start time", day.Add(14 * time.Hour), 1},
		{"one minute past", day.Add(14*time.Hour + time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Upcoming([]*models.Appointment{target}, tt.now, 15*time.Minute)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestUpcoming_OtherDayExcluded(t *testing.T) {
	now := time.Date(2025, 3, 10, 23, 55, 0, 0, time.UTC)
	tomorrow := appt("a1", now.Add(10*time.Minute)) // 00:05 next day

	got := Upcoming([]*models.Appointment{tomorrow}, now, 15*time.Minute)
	assert.Empty(t, got, "an appointment just past midnight is not today's")
}

func TestUpcoming_BadgeSetShrinksAsTimeAdvances(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	appointments := []*models.Appointment{
		appt("a1", day.Add(14*time.Hour)),
		appt("a2", day.Add(14*time.Hour+30*time.Minute)),
	}

	inWindow := Upcoming(appointments, day.Add(13*time.Hour+50*time.Minute), 15*time.Minute)
	assert.Len(t, inWindow, 1)

	later := Upcoming(appointments, day.Add(14*time.Hour+20*time.Minute), 15*time.Minute)
	assert.Len(t, later, 1)
	assert.Equal(t, "a2", later[0].ID)

	after := Upcoming(appointments, day.Add(15*time.Hour), 15*time.Minute)
	assert.Empty(t, after)
}

type staticLister struct {
	mu           sync.Mutex
	appointments []*models.Appointment
}

func (l *staticLister) ListUpcomingDay(_ context.Context, _ time.Time) ([]*models.Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appointments, nil
}

func (l *staticLister) set(a []*models.Appointment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appointments = a
}

type notifyRecorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *notifyRecorder) record(a *models.Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, a.ID)
}

func (r *notifyRecorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func waitForFired(t *testing.T, rec *notifyRecorder, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.ids()) == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	assert.Len(t, rec.ids(), want)
}

func TestNotifier_FiresOncePerAppointment(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	start := day.Add(13*time.Hour + 56*time.Minute) // 4 minutes before a 14:00 appointment
	clk := clock.NewFake(start)

	lister := &staticLister{appointments: []*models.Appointment{appt("x", day.Add(14 * time.Hour))}}
	rec := &notifyRecorder{}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	n := NewNotifier(lister, rec.record, 5*time.Minute, time.Minute, clk, logger)
	defer n.Stop()
	go n.Run(context.Background())

	// Immediate compute at minute 4-before fires the toast.
	waitForFired(t, rec, 1)

	// Two ticks later the appointment is still inside the window; no re-fire.
	clk.Advance(2 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"x"}, rec.ids())
}

func TestNotifier_ChangeSignalTriggersRecompute(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(day.Add(13*time.Hour + 58*time.Minute))

	lister := &staticLister{}
	rec := &notifyRecorder{}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	n := NewNotifier(lister, rec.record, 5*time.Minute, time.Minute, clk, logger)
	defer n.Stop()
	go n.Run(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.ids())

	lister.set([]*models.Appointment{appt("y", day.Add(14 * time.Hour))})
	n.NotifyChanged()
	waitForFired(t, rec, 1)
}
