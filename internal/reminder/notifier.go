package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/pkg/clock"
)

// AppointmentLister supplies the current appointment list on each recompute.
type AppointmentLister interface {
	ListUpcomingDay(ctx context.Context, day time.Time) ([]*models.Appointment, error)
}

// NotifyFunc receives each appointment the first time it enters the window.
type NotifyFunc func(a *models.Appointment)

// Notifier polls the appointment list on a fixed cadence and fires the
// callback once per appointment id for the lifetime of the Notifier, even if
// the appointment stays inside the window across several ticks.
type Notifier struct {
	lister AppointmentLister
	notify NotifyFunc
	lead   time.Duration
	tick   time.Duration
	clk    clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	notified map[string]bool
	changeCh chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewNotifier(lister AppointmentLister, notify NotifyFunc, lead, tick time.Duration, clk clock.Clock, logger *slog.Logger) *Notifier {
	return &Notifier{
		lister:   lister,
		notify:   notify,
		lead:     lead,
		tick:     tick,
		clk:      clk,
		logger:   logger,
		notified: make(map[string]bool),
		changeCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Run polls until the context ends or Stop is called. The first compute
// happens immediately; afterwards every tick and on every change signal.
func (n *Notifier) Run(ctx context.Context) {
	ticker := n.clk.NewTicker(n.tick)
	defer ticker.Stop()

	n.compute(ctx)

	for {
		select {
		case <-ticker.C():
			n.compute(ctx)
		case <-n.changeCh:
			n.compute(ctx)
		case <-n.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// NotifyChanged signals that the appointment list changed, forcing an
// immediate recompute ahead of the next tick.
func (n *Notifier) NotifyChanged() {
	select {
	case n.changeCh <- struct{}{}:
	default:
	}
}

// Stop terminates the Run loop.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() { close(n.stopCh) })
}

func (n *Notifier) compute(ctx context.Context) {
	now := n.clk.Now()

	appointments, err := n.lister.ListUpcomingDay(ctx, now)
	if err != nil {
		n.logger.Error("failed to list appointments for reminders", slog.Any("error", err))
		return
	}

	for _, a := range Upcoming(appointments, now, n.lead) {
		n.mu.Lock()
		seen := n.notified[a.ID]
		if !seen {
			n.notified[a.ID] = true
		}
		n.mu.Unlock()

		if seen {
			continue
		}
		n.notify(a)
	}
}
