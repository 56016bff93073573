// Package session tracks per-session inactivity and terminates sessions that
// stay silent past their role's grace period.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/pkg/clock"
)

// TimeoutResolver maps a role to its idle grace period. A zero duration
// disables monitoring for that principal.
type TimeoutResolver func(role string) time.Duration

// TimeoutFunc is invoked exactly once when a session idles out.
type TimeoutFunc func(sid string, principal models.Principal)

// watchdog guards a single session. Activity reschedules the deferred
// timeout; Stop tears it down without firing.
type watchdog struct {
	touchCh chan struct{}
	stopCh  chan struct{}
	once    sync.Once
}

// IdleMonitor owns one watchdog per live session. It implements the
// ActivityToucher the auth middleware signals on every request.
type IdleMonitor struct {
	mu        sync.Mutex
	watchers  map[string]*watchdog
	resolve   TimeoutResolver
	onTimeout TimeoutFunc
	clk       clock.Clock
	logger    *slog.Logger
}

func NewIdleMonitor(resolve TimeoutResolver, onTimeout TimeoutFunc, clk clock.Clock, logger *slog.Logger) *IdleMonitor {
	return &IdleMonitor{
		watchers:  make(map[string]*watchdog),
		resolve:   resolve,
		onTimeout: onTimeout,
		clk:       clk,
		logger:    logger,
	}
}

// Register starts watching a session. The timeout is resolved from the
// principal's role once, at registration; a changed role takes effect only
// when a new session is established.
func (m *IdleMonitor) Register(sid string, principal models.Principal) {
	timeout := m.resolve(principal.Role)
	if timeout <= 0 {
		return
	}

	w := &watchdog{
		touchCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}

	m.mu.Lock()
	if old, ok := m.watchers[sid]; ok {
		old.stop()
	}
	m.watchers[sid] = w
	m.mu.Unlock()

	go m.watch(sid, principal, timeout, w)
}

// Touch records activity for a session. Unknown session ids are ignored.
func (m *IdleMonitor) Touch(sid string) {
	m.mu.Lock()
	w, ok := m.watchers[sid]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.touchCh <- struct{}{}:
	default:
	}
}

// Stop tears down the watchdog for a session (logout) without firing.
func (m *IdleMonitor) Stop(sid string) {
	m.mu.Lock()
	w, ok := m.watchers[sid]
	delete(m.watchers, sid)
	m.mu.Unlock()
	if ok {
		w.stop()
	}
}

// StopAll tears down every watchdog (shutdown).
func (m *IdleMonitor) StopAll() {
	m.mu.Lock()
	watchers := m.watchers
	m.watchers = make(map[string]*watchdog)
	m.mu.Unlock()
	for _, w := range watchers {
		w.stop()
	}
}

func (m *IdleMonitor) watch(sid string, principal models.Principal, timeout time.Duration, w *watchdog) {
	deadline := m.clk.After(timeout)
	for {
		select {
		case <-deadline:
			m.mu.Lock()
			delete(m.watchers, sid)
			m.mu.Unlock()
			m.logger.Info("session idled out",
				slog.String("session_id", sid),
				slog.String("role", principal.Role),
				slog.Duration("timeout", timeout))
			m.onTimeout(sid, principal)
			return
		case <-w.touchCh:
			deadline = m.clk.After(timeout)
		case <-w.stopCh:
			return
		}
	}
}

func (w *watchdog) stop() {
	w.once.Do(func() { close(w.stopCh) })
}
