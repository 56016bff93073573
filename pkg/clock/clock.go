package clock

import "time"

// Clock abstracts time so timer-driven policies (lockout windows, resend
// cooldowns, reminder ticks, idle timeouts) can be tested without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker mirrors the subset of time.Ticker the service layer needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is the wall-clock implementation used in production.
type Real struct{}

func New() Real { return Real{} }

func (Real) Now() time.Time                         { return time.Now() }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt realTicker) C() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()               { rt.t.Stop() }
