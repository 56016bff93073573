package models

import (
	"time"
)

// Appointment is immutable once scheduled; there is no reschedule path, only
// delete-and-recreate.
type Appointment struct {
	ID          string    `db:"id"`
	StudentName string    `db:"student_name"`
	StartsAt    time.Time `db:"starts_at"`
	Reason      string    `db:"reason"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
}

// MinutesUntil returns whole minutes from now until the appointment start,
// truncated toward zero. Negative once the start time has passed.
func (a *Appointment) MinutesUntil(now time.Time) int {
	return int(a.StartsAt.Sub(now) / time.Minute)
}

// IsSameDay reports whether the appointment falls on the same calendar day as
// now, in now's location.
func (a *Appointment) IsSameDay(now time.Time) bool {
	y1, m1, d1 := a.StartsAt.In(now.Location()).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
