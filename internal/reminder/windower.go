// Package reminder computes which appointments are coming up within a lead
// time of now. The badge variant reflects the live window; the notifier
// variant fires once per appointment.
package reminder

import (
	"time"

	"github.com/campuscare/clinicdesk/internal/models"
)

// Upcoming returns the appointments starting today within lead of now.
// An appointment qualifies iff it falls on now's calendar day and
// 0 <= minutes-until-start <= lead minutes. Past-due appointments never
// qualify.
func Upcoming(appointments []*models.Appointment, now time.Time, lead time.Duration) []*models.Appointment {
	leadMinutes := int(lead / time.Minute)
	var out []*models.Appointment
	for _, a := range appointments {
		if !a.IsSameDay(now) {
			continue
		}
		if a.StartsAt.Before(now) {
			continue
		}
		if m := a.MinutesUntil(now); m >= 0 && m <= leadMinutes {
			out = append(out, a)
		}
	}
	return out
}
