package models

import "time"

type Medicine struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Stock     int       `db:"stock"`
	Unit      string    `db:"unit"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// IsExpired reports whether the medicine is past its expiry date.
func (m *Medicine) IsExpired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}
