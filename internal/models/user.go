package models

import (
	"time"
)

// Staff roles. Admins land on the dashboard after login, everyone else on the
// appointments view.
const (
	RoleAdmin     = "admin"
	RoleNurse     = "nurse"
	RolePhysician = "physician"
	RoleStaff     = "staff"
)

type User struct {
	ID                  string     `db:"id"`
	Email               string     `db:"email"`
	PasswordHash        string     `db:"password_hash"`
	Name                string     `db:"name"`
	Role                string     `db:"role"`
	EmailConfirmed      bool       `db:"email_confirmed"`
	OTPSecret           string     `db:"otp_secret"` // Base32 secret backing emailed one-time codes
	FailedLoginAttempts int        `db:"failed_login_attempts"`
	LastFailedLoginAt   *time.Time `db:"last_failed_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// IsValidRole reports whether role is one of the known staff roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleNurse, RolePhysician, RoleStaff:
		return true
	}
	return false
}

// Principal is the authenticated identity carried in the session cookie.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// HomePath returns the post-login destination for the principal's role.
func (p Principal) HomePath() string {
	if p.Role == RoleAdmin {
		return "/dashboard"
	}
	return "/appointments"
}
