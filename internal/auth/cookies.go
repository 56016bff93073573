package auth

import (
	"net/http"
	"time"
)

const sessionCookieName = "clinicdesk_session"

// CookieConfig controls attributes on the session cookie.
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

func (c CookieConfig) newCookie(value string) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	switch c.SameSite {
	case "strict":
		sameSite = http.SameSiteStrictMode
	case "none":
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: sameSite,
	}
}

// SetSessionCookie writes the signed session token into an httpOnly cookie.
func SetSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration, config CookieConfig) {
	cookie := config.newCookie(token)
	cookie.Expires = time.Now().Add(maxAge)
	cookie.MaxAge = int(maxAge.Seconds())
	http.SetCookie(w, cookie)
}

// ClearSessionCookie expires the session cookie immediately.
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	cookie := config.newCookie("")
	cookie.MaxAge = -1
	http.SetCookie(w, cookie)
}

// GetSessionCookie reads the session token off the request.
func GetSessionCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}
