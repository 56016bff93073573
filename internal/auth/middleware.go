package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/campuscare/clinicdesk/internal/models"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// SessionContextKey is the key for storing session claims in context
	SessionContextKey contextKey = "session"
)

// SessionRevocationChecker reports whether a session id has been revoked
type SessionRevocationChecker interface {
	IsSessionRevoked(ctx context.Context, sid string) (bool, error)
}

// ActivityToucher receives activity signals for the inactivity monitor
type ActivityToucher interface {
	Touch(sid string)
}

// RevocationConfig holds configuration for revocation-check failures
type RevocationConfig struct {
	FailClosed bool // deny access when the revocation check itself errors
}

// SessionMiddleware validates the session cookie (or Bearer token), checks
// revocation, signals activity to the idle monitor, and injects the claims
// into the request context.
func SessionMiddleware(tm *TokenManager, revocationChecker SessionRevocationChecker, toucher ActivityToucher, cfg RevocationConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := GetSessionCookie(r)
			if err != nil || tokenString == "" {
				// Bearer fallback for non-browser clients
				authHeader := r.Header.Get("Authorization")
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					http.Error(w, "missing session", http.StatusUnauthorized)
					return
				}
				tokenString = parts[1]
			}

			claims, err := tm.ValidateSession(tokenString)
			if err != nil {
				http.Error(w, "invalid or expired session", http.StatusUnauthorized)
				return
			}

			if revocationChecker != nil {
				revoked, err := revocationChecker.IsSessionRevoked(r.Context(), claims.SessionID())
				if err != nil {
					if cfg.FailClosed {
						http.Error(w, "unable to verify session status", http.StatusServiceUnavailable)
						return
					}
					// Fail open on check errors; expired/invalid tokens were
					// already rejected above.
				}
				if revoked {
					http.Error(w, "session has ended", http.StatusUnauthorized)
					return
				}
			}

			// Every authenticated request counts as activity.
			if toucher != nil {
				toucher.Touch(claims.SessionID())
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole enforces role-based access using the role embedded in the
// session principal.
func RequireRole(roles ...string) func(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetSessionFromContext(r)
			if claims == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !allowed[claims.Principal.Role] {
				http.Error(w, "forbidden: insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetSessionFromContext extracts session claims placed by SessionMiddleware.
// Returns nil when the request is unauthenticated.
func GetSessionFromContext(r *http.Request) *SessionClaims {
	claims, _ := r.Context().Value(SessionContextKey).(*SessionClaims)
	return claims
}

// PrincipalFromContext is a convenience accessor for handlers.
func PrincipalFromContext(r *http.Request) (models.Principal, bool) {
	claims := GetSessionFromContext(r)
	if claims == nil {
		return models.Principal{}, false
	}
	return claims.Principal, true
}
