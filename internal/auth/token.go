package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campuscare/clinicdesk/internal/models"
)

// SessionClaims is the payload of the session cookie: the principal plus the
// registered claims. The JTI doubles as the session id for revocation and
// idle tracking.
type SessionClaims struct {
	Principal models.Principal `json:"principal"`
	jwt.RegisteredClaims
}

// SessionID returns the session identifier (the token JTI).
func (c *SessionClaims) SessionID() string { return c.ID }

// TokenManager signs and validates session tokens
type TokenManager struct {
	secret     string
	sessionTTL time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, sessionTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     secret,
		sessionTTL: sessionTTL,
	}
}

// SessionTTL exposes the configured session lifetime (used for cookie expiry).
func (tm *TokenManager) SessionTTL() time.Duration { return tm.sessionTTL }

// IssueSession creates a signed session token carrying the principal.
// Returns the token string and its session id.
func (tm *TokenManager) IssueSession(principal models.Principal) (string, string, error) {
	sid := uuid.New().String()

	claims := &SessionClaims{
		Principal: principal,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sid,
			Subject:   principal.UserID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.sessionTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, sid, nil
}

// ValidateSession verifies a session token and returns its claims
func (tm *TokenManager) ValidateSession(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, models.ErrUnauthorized
	}

	if !token.Valid || claims.ID == "" {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
