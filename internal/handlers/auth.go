package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/services"
	pkghttp "github.com/campuscare/clinicdesk/pkg/http"
)

// AuthServiceInterface defines the auth business logic used by the handler
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ip string) error
	VerifyCode(ctx context.Context, email, code, ip string) (*services.SessionResult, error)
	ResendCode(ctx context.Context, email, ip string) error
	Logout(ctx context.Context, claims *auth.SessionClaims, reason string) error
	EnsureProfile(ctx context.Context, claims *auth.SessionClaims) (*models.User, error)
}

// SessionWatcher is the idle-monitor surface the handler drives: sessions are
// registered after sign-in and torn down on logout.
type SessionWatcher interface {
	Register(sid string, principal models.Principal)
	Stop(sid string)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service      AuthServiceInterface
	sessions     SessionWatcher
	cookieConfig auth.CookieConfig
	ipConfig     *pkghttp.IPConfig
}

func NewAuthHandler(service AuthServiceInterface, sessions SessionWatcher, cookieConfig auth.CookieConfig, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:      service,
		sessions:     sessions,
		cookieConfig: cookieConfig,
		ipConfig:     ipConfig,
	}
}

// Request DTOs

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

type ResendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// Response DTOs

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type SessionResponse struct {
	User      UserResponse `json:"user"`
	HomePath  string       `json:"home_path"`
	ExpiresAt string       `json:"expires_at"`
}

// Login verifies the password and triggers the emailed sign-in code.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.Login(r.Context(), req.Email, req.Password, ip); err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"code_sent": true})
}

// VerifyCode checks the emailed code and establishes the session.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	result, err := h.service.VerifyCode(r.Context(), req.Email, req.Code, ip)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	auth.SetSessionCookie(w, result.Token, time.Until(result.ExpiresAt), h.cookieConfig)
	h.sessions.Register(result.SessionID, result.Principal)

	pkghttp.WriteJSON(w, http.StatusOK, SessionResponse{
		User: UserResponse{
			ID:    result.Principal.UserID,
			Email: result.Principal.Email,
			Name:  result.Principal.Name,
			Role:  result.Principal.Role,
		},
		HomePath:  result.HomePath,
		ExpiresAt: result.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// ResendCode sends a fresh sign-in code, subject to the resend throttle.
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req ResendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	if err := h.service.ResendCode(r.Context(), req.Email, ip); err != nil {
		writeAuthError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"code_sent": true})
}

// Logout revokes the session and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), claims, "user_logout"); err != nil {
		pkghttp.WriteInternalError(w, "Failed to end session")
		return
	}

	h.sessions.Stop(claims.SessionID())
	auth.ClearSessionCookie(w, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

// Me returns the signed-in user's profile. A session whose account row has
// disappeared gets signed out with 401.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetSessionFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	user, err := h.service.EnsureProfile(r.Context(), claims)
	if err != nil {
		if errors.Is(err, models.ErrProfileNotFound) {
			h.sessions.Stop(claims.SessionID())
			auth.ClearSessionCookie(w, h.cookieConfig)
			pkghttp.WriteError(w, http.StatusUnauthorized, "profile_not_found", err.Error())
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, UserResponse{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	})
}

// writeAuthError maps auth service errors onto HTTP responses. Credential and
// code failures share one generic answer to avoid account enumeration.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrAccountLocked):
		var locked *models.AccountLockedError
		if errors.As(err, &locked) && locked.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(locked.RetryAfter.Seconds())))
		}
		pkghttp.WriteLocked(w, err.Error())
	case errors.Is(err, models.ErrResendBlocked):
		pkghttp.WriteTooManyRequests(w, err.Error())
	case errors.Is(err, models.ErrEmailNotConfirmed):
		pkghttp.WriteForbidden(w, err.Error())
	case errors.Is(err, models.ErrInvalidCredentials), errors.Is(err, models.ErrInvalidCode):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
