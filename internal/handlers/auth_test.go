package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/handlers"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/services"
)

var testCookieConfig = auth.CookieConfig{SameSite: "lax"}

func testPrincipal() models.Principal {
	return models.Principal{
		UserID: "user-1",
		Email:  "nurse@example.com",
		Name:   "Pat Nurse",
		Role:   models.RoleNurse,
	}
}

func TestLogin_SendsCode(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip string) error {
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionWatcher{}, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "nurse@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp map[string]bool
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp["code_sent"])
	assert.Empty(t, w.Result().Cookies(), "login must not establish a session")
}

func TestLogin_InvalidCredentialsAreGeneric(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip string) error {
			return models.ErrInvalidCredentials
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionWatcher{}, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "nurse@example.com",
		Password: "wrongpassword",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestLogin_LockedAccount(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip string) error {
			return models.ErrAccountLocked
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionWatcher{}, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "nurse@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 423, "account_locked")
}

func TestLogin_LockedAccountCarriesRetryHint(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, ip string) error {
			return &models.AccountLockedError{RetryAfter: 30 * time.Minute}
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionWatcher{}, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "nurse@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 423, "account_locked")
	assert.Equal(t, "1800", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "30 minutes")
}

func TestLogin_MissingFields(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, &handlers.MockSessionWatcher{}, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email: "nurse@example.com",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestVerifyCode_EstablishesSession(t *testing.T) {
	watcher := &handlers.MockSessionWatcher{}
	mockAuth := &handlers.MockAuthService{
		VerifyCodeFunc: func(ctx context.Context, email, code, ip string) (*services.SessionResult, error) {
			return &services.SessionResult{
				Token:     "signed-token",
				SessionID: "sid-1",
				Principal: testPrincipal(),
				HomePath:  "/appointments",
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, watcher, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/verify", handlers.VerifyCodeRequest{
		Email: "nurse@example.com",
		Code:  "123456",
	})

	w := httptest.NewRecorder()
	handler.VerifyCode(w, req)

	var resp handlers.SessionResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "nurse@example.com", resp.User.Email)
	assert.Equal(t, "/appointments", resp.HomePath)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "signed-token", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	assert.Equal(t, []string{"sid-1"}, watcher.Registered)
}

func TestVerifyCode_WrongCode(t *testing.T) {
	watcher := &handlers.MockSessionWatcher{}
	mockAuth := &handlers.MockAuthService{
		VerifyCodeFunc: func(ctx context.Context, email, code, ip string) (*services.SessionResult, error) {
			return nil, models.ErrInvalidCode
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, watcher, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/verify", handlers.VerifyCodeRequest{
		Email: "nurse@example.com",
		Code:  "000000",
	})

	w := httptest.NewRecorder()
	handler.VerifyCode(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
	assert.Empty(t, watcher.Registered)
}

func TestVerifyCode_CodeLengthValidated(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, &handlers.MockSessionWatcher{}, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/verify", handlers.VerifyCodeRequest{
		Email: "nurse@example.com",
		Code:  "123",
	})

	w := httptest.NewRecorder()
	handler.VerifyCode(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestResendCode_Blocked(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		ResendCodeFunc: func(ctx context.Context, email, ip string) error {
			return models.ErrResendBlocked
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionWatcher{}, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/resend", handlers.ResendCodeRequest{
		Email: "nurse@example.com",
	})

	w := httptest.NewRecorder()
	handler.ResendCode(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
}

func TestLogout_StopsWatcherAndClearsCookie(t *testing.T) {
	watcher := &handlers.MockSessionWatcher{}
	var gotReason string
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, claims *auth.SessionClaims, reason string) error {
			gotReason = reason
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, watcher, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "POST", "/auth/logout", nil)
	req = handlers.WithSessionContext(req, "sid-9", testPrincipal())

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user_logout", gotReason)
	assert.Equal(t, []string{"sid-9"}, watcher.Stopped)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestMe_ReturnsProfile(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		EnsureProfileFunc: func(ctx context.Context, claims *auth.SessionClaims) (*models.User, error) {
			return &models.User{
				ID:    "user-1",
				Email: "nurse@example.com",
				Name:  "Pat Nurse",
				Role:  models.RoleNurse,
			}, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, &handlers.MockSessionWatcher{}, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/me", nil)
	req = handlers.WithSessionContext(req, "sid-1", testPrincipal())

	w := httptest.NewRecorder()
	handler.Me(w, req)

	var resp handlers.UserResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "nurse@example.com", resp.Email)
	assert.Equal(t, models.RoleNurse, resp.Role)
}

func TestMe_VanishedProfileForcesSignOut(t *testing.T) {
	watcher := &handlers.MockSessionWatcher{}
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, watcher, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/me", nil)
	req = handlers.WithSessionContext(req, "sid-2", testPrincipal())

	w := httptest.NewRecorder()
	handler.Me(w, req)

	handlers.AssertErrorResponse(t, w, 401, "profile_not_found")
	assert.Equal(t, []string{"sid-2"}, watcher.Stopped)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
}

func TestMe_NoSession(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthService{}, &handlers.MockSessionWatcher{}, testCookieConfig, nil)
	req := handlers.NewTestRequest(t, "GET", "/auth/me", nil)

	w := httptest.NewRecorder()
	handler.Me(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}
