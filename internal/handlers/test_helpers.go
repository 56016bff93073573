package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/services"
	pkghttp "github.com/campuscare/clinicdesk/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext adds session claims to request context for testing
// authenticated endpoints
func WithSessionContext(req *http.Request, sid string, principal models.Principal) *http.Request {
	claims := &auth.SessionClaims{
		Principal: principal,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:      sid,
			Subject: principal.UserID,
		},
	}
	ctx := context.WithValue(req.Context(), auth.SessionContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc         func(ctx context.Context, email, password, ip string) error
	VerifyCodeFunc    func(ctx context.Context, email, code, ip string) (*services.SessionResult, error)
	ResendCodeFunc    func(ctx context.Context, email, ip string) error
	LogoutFunc        func(ctx context.Context, claims *auth.SessionClaims, reason string) error
	EnsureProfileFunc func(ctx context.Context, claims *auth.SessionClaims) (*models.User, error)
}

func (m *MockAuthService) Login(ctx context.Context, email, password, ip string) error {
	if m.LoginFunc == nil {
		return models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, email, password, ip)
}

func (m *MockAuthService) VerifyCode(ctx context.Context, email, code, ip string) (*services.SessionResult, error) {
	if m.VerifyCodeFunc == nil {
		return nil, models.ErrInvalidCode
	}
	return m.VerifyCodeFunc(ctx, email, code, ip)
}

func (m *MockAuthService) ResendCode(ctx context.Context, email, ip string) error {
	if m.ResendCodeFunc == nil {
		return nil
	}
	return m.ResendCodeFunc(ctx, email, ip)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *auth.SessionClaims, reason string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, claims, reason)
}

func (m *MockAuthService) EnsureProfile(ctx context.Context, claims *auth.SessionClaims) (*models.User, error) {
	if m.EnsureProfileFunc == nil {
		return nil, models.ErrProfileNotFound
	}
	return m.EnsureProfileFunc(ctx, claims)
}

// MockSessionWatcher records idle-monitor registrations and teardowns
type MockSessionWatcher struct {
	Registered []string
	Stopped    []string
}

func (m *MockSessionWatcher) Register(sid string, principal models.Principal) {
	m.Registered = append(m.Registered, sid)
}

func (m *MockSessionWatcher) Stop(sid string) {
	m.Stopped = append(m.Stopped, sid)
}
