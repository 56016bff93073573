package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/config"
	"github.com/campuscare/clinicdesk/internal/database"
	"github.com/campuscare/clinicdesk/internal/handlers"
	"github.com/campuscare/clinicdesk/internal/kv"
	middlewareCustom "github.com/campuscare/clinicdesk/internal/middleware"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/routes"
	"github.com/campuscare/clinicdesk/internal/services"
	"github.com/campuscare/clinicdesk/internal/session"
	"github.com/campuscare/clinicdesk/pkg/clock"
	pkghttp "github.com/campuscare/clinicdesk/pkg/http"
	pkglogger "github.com/campuscare/clinicdesk/pkg/logger"
	"github.com/campuscare/clinicdesk/pkg/metrics"
)

const sessionCookieName = "clinicdesk_session"

// Prometheus collectors register globally; a single shared instance keeps
// repeated server construction from panicking on duplicate registration.
var integrationCollector = metrics.NewCollector("integration")

// SentEmail represents a captured sign-in code email
type SentEmail struct {
	To   string
	Name string
	Code string
}

// MockEmailService captures sent codes for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

// SendSignInCode records the code instead of delivering it
func (m *MockEmailService) SendSignInCode(ctx context.Context, to, name, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:   to,
		Name: name,
		Code: code,
	})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// LastCodeFor returns the latest code sent to the given address
func (m *MockEmailService) LastCodeFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.SentEmails) - 1; i >= 0; i-- {
		if m.SentEmails[i].To == email {
			return m.SentEmails[i].Code
		}
	}
	return ""
}

// stubGenerator is a canned report provider for tests that exercise the
// report endpoints without an external dependency.
type stubGenerator struct{}

func (stubGenerator) Complete(ctx context.Context, prompt string) (string, string, error) {
	return "Stub report content.", "stub-model", nil
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *MockEmailService
	Config       *config.Config

	// Dependency references for inspection in tests
	IdleMonitor *session.IdleMonitor
	audit       *services.AuditService
	logger      *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database + mocked email
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:                  "0",
			Env:                   "test",
			LogLevel:              "warn",
			AllowedOrigins:        []string{},
			AuthRequestsPerMinute: 1000,
		},
		Auth: config.AuthConfig{
			JWTSecret:         "integration-secret-at-least-32-chars",
			MaxLoginAttempts:  5,
			LockoutWindow:     1 * time.Hour,
			MaxResendAttempts: 3,
			ResendCooldown:    10 * time.Millisecond,
			ResendBlock:       1 * time.Hour,
			OTPCodePeriod:     5 * time.Minute,
			CleanupInterval:   1 * time.Hour,
		},
		Session: config.SessionConfig{
			TTL:          1 * time.Hour,
			IdleTimeouts: map[string]time.Duration{},
			DefaultIdle:  0, // idle monitoring off unless a test opts in
			CookieSecure: false,
		},
		Reminder: config.ReminderConfig{
			BadgeLead: 15 * time.Minute,
			ToastLead: 5 * time.Minute,
			Tick:      1 * time.Minute,
		},
		AI: config.AIConfig{
			RequestsPerMinute: 600,
			RequestTimeout:    2 * time.Second,
		},
	}

	userRepo, revocationRepo, appointmentRepo, visitRepo, medicineRepo, auditRepo, reportRepo :=
		InitializeRepositories(db)

	mockEmail := &MockEmailService{
		SentEmails: []SentEmail{},
	}

	clk := clock.Real{}
	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditRepo, nil, 64, logger, integrationCollector)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Session.TTL)
	idleMonitor := session.NewIdleMonitor(cfg.Session.IdleTimeoutFor, func(string, models.Principal) {}, clk, logger)

	otpService := services.NewOTPService(mockEmail, cfg.Auth.OTPCodePeriod, clk, logger)
	resendLimiter := services.NewResendLimiter(kv.NewMemory(), services.ResendPolicy{
		MaxAttempts: cfg.Auth.MaxResendAttempts,
		Cooldown:    cfg.Auth.ResendCooldown,
		Block:       cfg.Auth.ResendBlock,
	}, clk, logger)

	authService := services.NewAuthService(
		userRepo, revocationRepo, otpService, resendLimiter, tokenManager,
		cfg.Auth, clk, logger, auditLogger, auditService, integrationCollector,
	)
	visitService := services.NewVisitService(visitRepo, medicineRepo, logger, auditService, integrationCollector)
	medicineService := services.NewMedicineService(medicineRepo, logger, auditService)
	appointmentService := services.NewAppointmentService(appointmentRepo, "http://clinicdesk.test", logger, auditService)
	reportService := services.NewReportService(
		stubGenerator{}, visitRepo, medicineRepo, reportRepo,
		cfg.AI.RequestsPerMinute, logger, auditService, integrationCollector,
	)

	cookieConfig := auth.CookieConfig{Secure: false, SameSite: "lax"}
	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{}}

	handlerSet := routes.Handlers{
		Auth:         handlers.NewAuthHandler(authService, idleMonitor, cookieConfig, ipConfig),
		Visits:       handlers.NewVisitHandler(visitService),
		Medicines:    handlers.NewMedicineHandler(medicineService),
		Appointments: handlers.NewAppointmentHandler(appointmentService, cfg.Reminder.BadgeLead),
		Reports:      handlers.NewReportHandler(reportService),
		Audit:        handlers.NewAuditHandler(auditService),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, handlerSet, tokenManager, revocationRepo, idleMonitor, cfg.Server.AuthRequestsPerMinute)

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: mockEmail,
		Config:       cfg,
		IdleMonitor:  idleMonitor,
		audit:        auditService,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
	if ts.IdleMonitor != nil {
		ts.IdleMonitor.StopAll()
	}
	if ts.audit != nil {
		ts.audit.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, cookies []*http.Cookie) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithSession makes an authenticated HTTP request with the session cookie
func (ts *TestServer) RequestWithSession(method, path string, sessionCookie *http.Cookie, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, []*http.Cookie{sessionCookie})
}

// SignIn runs the full login + code verification flow and returns the session cookie
func (ts *TestServer) SignIn(email, password string) (*http.Cookie, error) {
	resp, err := ts.Request("POST", "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	code := ts.EmailService.LastCodeFor(email)
	if code == "" {
		return nil, fmt.Errorf("no sign-in code was sent to %s", email)
	}

	resp, err = ts.Request("POST", "/auth/verify", map[string]string{
		"email": email,
		"code":  code,
	}, nil)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verify returned status %d", resp.StatusCode)
	}

	cookie := ExtractSessionCookie(resp)
	if cookie == nil {
		return nil, fmt.Errorf("verify response did not set a session cookie")
	}
	return cookie, nil
}

// ExtractSessionCookie pulls the session cookie out of a response
func ExtractSessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	return nil
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
