package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/background"
	"github.com/campuscare/clinicdesk/internal/config"
	"github.com/campuscare/clinicdesk/internal/database"
	"github.com/campuscare/clinicdesk/internal/events"
	"github.com/campuscare/clinicdesk/internal/handlers"
	"github.com/campuscare/clinicdesk/internal/kv"
	middlewareCustom "github.com/campuscare/clinicdesk/internal/middleware"
	"github.com/campuscare/clinicdesk/internal/models"
	"github.com/campuscare/clinicdesk/internal/reminder"
	"github.com/campuscare/clinicdesk/internal/repositories"
	"github.com/campuscare/clinicdesk/internal/routes"
	"github.com/campuscare/clinicdesk/internal/services"
	"github.com/campuscare/clinicdesk/internal/session"
	pkgauth "github.com/campuscare/clinicdesk/pkg/auth"
	"github.com/campuscare/clinicdesk/pkg/clock"
	pkghttp "github.com/campuscare/clinicdesk/pkg/http"
	pkglogger "github.com/campuscare/clinicdesk/pkg/logger"
	"github.com/campuscare/clinicdesk/pkg/metrics"
	"github.com/campuscare/clinicdesk/pkg/tracer"
)

// auditRetention is how long audit rows are kept before the cleanup job
// prunes them.
const auditRetention = 365 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Server.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Tracing
	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		logger.Error("failed to initialize tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	// Database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	revocationRepo := repositories.NewSessionRevocationRepository(db)
	appointmentRepo := repositories.NewAppointmentRepository(db)
	visitRepo := repositories.NewVisitRepository(db)
	medicineRepo := repositories.NewMedicineRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	reportRepo := repositories.NewReportRepository(db)

	// Ambient plumbing
	collector := metrics.NewCollector("clinicdesk")
	auditLogger := pkglogger.NewAuditLogger(logger)
	clk := clock.Real{}

	// Audit pipeline, optionally mirrored to Kafka
	var auditPublisher services.AuditPublisher
	var kafkaPublisher *events.KafkaAuditPublisher
	if len(cfg.Events.Brokers) > 0 {
		kafkaPublisher = events.NewKafkaAuditPublisher(cfg.Events.Brokers, cfg.Events.AuditTopic, logger)
		auditPublisher = kafkaPublisher
		logger.Info("audit mirroring enabled", slog.String("topic", cfg.Events.AuditTopic))
	}
	auditService := services.NewAuditService(auditRepo, auditPublisher, 256, logger, collector)

	// Session plumbing
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Session.TTL)

	idleMonitor := session.NewIdleMonitor(
		cfg.Session.IdleTimeoutFor,
		func(sid string, principal models.Principal) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			expiresAt := time.Now().Add(cfg.Session.TTL)
			if err := revocationRepo.RevokeSession(ctx, sid, principal.UserID, expiresAt, "idle_timeout"); err != nil {
				logger.Error("failed to revoke idle session", slog.Any("error", err))
			}

			collector.SessionTimeouts.Inc()
			auditLogger.LogSessionEvent(models.AuditEventTypeSessionTimeout, principal.UserID, map[string]string{
				"session_id": sid,
				"role":       principal.Role,
			})
			auditService.Record(ctx, &models.AuditLog{
				EventType: models.AuditEventTypeSessionTimeout,
				ActorID:   &principal.UserID,
				ActorRole: &principal.Role,
				Action:    models.AuditActionAccess,
				Success:   true,
			})
		},
		clk,
		logger,
	)

	// Email + sign-in codes
	emailService, err := services.NewAWSSESEmailService(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		os.Exit(1)
	}
	otpService := services.NewOTPService(emailService, cfg.Auth.OTPCodePeriod, clk, logger)

	resendLimiter := services.NewResendLimiter(kv.NewMemory(), services.ResendPolicy{
		MaxAttempts: cfg.Auth.MaxResendAttempts,
		Cooldown:    cfg.Auth.ResendCooldown,
		Block:       cfg.Auth.ResendBlock,
	}, clk, logger)

	// Services
	authService := services.NewAuthService(
		userRepo, revocationRepo, otpService, resendLimiter, tokenManager,
		cfg.Auth, clk, logger, auditLogger, auditService, collector,
	)
	visitService := services.NewVisitService(visitRepo, medicineRepo, logger, auditService, collector)
	medicineService := services.NewMedicineService(medicineRepo, logger, auditService)
	appointmentService := services.NewAppointmentService(appointmentRepo, publicBaseURL(cfg), logger, auditService)
	reportService := services.NewReportService(
		services.NewOpenAIClient(cfg.AI.BaseURL, cfg.AI.APIKey, cfg.AI.Model, cfg.AI.RequestTimeout),
		visitRepo, medicineRepo, reportRepo,
		cfg.AI.RequestsPerMinute, logger, auditService, collector,
	)

	// Reminder pipeline
	notifier := reminder.NewNotifier(
		appointmentRepo,
		func(a *models.Appointment) {
			collector.RemindersFiredTotal.WithLabelValues("toast").Inc()
			logger.Info("appointment reminder",
				slog.String("appointment_id", a.ID),
				slog.String("student", a.StudentName),
				slog.Time("starts_at", a.StartsAt))

			resourceType := models.AuditResourceTypeAppointment
			auditService.Record(context.Background(), &models.AuditLog{
				EventType:    models.AuditEventTypeReminder,
				ResourceType: &resourceType,
				ResourceID:   &a.ID,
				Action:       models.AuditActionAccess,
				Success:      true,
			})
		},
		cfg.Reminder.ToastLead,
		cfg.Reminder.Tick,
		clk,
		logger,
	)
	appointmentService.SetOnChange(notifier.NotifyChanged)

	// Background cleanup
	cleanupManager := background.NewCleanupManager(revocationRepo, auditService, auditRetention, logger, cfg.Auth.CleanupInterval)

	// Handlers
	cookieConfig := auth.CookieConfig{Secure: cfg.Session.CookieSecure, SameSite: "lax"}
	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}}

	handlerSet := routes.Handlers{
		Auth:         handlers.NewAuthHandler(authService, idleMonitor, cookieConfig, ipConfig),
		Visits:       handlers.NewVisitHandler(visitService),
		Medicines:    handlers.NewMedicineHandler(medicineService),
		Appointments: handlers.NewAppointmentHandler(appointmentService, cfg.Reminder.BadgeLead),
		Reports:      handlers.NewReportHandler(reportService),
		Audit:        handlers.NewAuditHandler(auditService),
	}

	// Bootstrap first admin user if configured
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootCtx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	bootCancel()

	// Router
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middlewareCustom.Metrics(collector))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, handlerSet, tokenManager, revocationRepo, idleMonitor, cfg.Server.AuthRequestsPerMinute)

	router.Handle("/metrics", metrics.MetricsHandler())

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	var handler http.Handler = router
	if cfg.Tracing.Enabled {
		handler = otelhttp.NewHandler(router, cfg.Tracing.ServiceName)
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background loops
	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	go cleanupManager.Start(backgroundCtx)
	go notifier.Run(backgroundCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	backgroundCancel()
	cleanupManager.Stop()
	notifier.Stop()
	idleMonitor.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	auditService.Close()
	if kafkaPublisher != nil {
		_ = kafkaPublisher.Close()
	}

	logger.Info("server stopped gracefully")
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// publicBaseURL is the address printed into check-in QR codes.
func publicBaseURL(cfg *config.Config) string {
	if base := os.Getenv("PUBLIC_BASE_URL"); base != "" {
		return strings.TrimRight(base, "/")
	}
	return "http://localhost:" + cfg.Server.Port
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	otpSecret, err := services.NewOTPSecret("clinicdesk", adminEmail)
	if err != nil {
		return fmt.Errorf("failed to generate admin otp secret: %w", err)
	}

	admin := &models.User{
		Email:          adminEmail,
		PasswordHash:   hashedPassword,
		Name:           "Admin",
		Role:           models.RoleAdmin,
		EmailConfirmed: true,
		OTPSecret:      otpSecret,
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
