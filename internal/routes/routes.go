package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/campuscare/clinicdesk/internal/auth"
	"github.com/campuscare/clinicdesk/internal/handlers"
	"github.com/campuscare/clinicdesk/internal/middleware"
	"github.com/campuscare/clinicdesk/internal/models"
)

// Handlers bundles the route targets so registration stays readable.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Visits       *handlers.VisitHandler
	Medicines    *handlers.MedicineHandler
	Appointments *handlers.AppointmentHandler
	Reports      *handlers.ReportHandler
	Audit        *handlers.AuditHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	tokenManager *auth.TokenManager,
	revocationChecker auth.SessionRevocationChecker,
	toucher auth.ActivityToucher,
	authRequestsPerMinute int,
) {
	rateLimitConfig := middleware.RateLimitConfig{RequestsPerMinute: authRequestsPerMinute}
	if rateLimitConfig.RequestsPerMinute <= 0 {
		rateLimitConfig = middleware.DefaultAuthRateLimit()
	}

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/verify", h.Auth.VerifyCode)
		r.Post("/auth/resend", h.Auth.ResendCode)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(tokenManager, revocationChecker, toucher, auth.RevocationConfig{FailClosed: true}))

		r.Post("/auth/logout", h.Auth.Logout)
		r.Get("/auth/me", h.Auth.Me)

		// Visit log
		r.Post("/visits", h.Visits.Create)
		r.Get("/visits", h.Visits.List)
		r.Get("/visits/{id}", h.Visits.Get)

		// Medicine inventory
		r.Get("/medicines", h.Medicines.List)
		r.Get("/medicines/low-stock", h.Medicines.LowStock)
		r.Get("/medicines/{id}", h.Medicines.Get)
		r.Post("/medicines", h.Medicines.Create)
		r.Put("/medicines/{id}", h.Medicines.Update)

		// Appointment book
		r.Post("/appointments", h.Appointments.Create)
		r.Get("/appointments", h.Appointments.List)
		r.Get("/appointments/upcoming", h.Appointments.Upcoming)
		r.Get("/appointments/{id}", h.Appointments.Get)
		r.Get("/appointments/{id}/qr", h.Appointments.CheckInQR)
		r.Delete("/appointments/{id}", h.Appointments.Delete)

		// AI reports: physicians and admins
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin, models.RolePhysician))
			r.Post("/reports", h.Reports.Generate)
			r.Get("/reports", h.Reports.List)
			r.Get("/reports/{id}", h.Reports.Get)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Delete("/visits/{id}", h.Visits.Delete)
			r.Delete("/medicines/{id}", h.Medicines.Delete)
			r.Get("/audit", h.Audit.List)
		})
	})
}
