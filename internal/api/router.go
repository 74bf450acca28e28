package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/metrics"
)

var _ Service = (*appointment.Service)(nil)

type RouterConfig struct {
	Service      Service
	Logger       *zap.Logger
	HealthChecks []HealthCheck
	JWTSecret    []byte
	RateLimiter  *RateLimiter // applied to booking only; nil disables
	Metrics      *metrics.Metrics
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandlers(cfg.Service, logger)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(chimw.RealIP)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoverMiddleware(logger))
	r.Use(auth.Middleware(cfg.JWTSecret, logger))

	health := NewHealthHandler(cfg.HealthChecks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	// Availability is public so the booking page can render without a login.
	r.Get("/doctors/{doctorID}/availability", h.getAvailability)
	r.Get("/doctors/{doctorID}/templates", h.listTemplates)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireActor)

		r.Post("/doctors/{doctorID}/templates", h.createTemplate)
		r.Delete("/doctors/{doctorID}/templates/{templateID}", h.deleteTemplate)

		r.Route("/appointments", func(r chi.Router) {
			if cfg.RateLimiter != nil {
				r.With(cfg.RateLimiter.Middleware).Post("/", h.createAppointment)
			} else {
				r.Post("/", h.createAppointment)
			}
			r.Get("/", h.listAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Post("/{id}/cancel", h.cancelAppointment)
			r.Post("/{id}/complete", h.completeAppointment)
		})

		r.Route("/leaves", func(r chi.Router) {
			r.Post("/", h.createLeave)
			r.Get("/", h.listLeaves)
			r.Get("/{id}", h.getLeave)
			r.Post("/{id}/approve", h.approveLeave)
			r.Post("/{id}/reject", h.rejectLeave)
		})

		r.Post("/prescriptions", h.createPrescription)
		r.Get("/prescriptions/{id}", h.getPrescription)

		r.Route("/medicines", func(r chi.Router) {
			r.Get("/", h.listMedicines)
			r.Post("/", h.createMedicine)
			r.Post("/{id}/restock", h.restockMedicine)
		})
	})

	return r
}
