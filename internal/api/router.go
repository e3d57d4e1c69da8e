package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/care-scheduling/internal/appointment"
)

const defaultUpcomingMax = 50

type RouterConfig struct {
	Service     *appointment.Service
	Logger      zerolog.Logger
	Postgres    Pinger
	Redis       Pinger // nil when running without Redis
	Metrics     prometheus.Gatherer
	Env         string
	Version     string
	UpcomingMax int
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.UpcomingMax <= 0 {
		cfg.UpcomingMax = defaultUpcomingMax
	}
	svc := cfg.Service

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", scheduleAppointmentHandler(svc))
		r.Get("/", searchAppointmentsHandler(svc))
		r.Get("/upcoming", upcomingHandler(svc, cfg.UpcomingMax))
		r.Get("/number/{number}", getByNumberHandler(svc))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(svc))
			r.Post("/confirm", commandHandler(confirmCommand(svc)))
			r.Post("/check-in", commandHandler(checkInCommand(svc)))
			r.Post("/start", commandHandler(startCommand(svc)))
			r.Post("/complete", commandHandler(completeCommand(svc)))
			r.Post("/cancel", commandHandler(cancelCommand(svc)))
			r.Post("/no-show", commandHandler(noShowCommand(svc)))
			r.Post("/reschedule", commandHandler(rescheduleCommand(svc)))
		})
	})

	// Provider views
	r.Get("/providers/{id}/appointments/today", providerTodayHandler(svc))
	r.Get("/providers/{id}/availability", availabilityHandler(svc))

	return r
}
