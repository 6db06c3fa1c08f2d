package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Creator AppointmentCreator
	Querier AppointmentQuerier
	Store   Pinger
	Regions RegionPinger
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(methodNotAllowed)
	r.NotFound(notFound)

	// Health endpoints
	health := NewHealthHandler(cfg.Store, cfg.Regions, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment endpoints
	r.Post("/appointments", createAppointmentHandler(cfg.Creator))
	r.Get("/appointments", listAppointmentsHandler(cfg.Querier))
	r.Get("/appointments/{insuredId}", listAppointmentsHandler(cfg.Querier))

	return r
}
