package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carebridge/healthplan-backend/internal/appointment"
	"github.com/carebridge/healthplan-backend/internal/sequence"
)

type RouterConfig struct {
	Service   *appointment.Service
	Sequences sequence.Generator
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Log       zerolog.Logger
	Env       string
	Version   string
	Now       func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Availability
	r.Get("/facilities/{id}/slots", availableSlotsHandler(cfg.Service))

	// Appointment endpoints
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/transition", transitionAppointmentHandler(cfg.Service))

	// Document numbering
	r.Post("/documents/numbers", issueNumberHandler(cfg.Sequences, now))

	return r
}
