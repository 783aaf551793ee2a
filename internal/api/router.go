package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/realtime"
)

type RouterConfig struct {
	Handlers *Handlers
	WS       *realtime.Handler
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
	Log      zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := cfg.Handlers

	// Everything below requires the gateway-authenticated principal.
	r.Group(func(r chi.Router) {
		r.Use(PrincipalMiddleware)

		// Doctor directory and availability
		r.Get("/doctors", h.listDoctors)
		r.Get("/doctors/{doctorID}", h.getDoctor)
		r.Get("/doctors/{doctorID}/slots", h.listDoctorSlots)
		r.Post("/doctors/{doctorID}/slots/materialize", h.materializeSlot)

		// Slot management (doctor-side)
		r.Post("/slots", h.createSlot)
		r.Delete("/slots/{slotID}", h.deleteSlot)
		r.Post("/slots/sync", h.syncTemplate)

		// Appointment lifecycle
		r.Post("/appointments", h.bookAppointment)
		r.Get("/appointments", h.listAppointments)
		r.Get("/appointments/{appointmentID}", h.getAppointment)
		r.Post("/appointments/{appointmentID}/accept", h.acceptAppointment)
		r.Post("/appointments/{appointmentID}/reject", h.rejectAppointment)
		r.Post("/appointments/{appointmentID}/cancel", h.cancelAppointment)
		r.Get("/appointments/{appointmentID}/video-access", h.videoAccess)

		// Notifications
		r.Get("/notifications", h.listNotifications)
		r.Post("/notifications/{notificationID}/read", h.markNotificationRead)
		r.Post("/notifications/read-all", h.markAllNotificationsRead)
		r.Get("/notifications/unread-count", h.unreadNotificationCount)

		// Realtime channel
		if cfg.WS != nil {
			r.Get("/ws", cfg.WS.HandleConnect)
		}
	})

	return r
}
