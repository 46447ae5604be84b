package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cliniqly/clinic-scheduling/internal/booking"
	"github.com/cliniqly/clinic-scheduling/internal/directory"
	"github.com/cliniqly/clinic-scheduling/internal/schedule"
)

type RouterConfig struct {
	Schedule    *schedule.Service
	Booking     *booking.Service
	Directory   directory.Repository
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Logger      *zap.Logger
	JWTSecret   string
	Env         string
	Version     string
	BookingRPM  int
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := AuthMiddleware(cfg.JWTSecret)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := NewHandlers(cfg.Schedule, cfg.Booking, cfg.Directory, cfg.Logger)

	r.Route("/doctors", func(r chi.Router) {
		// Public read paths
		r.Get("/search", h.SearchDoctors)
		r.Get("/specializations", h.ListSpecialties)
		r.Get("/{doctorID}/slots/{date}", h.DoctorSlots)

		r.With(auth, RequireRole(booking.RoleAdmin)).Put("/{doctorID}/verify", h.VerifyDoctor)
	})

	r.Route("/availability", func(r chi.Router) {
		r.Use(auth, RequireRole(booking.RoleDoctor))

		r.Post("/", h.CreateAvailability)
		r.Get("/", h.ListMyAvailability)
		r.Put("/{availabilityID}", h.UpdateAvailability)
		r.Delete("/{availabilityID}", h.DeactivateAvailability)
		r.Get("/slots/{date}", h.PreviewSlots)
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Use(auth)

		r.With(RequireRole(booking.RolePatient), httprate.LimitByIP(cfg.BookingRPM, time.Minute)).
			Post("/", h.BookAppointment)
		r.With(RequireRole(booking.RolePatient)).Get("/", h.MyAppointments)
		r.With(RequireRole(booking.RoleDoctor)).Get("/doctor", h.DoctorAppointments)
		r.With(RequireRole(booking.RoleDoctor)).Put("/{appointmentID}/status", h.UpdateAppointmentStatus)
		r.With(RequireRole(booking.RolePatient, booking.RoleDoctor)).Post("/{appointmentID}/cancel", h.CancelAppointment)
	})

	return r
}
