package handler

import (
	"net/http"

	"github.com/glenn-app/glenn-backend/internal/auth"
	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterDeps collects everything NewRouter mounts.
type RouterDeps struct {
	Tournaments    *TournamentHandler
	Social         *SocialHandler
	Notifications  *NotificationHandler
	Uploads        *UploadHandler
	Verifier       auth.Verifier
	AllowedOrigins []string
	Log            *logger.Logger
	Metrics        *metrics.Metrics
}

// NewRouter builds the HTTP routing tree.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(d.Log, d.Metrics))
	r.Use(CORS(d.AllowedOrigins))

	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", HealthCheck)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(d.Verifier, d.Log))

			r.Post("/participate", d.Tournaments.Participate)
			r.Post("/follow", d.Social.Follow)
			r.Get("/notifications", d.Notifications.List)

			r.Post("/upload/imagekit", d.Uploads.Upload)
			r.Get("/upload/imagekit", d.Uploads.Usage)
		})
	})

	return r
}
