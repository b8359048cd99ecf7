package server

import (
	"log/slog"
	"net/http"
	"profilebook/auth"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the REST API, the live hub and the metrics endpoint.
func NewRouter(log *slog.Logger, h *Handler, authenticator Authenticator, hub http.Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)
	r.Handle("/hub", hub)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(authenticator, log))

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", h.SendMessage)
				r.Post("/to/{username}", h.SendByUsername)
				r.Get("/with/{id}", h.GetConversation)
				r.Get("/with/username/{username}", h.GetConversationByUsername)
				r.Get("/message/{id}", h.GetMessage)
				r.Get("/search", h.Search)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.GetNotifications)
				r.Get("/me/unread-count", h.UnreadCount)
				r.Put("/read-all", h.MarkAllRead)
				r.Put("/{id}/read", h.MarkRead)
				r.With(RequireRole(auth.RoleAdmin, log)).Post("/", h.Notify)
			})
		})
	})

	return r
}
