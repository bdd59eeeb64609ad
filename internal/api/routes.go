package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the router. The portal frontend is served from a
// different origin, so CORS is open for the API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/sync/{clientID}", h.HandleTriggerSync)
		r.Get("/clients/{clientID}/dashboard", h.HandleDashboard)
		r.Get("/clients/{clientID}/flows", h.HandleFlows)
		r.Get("/test-klaviyo", h.HandleTestKlaviyo)
	})

	return r
}
