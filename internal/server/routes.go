// Package server wires the REST handlers, the websocket endpoint and the
// metrics endpoint into a chi router.
package server

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// SetupRoutes configures and returns the application router.
func SetupRoutes(gw *Gateway, api *API, tokens TokenVerifier, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   gw.origins.list(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", HealthHandler)
	r.HandleFunc("/ws", gw.HandleWebSocket)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", api.Register)
		r.Post("/login", api.Login)
	})

	r.Route("/user", func(r chi.Router) {
		r.Use(requireBearer(tokens))

		r.Get("/profile", api.Profile)
		r.Put("/profile", api.UpdateProfile)
		r.Get("/all", api.ListUsers)
	})

	return r
}
