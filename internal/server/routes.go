package server

import (
	"expvar"

	"github.com/go-chi/chi/v5"
)

func (s *Server) registerRoutes(r chi.Router, apiKey string) {
	h := s.handlers

	// Connect webhook
	r.Get("/", h.Liveness)
	r.Get("/webhook", h.Liveness)
	r.Post("/webhook", h.Webhook)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(APIKeyMiddleware(apiKey))
			r.Get("/contracts/{email}", h.GetContract)
		})
	})

	r.With(APIKeyMiddleware(apiKey)).Handle("/debug/vars", expvar.Handler())
}
