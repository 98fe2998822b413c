// Package server wires HTTP handlers into a chi router for the chat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes returns the router with every application route. The WebSocket
// endpoint and the read-only chat views sit behind the auth gate.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(requestLogFormatter{log: s.log}))
	r.Use(middleware.Recoverer)

	r.Get("/", HealthHandler)
	r.Get("/test", TestPageHandler)

	r.Group(func(gated chi.Router) {
		if s.gate != nil {
			gated.Use(s.gate.Middleware)
		}
		gated.HandleFunc("/ws", s.WebSocketHandler)
		gated.Route("/api/chat", func(api chi.Router) {
			api.Get("/messages", s.MessagesHandler)
			api.Get("/presence", s.PresenceHandler)
		})
	})

	return r
}
