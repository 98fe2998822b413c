// Package server implements the HTTP server functionality for the chat service.
package server

import (
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/livechat/internal/auth"
)

// Server bundles the hub with everything the HTTP layer needs to admit
// new connections.
type Server struct {
	cfg      *Config
	hub      *Hub
	gate     *auth.Gate
	origins  *originPolicy
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewServer builds a Server. A nil gate admits every connection.
func NewServer(cfg *Config, hub *Hub, gate *auth.Gate, log *slog.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Server{
		cfg:     cfg,
		hub:     hub,
		gate:    gate,
		origins: origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		log: log,
	}
}

// Hub returns the hub served by s.
func (s *Server) Hub() *Hub {
	return s.hub
}
