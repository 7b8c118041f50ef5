package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/robobridge/internal/config"
)

// Server is the WebSocket side of the bridge: it owns the hub, the upgrader
// and the HTTP routes.
type Server struct {
	cfg        config.ServerConfig
	hub        *Hub
	controller Controller
	origins    *originPolicy
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// New builds a Server. Call StartHub before serving requests.
func New(cfg config.ServerConfig, controller Controller, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		hub:        NewHub(logger),
		controller: controller,
		origins:    newOriginPolicy(cfg.AllowedOrigins, logger),
		log:        logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Hub returns the server's hub for broadcasting and shutdown coordination.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.SetupRoutes()
}
