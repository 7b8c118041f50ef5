// Package server wires HTTP handlers into a ServeMux for the bridge via
// routing helpers.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// The root path serves the WebSocket endpoint for upgrade requests so that
// clients written for ws://host:port keep working, and health otherwise.
func (s *Server) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.RootHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/control", ControlPageHandler)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
