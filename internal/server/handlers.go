// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the browser control page.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/robobridge/internal/protocol"
)

// Health is the JSON document served by HealthHandler.
type Health struct {
	Status          string `json:"status"`
	DeviceConnected bool   `json:"deviceConnected"`
	Clients         int    `json:"clients"`
}

// WebSocketHandler handles WebSocket upgrade requests and manages client connections.
// It validates that the request uses the GET method, upgrades the HTTP connection
// to WebSocket, greets the client and registers it with the hub, which starts
// the client's read/write pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg, s.controller)

	greeting, err := protocol.NewConnected(s.deviceConnected())
	if err != nil {
		client.log.Error().Err(err).Msg("error encoding greeting")
	} else {
		// Nobody else holds the client yet, so the buffered send cannot block.
		client.send <- greeting
	}

	if !s.hub.Register(client) {
		client.log.Warn().Msg("hub is shut down; rejecting connection")
		_ = conn.Close()
	}
}

// RootHandler upgrades WebSocket requests and serves health otherwise.
func (s *Server) RootHandler(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.WebSocketHandler(w, r)
		return
	}
	s.HealthHandler(w, r)
}

// HealthHandler reports bridge status as JSON.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	health := Health{
		Status:          "ok",
		DeviceConnected: s.deviceConnected(),
		Clients:         s.hub.ClientCount(),
	}
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.log.Warn().Err(err).Msg("error writing health response")
	}
}

func (s *Server) deviceConnected() bool {
	return s.controller != nil && s.controller.DeviceConnected()
}
