// Package server implements the WebSocket side of the robot bridge.
//
// The implementation is organized into specialized files for hub
// management, clients, origin checks, routing, and HTTP handlers. The hub
// fans device telemetry out to every client; each client forwards its drive
// commands to a Controller and receives the result privately.
package server
