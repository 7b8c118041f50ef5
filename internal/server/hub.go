// Package server coordinates client registration, message broadcast, and
// connection cleanup for the bridge via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Hub owns the set of connected browsers. Its event loop serializes joins,
// leaves and telemetry fan-out; everything else reads the client map under
// mutex.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        zerolog.Logger
}

// NewHub returns a Hub with no clients. Call Run to start its event loop.
func NewHub(logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger,
	}
}

// Register hands a client to the hub. It returns false if the hub has
// already shut down, in which case the caller owns the connection.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// unregisterClient removes a client unless the hub is already gone.
func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Broadcast sends payload to every connected client. It returns false if the
// hub has shut down.
func (h *Hub) Broadcast(payload []byte) bool {
	select {
	case h.broadcast <- payload:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// safeSend queues message for client without blocking. The read lock keeps
// the send channel open for the duration of the send.
func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("recovered from panic in safeSend")
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if !h.clients[client] || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run is the hub's event loop. It returns once Shutdown cancels the hub,
// after every client's send channel has been closed.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClients(client)
		case payload := <-h.broadcast:
			h.fanOut(payload)
		}
	}
}

// addClient records client and starts its pumps when it has a connection.
func (h *Hub) addClient(client *Client) {
	if client == nil {
		h.log.Warn().Msg("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	count := len(h.clients)
	h.mutex.Unlock()

	connectedClients.Set(float64(count))
	client.log.Info().Int("clients", count).Msg("browser connected")

	if client.conn == nil {
		return
	}
	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// removeClients drops the given clients from the map and closes their send
// channels, which tells each writePump to send a close frame and exit.
// Clients that are already gone are skipped. It returns how many were
// removed.
func (h *Hub) removeClients(clients ...*Client) int {
	h.mutex.Lock()
	var closing []chan []byte
	for _, client := range clients {
		if !h.clients[client] {
			continue
		}
		delete(h.clients, client)
		client.closed = true
		closing = append(closing, client.send)
	}
	count := len(h.clients)
	h.mutex.Unlock()

	for _, ch := range closing {
		close(ch)
	}
	if len(closing) > 0 {
		connectedClients.Set(float64(count))
		h.log.Info().Int("removed", len(closing)).Int("clients", count).Msg("browser disconnected")
	}
	return len(closing)
}

// fanOut queues payload for every client and drops the ones whose buffers
// are full.
func (h *Hub) fanOut(payload []byte) {
	clients := h.snapshot()
	if len(clients) == 0 {
		return
	}

	h.log.Debug().Int("targets", len(clients)).Msg("broadcasting message")
	broadcastMessages.Inc()

	var slow []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			slow = append(slow, client)
		}
	}
	if n := h.removeClients(slow...); n > 0 {
		droppedClients.Add(float64(n))
		h.log.Warn().Int("dropped", n).Msg("clients removed due to full send buffer")
	}
}

func (h *Hub) snapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients removes every client so their write pumps exit, then
// closes the connections so their read pumps return as well.
func (h *Hub) shutdownClients() {
	clients := h.snapshot()
	h.log.Info().Int("clients", len(clients)).Msg("shutting down all client connections")

	h.removeClients(clients...)
	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			client.log.Warn().Err(err).Msg("error closing client connection")
		}
	}
	connectedClients.Set(0)
}

// Shutdown stops the event loop and waits up to timeout for it and for every
// client pump to finish. It returns context.DeadlineExceeded on timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")
	h.cancel()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-h.done:
	case <-deadline.C:
		h.log.Warn().Msg("hub event loop did not stop before timeout")
		return context.DeadlineExceeded
	}

	pumps := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(pumps)
	}()

	select {
	case <-pumps:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-deadline.C:
		h.log.Warn().Msg("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
