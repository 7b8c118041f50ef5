// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/robobridge/internal/config"
	"github.com/Tyrowin/robobridge/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	sendBufferSize = 256
)

// Client represents a WebSocket client connection to the bridge.
// It manages the connection state, message sending channel, hub reference,
// and the controller that receives its drive commands.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	controller     Controller
	addr           string
	closed         bool
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      config.RateLimitConfig
	log            zerolog.Logger
}

// NewClient creates a new Client instance with the provided WebSocket connection,
// hub reference, and client address. The client's send channel is buffered
// to handle message queuing.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg config.ServerConfig, controller Controller) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := uuid.NewString()

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            hub,
		controller:     controller,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		log:            hub.log.With().Str("client_id", id).Str("addr", addr).Logger(),
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string {
	return c.id
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the read error at a level matching how expected it is.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		rejectedMessages.WithLabelValues("too_large").Inc()
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("message exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Debug().Err(err).Msg("client closed connection")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("client connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn().Err(err).Msg("unexpected websocket close")
	default:
		c.log.Warn().Err(err).Msg("websocket read error")
	}
}

// allowCommand spends a rate limit token for cmd. Stop never waits on the
// limiter so a throttled client can always halt the robot.
func (c *Client) allowCommand(cmd protocol.Command) bool {
	if cmd == protocol.Stop || c.rateLimiter == nil || c.rateLimiter.allow() {
		return true
	}
	rejectedMessages.WithLabelValues("rate_limited").Inc()
	c.log.Warn().
		Str("command", cmd.String()).
		Int("burst", c.rateLimit.Burst).
		Dur("interval", c.rateLimit.RefillInterval).
		Msg("rate limit exceeded; rejecting command")
	return false
}

// processMessage decodes a raw client message, hands a valid command to the
// controller and queues the result for this client only. Commands over the
// rate limit are answered with a failed result without reaching the
// controller. It returns true if a result was produced.
func (c *Client) processMessage(rawMessage []byte) bool {
	var msg protocol.Inbound
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		rejectedMessages.WithLabelValues("invalid_json").Inc()
		c.log.Warn().Err(err).Msg("invalid message from client")
		return false
	}

	if msg.Type != protocol.TypeCommand || msg.Command == "" {
		rejectedMessages.WithLabelValues("unsupported_type").Inc()
		c.log.Debug().Str("type", msg.Type).Msg("ignoring message")
		return false
	}

	cmd, ok := protocol.ParseCommand(msg.Command)
	if !ok {
		rejectedMessages.WithLabelValues("unknown_command").Inc()
		c.log.Debug().Str("command", msg.Command).Msg("ignoring unknown command")
		return false
	}

	var success bool
	result := "throttled"
	if c.allowCommand(cmd) {
		success = c.controller != nil && c.controller.HandleCommand(cmd)
		result = "ok"
		if !success {
			result = "failed"
		}
	}
	commandsTotal.WithLabelValues(cmd.String(), result).Inc()
	c.log.Info().
		Str("command", cmd.String()).
		Str("direction", cmd.Direction()).
		Str("result", result).
		Msg("command from browser")

	payload, err := protocol.NewCommandResult(cmd, success)
	if err != nil {
		c.log.Error().Err(err).Msg("error encoding command result")
		return true
	}
	if !c.hub.safeSend(c, payload) {
		c.log.Warn().Msg("could not queue command result")
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn().Err(err).Msg("error closing connection in readPump")
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		c.processMessage(rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in writePump")
		}
	}
}

// handleMessage writes one outgoing message as its own frame and returns
// false if the connection should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing message")
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing close message")
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn().Err(err).Msg("error writing ping message")
		return false
	}
	return true
}
