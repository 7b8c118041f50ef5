// Package teleop is a terminal driving client for the bridge: it dials the
// WebSocket endpoint, turns key presses into commands and shows what the
// robot reports back.
package teleop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/robobridge/internal/protocol"
)

const (
	writeWait   = 5 * time.Second
	eventBuffer = 64
)

// Client is a WebSocket connection to a running bridge.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  chan protocol.Envelope
	done    chan struct{}
	once    sync.Once

	errMu sync.Mutex
	err   error
}

// Dial connects to url. origin is sent as the Origin header when non-empty.
func Dial(ctx context.Context, url, origin string) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan protocol.Envelope, eventBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers every decoded message from the bridge. It is closed when
// the connection ends; Err then reports why.
func (c *Client) Events() <-chan protocol.Envelope {
	return c.events
}

// Err returns the error that ended the read loop, if any.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Send asks the bridge to forward cmd to the robot.
func (c *Client) Send(cmd protocol.Command) error {
	payload, err := protocol.NewCommand(cmd)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Close sends a close frame and closes the connection. Only the first call
// does anything.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.errMu.Lock()
				c.err = err
				c.errMu.Unlock()
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case c.events <- env:
		case <-c.done:
			return
		}
	}
}
