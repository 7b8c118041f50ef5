package teleop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/robobridge/internal/protocol"
)

// echoBridge greets the client and answers every command with a successful
// result, recording the Origin header it saw. A stop command makes it hang up.
func echoBridge(t *testing.T, origins chan<- string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origins <- r.Header.Get("Origin")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		greeting, _ := protocol.NewConnected(true)
		if err := conn.WriteMessage(websocket.TextMessage, greeting); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))

		for {
			var in protocol.Inbound
			if err := conn.ReadJSON(&in); err != nil {
				return
			}
			cmd, ok := protocol.ParseCommand(in.Command)
			if !ok {
				continue
			}
			if cmd == protocol.Stop {
				// Drop the connection without a close frame.
				return
			}
			result, _ := protocol.NewCommandResult(cmd, true)
			if err := conn.WriteMessage(websocket.TextMessage, result); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func nextEvent(t *testing.T, c *Client) protocol.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.Events():
		require.True(t, ok, "events closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return protocol.Envelope{}
	}
}

func TestClientRoundTrip(t *testing.T) {
	origins := make(chan string, 1)
	ts := echoBridge(t, origins)
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	c, err := Dial(context.Background(), url, "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", <-origins)

	greeting := nextEvent(t, c)
	assert.Equal(t, protocol.TypeConnected, greeting.Type)
	assert.True(t, greeting.DeviceConnected)

	require.NoError(t, c.Send(protocol.Left))
	result := nextEvent(t, c)
	assert.Equal(t, protocol.TypeCommandResult, result.Type)
	assert.Equal(t, "A", result.Command)
	assert.True(t, result.Success)

	require.NoError(t, c.Close())
	assert.NoError(t, c.Close(), "close is idempotent")
}

func TestClientEventsCloseWhenServerGoes(t *testing.T) {
	origins := make(chan string, 1)
	ts := echoBridge(t, origins)
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	c, err := Dial(context.Background(), url, "")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	assert.Empty(t, <-origins)

	nextEvent(t, c)
	require.NoError(t, c.Send(protocol.Stop))

	select {
	case _, ok := <-c.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel was not closed")
	}
	assert.Error(t, c.Err())
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", "")
	assert.Error(t, err)
}
