// Package integration contains end-to-end tests for the bridge.
//
// These tests assemble the real bridge, server and device packages around an
// in-memory serial port and talk to them over real WebSocket connections, so
// that telemetry fan-out, command routing and shutdown are exercised the way a
// browser and a robot would see them.
package integration

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/robobridge/internal/bridge"
	"github.com/Tyrowin/robobridge/internal/config"
	"github.com/Tyrowin/robobridge/internal/device"
	"github.com/Tyrowin/robobridge/internal/protocol"
	"github.com/Tyrowin/robobridge/internal/testhelpers"
)

const readTimeout = 2 * time.Second

// rig is a running bridge wired to a fake robot.
type rig struct {
	bridge *bridge.Bridge
	port   *testhelpers.FakePort
	server *httptest.Server
	wsURL  string
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.RateLimit.Burst = 50
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Serial.StopGrace = 10 * time.Millisecond
	return cfg
}

func newRig(t *testing.T, customize func(cfg *config.Config)) *rig {
	t.Helper()

	cfg := testConfig()
	if customize != nil {
		customize(cfg)
	}

	b := bridge.New(cfg, zerolog.Nop())
	port := testhelpers.NewFakePort()
	b.AttachPort(port, device.PortInfo{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"})
	b.Start()

	ts := httptest.NewServer(b.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
		ts.Close()
	})

	return &rig{
		bridge: b,
		port:   port,
		server: ts,
		wsURL:  testhelpers.WebSocketURL(ts.URL, "/ws"),
	}
}

// connect dials the bridge, consumes the greeting and waits until the hub
// has registered the client.
func (r *rig) connect(t *testing.T) *websocket.Conn {
	t.Helper()

	want := r.bridge.Server().Hub().ClientCount() + 1
	conn, err := testhelpers.ConnectWebSocket(r.wsURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	greeting := testhelpers.ReceiveEnvelope(t, conn, readTimeout)
	require.Equal(t, protocol.TypeConnected, greeting.Type)
	testhelpers.Eventually(t, time.Second, func() bool {
		return r.bridge.Server().Hub().ClientCount() >= want
	}, "client registered")
	return conn
}

func (r *rig) connectMany(t *testing.T, n int) []*websocket.Conn {
	t.Helper()
	conns := make([]*websocket.Conn, n)
	for i := range conns {
		conns[i] = r.connect(t)
	}
	return conns
}

// freeAddr returns a loopback address nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}
