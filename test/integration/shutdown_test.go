package integration

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/robobridge/internal/bridge"
	"github.com/Tyrowin/robobridge/internal/config"
	"github.com/Tyrowin/robobridge/internal/device"
	"github.com/Tyrowin/robobridge/internal/protocol"
	"github.com/Tyrowin/robobridge/internal/testhelpers"
)

// TestGracefulShutdownWithClients runs the bridge on a real listener, cancels
// it the way SIGINT does and checks the robot was stopped and every client
// was disconnected.
func TestGracefulShutdownWithClients(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Port = freeAddr(t)

	b := bridge.New(cfg, zerolog.Nop())
	port := testhelpers.NewFakePort()
	b.AttachPort(port, device.PortInfo{Name: "/dev/ttyACM0"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	url := "ws://" + cfg.Server.Port + "/ws"
	testhelpers.Eventually(t, 2*time.Second, func() bool {
		conn, err := testhelpers.ConnectWebSocket(url)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, "bridge listening")

	const numClients = 5
	clients := make([]*websocket.Conn, numClients)
	for i := range clients {
		conn, err := testhelpers.ConnectWebSocket(url)
		require.NoError(t, err)
		defer func() { _ = conn.Close() }()
		testhelpers.ReceiveType(t, conn, protocol.TypeConnected, readTimeout)
		clients[i] = conn
	}

	require.NoError(t, testhelpers.SendCommand(clients[0], "w"))
	testhelpers.ReceiveType(t, clients[0], protocol.TypeCommandResult, readTimeout)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("bridge did not shut down")
	}

	assert.Equal(t, "WX", port.Written(), "stop command is the last write")
	assert.True(t, port.IsClosed())

	for i, conn := range clients {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
		var err error
		for err == nil {
			_, _, err = conn.ReadMessage()
		}
		var netErr net.Error
		assert.False(t, errors.As(err, &netErr) && netErr.Timeout(), "client %d was not disconnected", i)
	}

	_, err := testhelpers.ConnectWebSocket(url)
	assert.Error(t, err, "listener is closed")
}

// TestShutdownDuringTelemetry shuts down while the robot is still streaming.
func TestShutdownDuringTelemetry(t *testing.T) {
	r := newRig(t, nil)
	conn := r.connect(t)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.port.Feed("tick\n")
				time.Sleep(time.Millisecond)
			}
		}
	}()

	testhelpers.ReceiveType(t, conn, protocol.TypeSensorData, readTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := r.bridge.Shutdown(ctx)
	close(stop)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, "X", r.port.Written())
	assert.True(t, r.port.IsClosed())
}

// TestConcurrentShutdown calls Shutdown from several goroutines; the robot
// gets exactly one stop command.
func TestConcurrentShutdown(t *testing.T) {
	r := newRig(t, nil)
	r.connectMany(t, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.bridge.Shutdown(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, "X", r.port.Written())
}

// TestNoClientsShutdown shuts down a bridge nobody connected to.
func TestNoClientsShutdown(t *testing.T) {
	r := newRig(t, func(cfg *config.Config) {
		cfg.Serial.StopGrace = 0
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.bridge.Shutdown(ctx))
	assert.Equal(t, "X", r.port.Written())
}
