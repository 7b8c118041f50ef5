package server

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/robobridge/internal/config"
	"github.com/Tyrowin/robobridge/internal/protocol"
)

// fakeController records commands instead of writing them to a device.
type fakeController struct {
	mu        sync.Mutex
	commands  []protocol.Command
	accept    bool
	connected bool
}

func newFakeController() *fakeController {
	return &fakeController{accept: true, connected: true}
}

func (f *fakeController) HandleCommand(cmd protocol.Command) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	return f.accept
}

func (f *fakeController) DeviceConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeController) setAccept(ok bool) {
	f.mu.Lock()
	f.accept = ok
	f.mu.Unlock()
}

func (f *fakeController) received() []protocol.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Command(nil), f.commands...)
}

func testServerConfig() config.ServerConfig {
	cfg := config.Default().Server
	cfg.AllowedOrigins = []string{"*"}
	return cfg
}

// startTestServer runs a Server behind httptest with its hub started. The
// hub is shut down before the listener closes.
func startTestServer(t *testing.T, cfg config.ServerConfig, controller Controller) (*Server, *httptest.Server) {
	t.Helper()

	srv := New(cfg, controller, zerolog.Nop())
	srv.StartHub()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Hub().Shutdown(2 * time.Second)
		ts.Close()
	})
	return srv, ts
}
