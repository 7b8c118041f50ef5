// Package bridge connects the serial device to the WebSocket server: device
// lines become sensorData broadcasts and client commands become serial
// writes.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/robobridge/internal/config"
	"github.com/Tyrowin/robobridge/internal/device"
	"github.com/Tyrowin/robobridge/internal/protocol"
	"github.com/Tyrowin/robobridge/internal/server"
)

// Bridge owns the optional device handle and the WebSocket server.
type Bridge struct {
	cfg  *config.Config
	log  zerolog.Logger
	srv  *server.Server
	http *http.Server

	mu  sync.RWMutex
	dev *device.Device

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds a bridge and its server. No device is attached yet.
func New(cfg *config.Config, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		cfg: cfg,
		log: logger,
	}
	b.srv = server.New(cfg.Server, b, logger.With().Str("component", "server").Logger())
	b.http = server.CreateServer(cfg.Server.Port, b.srv.Handler())
	return b
}

// Server returns the WebSocket server.
func (b *Bridge) Server() *server.Server {
	return b.srv
}

// Handler returns the HTTP handler, mainly for tests.
func (b *Bridge) Handler() http.Handler {
	return b.http.Handler
}

// ConnectDevice discovers, opens and attaches the serial device.
func (b *Bridge) ConnectDevice(ctx context.Context) error {
	devCfg := device.Config{
		Port:        b.cfg.Serial.Port,
		BaudRate:    b.cfg.Serial.BaudRate,
		DataBits:    b.cfg.Serial.DataBits,
		ReadTimeout: b.cfg.Serial.ReadTimeout,
		SettleDelay: b.cfg.Serial.SettleDelay,
	}

	dev, err := device.Open(ctx, devCfg, b.deviceHandlers(), b.log.With().Str("component", "device").Logger())
	if err != nil {
		return fmt.Errorf("connect device: %w", err)
	}
	b.setDevice(dev)
	return nil
}

// AttachPort attaches an already-open port as the device.
func (b *Bridge) AttachPort(p device.Port, info device.PortInfo) {
	dev := device.Attach(p, info, b.deviceHandlers(), b.log.With().Str("component", "device").Logger())
	b.setDevice(dev)
}

func (b *Bridge) setDevice(dev *device.Device) {
	b.mu.Lock()
	b.dev = dev
	b.mu.Unlock()
	serialConnected.Set(1)
}

func (b *Bridge) device() *device.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dev
}

func (b *Bridge) deviceHandlers() device.Handlers {
	return device.Handlers{
		OnLine:  b.handleLine,
		OnClose: b.handleDeviceClosed,
	}
}

func (b *Bridge) handleLine(line string) {
	sensorLines.Inc()
	payload, err := protocol.NewSensorData(line)
	if err != nil {
		b.log.Error().Err(err).Msg("error encoding sensor data")
		return
	}
	b.srv.Hub().Broadcast(payload)
}

func (b *Bridge) handleDeviceClosed(err error) {
	serialConnected.Set(0)

	msg := "device disconnected"
	if err != nil {
		msg = "device lost: " + err.Error()
	}
	b.log.Warn().Str("reason", msg).Msg("device port closed")

	payload, encErr := protocol.NewStatus(msg)
	if encErr != nil {
		b.log.Error().Err(encErr).Msg("error encoding status")
		return
	}
	b.srv.Hub().Broadcast(payload)
}

// HandleCommand implements server.Controller.
func (b *Bridge) HandleCommand(cmd protocol.Command) bool {
	dev := b.device()
	if !dev.IsOpen() {
		b.log.Warn().Str("command", cmd.String()).Msg("no device connected; command dropped")
		return false
	}

	if err := dev.Send(cmd); err != nil {
		deviceWriteErrors.Inc()
		b.log.Error().Err(err).Str("command", cmd.String()).Msg("error sending command")
		return false
	}
	b.log.Info().Str("command", cmd.String()).Str("direction", cmd.Direction()).Msg("sent to device")
	return true
}

// DeviceConnected implements server.Controller.
func (b *Bridge) DeviceConnected() bool {
	return b.device().IsOpen()
}

// Start launches the hub. Call it before Serve or before handing Handler to
// a test server.
func (b *Bridge) Start() {
	b.srv.StartHub()
}

// Run starts the hub and the HTTP server and blocks until ctx is cancelled or
// the server fails, then shuts everything down.
func (b *Bridge) Run(ctx context.Context) error {
	b.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := b.srv.StartServer(b.http); err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		b.log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), b.cfg.Server.ShutdownTimeout+b.cfg.Serial.StopGrace)
		defer cancel()
		return b.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the robot and tears down both ends: if the device is open it
// is sent a stop command, given the configured grace period, and closed; then
// the HTTP server and hub are shut down. Only the first call does work.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.shutdownOnce.Do(func() {
		b.shutdownErr = b.shutdown(ctx)
	})
	return b.shutdownErr
}

func (b *Bridge) shutdown(ctx context.Context) error {
	var errs []error

	if dev := b.device(); dev != nil {
		if dev.IsOpen() {
			if err := dev.Send(protocol.Stop); err != nil {
				errs = append(errs, fmt.Errorf("send stop: %w", err))
			} else {
				b.log.Info().Msg("stop command sent")
			}

			timer := time.NewTimer(b.cfg.Serial.StopGrace)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		if err := dev.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	timeout := b.cfg.Server.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < timeout {
			timeout = remaining
		}
	}

	if err := b.srv.ShutdownServer(b.http, timeout); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}
	if err := b.srv.Hub().Shutdown(timeout); err != nil {
		errs = append(errs, fmt.Errorf("shutdown hub: %w", err))
	}

	return errors.Join(errs...)
}
