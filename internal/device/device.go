// Package device owns the serial link to the robot's microcontroller: port
// discovery, opening, line-oriented reads and single-byte command writes.
package device

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
	"go.uber.org/atomic"

	"github.com/Tyrowin/robobridge/internal/protocol"
)

const readBufSize = 256

// Config controls how the device is found and opened.
type Config struct {
	// Port is the device path. Empty means auto-detect.
	Port        string
	BaudRate    int
	DataBits    int
	ReadTimeout time.Duration
	SettleDelay time.Duration
}

// Handlers receive events from the reader goroutine. Either may be nil.
type Handlers struct {
	// OnLine is called for every complete, trimmed, non-empty line.
	OnLine func(line string)
	// OnClose is called once when the device closes. err is nil for a
	// deliberate Close and the read error when the link was lost. It may run
	// on the reader goroutine and must not call Close.
	OnClose func(err error)
}

// Device is an open serial connection to the microcontroller.
type Device struct {
	log      zerolog.Logger
	port     Port
	info     PortInfo
	handlers Handlers

	open   atomic.Bool
	closed atomic.Bool

	writeMu sync.Mutex
	closeCh chan struct{}
	doneCh  chan struct{}
}

// Open enumerates ports, selects one, opens it and starts reading. It blocks
// for cfg.SettleDelay after opening so the board can finish resetting.
func Open(ctx context.Context, cfg Config, h Handlers, logger zerolog.Logger) (*Device, error) {
	ports, err := ListPorts()
	if err != nil {
		if cfg.Port == "" {
			return nil, err
		}
		logger.Warn().Err(err).Msg("port enumeration failed, using configured port")
	}

	for i, p := range ports {
		ev := logger.Info().Int("index", i+1).Str("port", p.Name)
		if p.IsUSB {
			ev = ev.Str("vid", p.VID).Str("pid", p.PID)
		}
		if p.Product != "" {
			ev = ev.Str("product", p.Product)
		}
		ev.Msg("available serial port")
	}

	info, match, err := SelectPort(ports, cfg.Port)
	if err != nil {
		return nil, err
	}
	if match == MatchFallback {
		logger.Warn().Str("port", info.Name).Msg("microcontroller not auto-detected, using first available port")
	}
	logger.Info().Str("port", info.Name).Stringer("match", match).Int("baud", cfg.BaudRate).Msg("connecting to device")

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := openPort(info.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", info.Name, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", info.Name, err)
		}
	}

	d := Attach(p, info, h, logger)
	logger.Info().Str("port", info.Name).Msg("connected to device")

	if cfg.SettleDelay > 0 {
		logger.Info().Dur("delay", cfg.SettleDelay).Msg("waiting for device to initialize")
		timer := time.NewTimer(cfg.SettleDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			_ = d.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return d, nil
}

// Attach wraps an already-open port and starts the reader goroutine.
func Attach(p Port, info PortInfo, h Handlers, logger zerolog.Logger) *Device {
	d := &Device{
		log:      logger.With().Str("port", info.Name).Logger(),
		port:     p,
		info:     info,
		handlers: h,
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	d.open.Store(true)

	go d.readLoop()

	return d
}

// Info describes the port this device is attached to.
func (d *Device) Info() PortInfo {
	return d.info
}

// IsOpen reports whether commands can currently be written.
func (d *Device) IsOpen() bool {
	return d != nil && d.open.Load()
}

// Send writes a single command byte to the device.
func (d *Device) Send(cmd protocol.Command) error {
	if !d.IsOpen() {
		return ErrNotOpen
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	if !d.open.Load() {
		return ErrNotOpen
	}

	n, err := d.port.Write([]byte{byte(cmd)})
	if err != nil {
		return fmt.Errorf("write command %s: %w", cmd, err)
	}
	if n != 1 {
		return fmt.Errorf("write command %s: %w", cmd, io.ErrShortWrite)
	}

	d.log.Debug().Str("command", cmd.String()).Msg("sent to device")
	return nil
}

// Close closes the port and waits for the reader to exit. It is safe to call
// multiple times and after the link was lost.
func (d *Device) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		<-d.doneCh
		return nil
	}

	d.open.Store(false)
	close(d.closeCh)

	d.writeMu.Lock()
	err := d.port.Close()
	d.writeMu.Unlock()

	<-d.doneCh

	d.log.Info().Msg("device port closed")
	d.notifyClosed(nil)

	if err != nil {
		return fmt.Errorf("close serial port %s: %w", d.info.Name, err)
	}
	return nil
}

// lost tears the device down after a read failure. It runs on the reader
// goroutine and must not wait for it.
func (d *Device) lost(readErr error) {
	if !d.closed.CompareAndSwap(false, true) {
		return
	}

	d.log.Error().Err(readErr).Msg("serial port error, closing device")
	d.open.Store(false)
	close(d.closeCh)

	d.writeMu.Lock()
	if err := d.port.Close(); err != nil {
		d.log.Debug().Err(err).Msg("closing lost port")
	}
	d.writeMu.Unlock()

	d.notifyClosed(readErr)
}

func (d *Device) notifyClosed(err error) {
	if d.handlers.OnClose != nil {
		d.handlers.OnClose(err)
	}
}

// readLoop reads until the port is closed or fails. A zero-byte read is a
// read timeout and simply loops.
func (d *Device) readLoop() {
	defer close(d.doneCh)

	buf := make([]byte, readBufSize)
	splitter := newLineSplitter(MaxLineSize)
	emit := func(line string) {
		d.log.Debug().Str("line", line).Msg("received from device")
		if d.handlers.OnLine != nil {
			d.handlers.OnLine(line)
		}
	}

	for {
		select {
		case <-d.closeCh:
			return
		default:
		}

		n, err := d.port.Read(buf)
		if err != nil {
			select {
			case <-d.closeCh:
			default:
				d.lost(err)
			}
			return
		}
		if n == 0 {
			continue
		}

		splitter.feed(buf[:n], emit)
	}
}
