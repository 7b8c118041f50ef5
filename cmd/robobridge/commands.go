package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/robobridge/internal/bridge"
	"github.com/Tyrowin/robobridge/internal/config"
	"github.com/Tyrowin/robobridge/internal/device"
	"github.com/Tyrowin/robobridge/internal/logging"
	"github.com/Tyrowin/robobridge/internal/teleop"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	addr       string
	serialPort string
	baudRate   int

	url    string
	origin string
}

var selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))

// listPorts enumerates serial ports for the ports command.
var listPorts = device.ListPorts

func newRootCmd() *cobra.Command {
	return buildRootCmd(&rootOptions{})
}

func buildRootCmd(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "robobridge",
		Short: "Bridge a serial-connected robot to WebSocket clients",
		Long: `robobridge finds the robot's microcontroller on a serial port, forwards
W/A/S/D/X drive commands from WebSocket clients to it and broadcasts every
line it prints back to all connected clients.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format (console, json)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Open the robot's serial port and serve WebSocket clients (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	addServeFlags(serveCmd, opts)
	addServeFlags(rootCmd, opts)

	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and show which one would be used",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPorts(cmd, opts)
		},
	}
	portsCmd.Flags().StringVarP(&opts.serialPort, "port", "p", "", "serial device to prefer")

	driveCmd := &cobra.Command{
		Use:   "drive",
		Short: "Drive the robot from the terminal through a running bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDrive(cmd, opts)
		},
	}
	driveCmd.Flags().StringVar(&opts.url, "url", "ws://localhost:8080/ws", "bridge WebSocket URL")
	driveCmd.Flags().StringVar(&opts.origin, "origin", "", "Origin header to send")

	rootCmd.AddCommand(serveCmd, portsCmd, driveCmd)
	return rootCmd
}

func addServeFlags(cmd *cobra.Command, opts *rootOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "", "HTTP listen address (default :8080)")
	f.StringVarP(&opts.serialPort, "port", "p", "", "serial device (default auto-detect)")
	f.IntVar(&opts.baudRate, "baud", 0, "serial baud rate (default 9600)")
}

// load reads the config file and environment, then applies command-line
// overrides and builds the logger.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	o.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}

	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func (o *rootOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = o.logFormat
	}
	if flags.Lookup("addr") != nil && flags.Changed("addr") {
		cfg.Server.Port = o.addr
	}
	if flags.Lookup("port") != nil && flags.Changed("port") {
		cfg.Serial.Port = o.serialPort
	}
	if flags.Lookup("baud") != nil && flags.Changed("baud") {
		cfg.Serial.BaudRate = o.baudRate
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := opts.load(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	b := bridge.New(cfg, logger)
	if err := b.ConnectDevice(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		logger.Error().Err(err).Msg("failed to open serial port")
		return err
	}

	logger.Info().
		Str("addr", cfg.Server.Port).
		Msg("bridge ready; connect a WebSocket client to /ws or open /control in a browser")
	return b.Run(ctx)
}

func runPorts(cmd *cobra.Command, opts *rootOptions) error {
	cfg, _, err := opts.load(cmd)
	if err != nil {
		return err
	}

	ports, err := listPorts()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(ports) == 0 {
		_, err := fmt.Fprintln(out, "No serial ports found.")
		return err
	}

	chosen, match, err := device.SelectPort(ports, cfg.Serial.Port)
	if err != nil {
		return err
	}

	for i, p := range ports {
		line := fmt.Sprintf("%d: %s", i+1, p.Name)
		if p.IsUSB {
			line += fmt.Sprintf("  [%s:%s]", p.VID, p.PID)
		}
		if p.Product != "" {
			line += "  " + p.Product
		}
		if p.Name == chosen.Name {
			line = selectedStyle.Render(line + "  <- " + match.String())
		}
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}

	if match == device.MatchConfigured && !containsPort(ports, chosen.Name) {
		_, err := fmt.Fprintf(out, "Configured port %s was not found.\n", chosen.Name)
		return err
	}
	return nil
}

func containsPort(ports []device.PortInfo, name string) bool {
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}

func runDrive(cmd *cobra.Command, opts *rootOptions) error {
	_, logger, err := opts.load(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	return teleop.Run(ctx, opts.url, opts.origin, logger)
}
