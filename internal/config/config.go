// Package config loads runtime settings for the bridge: built-in defaults,
// an optional YAML file, then environment overrides. The result is
// sanitized and validated before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst" validate:"gt=0"`
	RefillInterval time.Duration `yaml:"refill_interval" validate:"gt=0"`
}

// ServerConfig holds the WebSocket server settings including security controls.
type ServerConfig struct {
	Port            string          `yaml:"port" validate:"required"`
	AllowedOrigins  []string        `yaml:"allowed_origins"`
	MaxMessageSize  int64           `yaml:"max_message_size" validate:"gt=0"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" validate:"gt=0"`
}

// SerialConfig describes how the microcontroller is found and opened.
type SerialConfig struct {
	// Port is the device path. Empty means auto-detect.
	Port        string        `yaml:"port"`
	BaudRate    int           `yaml:"baud_rate" validate:"oneof=1200 2400 4800 9600 19200 38400 57600 115200 230400 460800 921600"`
	DataBits    int           `yaml:"data_bits" validate:"min=5,max=8"`
	ReadTimeout time.Duration `yaml:"read_timeout" validate:"gt=0"`
	// SettleDelay is how long to wait after opening; most boards reset when
	// the port opens.
	SettleDelay time.Duration `yaml:"settle_delay" validate:"gte=0"`
	// StopGrace is how long to wait after the shutdown stop command before
	// closing the port.
	StopGrace time.Duration `yaml:"stop_grace" validate:"gte=0"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

// Config is the full bridge configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Serial SerialConfig `yaml:"serial"`
	Log    LogConfig    `yaml:"log"`
}

// Default returns a Config populated with default values for all settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           ":8080",
			AllowedOrigins: []string{"*"},
			MaxMessageSize: 512,
			RateLimit: RateLimitConfig{
				Burst:          5,
				RefillInterval: time.Second,
			},
			ShutdownTimeout: 5 * time.Second,
		},
		Serial: SerialConfig{
			BaudRate:    9600,
			DataBits:    8,
			ReadTimeout: 100 * time.Millisecond,
			SettleDelay: 2 * time.Second,
			StopGrace:   200 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	cfg.Sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables. Unparseable or
// non-positive numeric values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if port := getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}

	if origins := getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		c.Server.MaxMessageSize = parseMaxMessageSize(maxSize, c.Server.MaxMessageSize)
	}

	if burst := getenv("RATE_LIMIT_BURST"); burst != "" {
		c.Server.RateLimit.Burst = parseIntValue(burst, c.Server.RateLimit.Burst)
	}

	if interval := getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		c.Server.RateLimit.RefillInterval = parseRefillInterval(interval, c.Server.RateLimit.RefillInterval)
	}

	if port := getenv("SERIAL_PORT"); port != "" {
		c.Serial.Port = port
	}

	if baud := getenv("SERIAL_BAUD_RATE"); baud != "" {
		c.Serial.BaudRate = parseIntValue(baud, c.Serial.BaudRate)
	}

	if level := getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = strings.ToLower(level)
	}

	if format := getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = strings.ToLower(format)
	}
}

// Sanitize replaces zero or negative values with their defaults.
func (c *Config) Sanitize() {
	def := Default()

	if c.Server.Port == "" {
		c.Server.Port = def.Server.Port
	}
	if c.Server.MaxMessageSize <= 0 {
		c.Server.MaxMessageSize = def.Server.MaxMessageSize
	}
	if c.Server.RateLimit.Burst <= 0 {
		c.Server.RateLimit.Burst = def.Server.RateLimit.Burst
	}
	if c.Server.RateLimit.RefillInterval <= 0 {
		c.Server.RateLimit.RefillInterval = def.Server.RateLimit.RefillInterval
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}

	if c.Serial.BaudRate <= 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.DataBits == 0 {
		c.Serial.DataBits = def.Serial.DataBits
	}
	if c.Serial.ReadTimeout <= 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}
	if c.Serial.SettleDelay < 0 {
		c.Serial.SettleDelay = 0
	}
	if c.Serial.StopGrace < 0 {
		c.Serial.StopGrace = 0
	}
}

var validate = validator.New()

// Validate checks the configuration and reports every failing field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
