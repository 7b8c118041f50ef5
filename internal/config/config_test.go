package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 9600, cfg.Serial.BaudRate)
	assert.Equal(t, 2*time.Second, cfg.Serial.SettleDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.Serial.StopGrace)
}

// TestApplyEnv verifies that every supported environment variable overrides
// its setting.
func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"SERVER_PORT":                ":9090",
		"ALLOWED_ORIGINS":            "http://a.example, http://b.example",
		"MAX_MESSAGE_SIZE":           "1024",
		"RATE_LIMIT_BURST":           "10",
		"RATE_LIMIT_REFILL_INTERVAL": "3",
		"SERIAL_PORT":                "/dev/ttyACM1",
		"SERIAL_BAUD_RATE":           "115200",
		"LOG_LEVEL":                  "DEBUG",
		"LOG_FORMAT":                 "json",
	}))

	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.Server.MaxMessageSize)
	assert.Equal(t, 10, cfg.Server.RateLimit.Burst)
	assert.Equal(t, 3*time.Second, cfg.Server.RateLimit.RefillInterval)
	assert.Equal(t, "/dev/ttyACM1", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnvIgnoresGarbage(t *testing.T) {
	cfg := Default()
	cfg.ApplyEnv(envMap(map[string]string{
		"MAX_MESSAGE_SIZE":           "-4",
		"RATE_LIMIT_BURST":           "lots",
		"RATE_LIMIT_REFILL_INTERVAL": "soon",
		"SERIAL_BAUD_RATE":           "0",
	}))

	def := Default()
	assert.Equal(t, def.Server.MaxMessageSize, cfg.Server.MaxMessageSize)
	assert.Equal(t, def.Server.RateLimit, cfg.Server.RateLimit)
	assert.Equal(t, def.Serial.BaudRate, cfg.Serial.BaudRate)
}

func TestRefillIntervalAcceptsDuration(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, parseRefillInterval("250ms", time.Second))
	assert.Equal(t, time.Second, parseRefillInterval("-1s", time.Second))
}

func TestSanitize(t *testing.T) {
	cfg := &Config{}
	cfg.Serial.SettleDelay = -time.Second
	cfg.Sanitize()

	def := Default()
	assert.Equal(t, def.Server.Port, cfg.Server.Port)
	assert.Equal(t, def.Server.MaxMessageSize, cfg.Server.MaxMessageSize)
	assert.Equal(t, def.Server.RateLimit, cfg.Server.RateLimit)
	assert.Equal(t, def.Serial.BaudRate, cfg.Serial.BaudRate)
	assert.Equal(t, def.Serial.DataBits, cfg.Serial.DataBits)
	assert.Zero(t, cfg.Serial.SettleDelay)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"odd baud rate", func(c *Config) { c.Serial.BaudRate = 9601 }, "BaudRate"},
		{"too many data bits", func(c *Config) { c.Serial.DataBits = 9 }, "DataBits"},
		{"unknown log level", func(c *Config) { c.Log.Level = "chatty" }, "Level"},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }, "Format"},
		{"empty port", func(c *Config) { c.Server.Port = "" }, "Port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := `
server:
  port: ":8181"
  allowed_origins: ["http://localhost:8181"]
  rate_limit:
    burst: 8
    refill_interval: 2s
serial:
  port: /dev/ttyUSB3
  baud_rate: 57600
  settle_delay: 500ms
log:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("SERVER_PORT", "")
	t.Setenv("SERIAL_PORT", "")
	t.Setenv("LOG_LEVEL", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8181", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:8181"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 8, cfg.Server.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.Server.RateLimit.RefillInterval)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Serial.Port)
	assert.Equal(t, 57600, cfg.Serial.BaudRate)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.SettleDelay)
	assert.Equal(t, "warn", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, int64(512), cfg.Server.MaxMessageSize)
	assert.Equal(t, 200*time.Millisecond, cfg.Serial.StopGrace)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial:\n  baud_rate: 12345\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "BaudRate")
}
