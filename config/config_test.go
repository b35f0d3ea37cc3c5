package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "remotehand.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ":4632", cfg.Listen)
	assert.Equal(t, 20*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 8, cfg.WipeCountdown)
	assert.Equal(t, "gmasterkey", cfg.MasterKey)
	assert.Equal(t, "genonbeta", cfg.DefaultSecret)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen = "127.0.0.1:5000"
inbox_listen = ":8080"
read_timeout = "45s"
wipe_countdown = 3
log_level = "debug"

[device]
brand = "Acme"

[host]
action_timeout = "2s"

[actions]
toast = "notify-send \"$REMOTEHAND_MESSAGE\""
lock = "loginctl lock-session"

[alerts]
webhook_url = "https://alerts.example.com/hook"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:5000", cfg.Listen)
	assert.Equal(t, ":8080", cfg.InboxListen)
	assert.Equal(t, 45*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.RelayTimeout)
	assert.Equal(t, 3, cfg.WipeCountdown)
	assert.Equal(t, "Acme", cfg.Device.Brand)
	assert.Empty(t, cfg.Device.Model)
	assert.Equal(t, 2*time.Second, cfg.Host.ActionTimeout)
	assert.Equal(t, "/bin/sh", cfg.Host.Shell)
	assert.Equal(t, "loginctl lock-session", cfg.Actions["lock"])
	assert.Len(t, cfg.Actions, 2)
	assert.Equal(t, "https://alerts.example.com/hook", cfg.Alerts.WebhookURL)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `listen = "127.0.0.1:5000"`)
	t.Setenv("REMOTEHAND_LISTEN", ":6000")
	t.Setenv("REMOTEHAND_RELAY_TIMEOUT", "750ms")
	t.Setenv("REMOTEHAND_MASTER_KEY", "override")
	t.Setenv("REMOTEHAND_DEVICE_MODEL", "Pixel")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.Listen)
	assert.Equal(t, 750*time.Millisecond, cfg.RelayTimeout)
	assert.Equal(t, "override", cfg.MasterKey)
	assert.Equal(t, "Pixel", cfg.Device.Model)
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("REMOTEHAND_WIPE_COUNTDOWN", "many")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
listen = ":1"
lisen = ":2"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lisen")
}

func TestLoad_SyntaxError(t *testing.T) {
	path := writeConfig(t, `listen = `)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }, "listen is required"},
		{"empty data dir", func(c *Config) { c.DataDir = " " }, "data_dir is required"},
		{"zero read timeout", func(c *Config) { c.ReadTimeout = 0 }, "read_timeout"},
		{"negative relay timeout", func(c *Config) { c.RelayTimeout = -time.Second }, "relay_timeout"},
		{"zero action timeout", func(c *Config) { c.Host.ActionTimeout = 0 }, "action_timeout"},
		{"negative countdown", func(c *Config) { c.WipeCountdown = -1 }, "wipe_countdown"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"unknown action", func(c *Config) { c.Actions["teleport"] = "true" }, "teleport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	logger := cfg.Logger()
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))

	cfg.LogFormat = "text"
	assert.NotNil(t, cfg.Logger())
}
