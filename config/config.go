// Package config loads the agent configuration: defaults, then an optional
// TOML file, then REMOTEHAND_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jmcleod/remotehand/actuator"
)

// Config is the full agent configuration.
type Config struct {
	Listen        string        `toml:"listen"         env:"REMOTEHAND_LISTEN"`
	InboxListen   string        `toml:"inbox_listen"   env:"REMOTEHAND_INBOX_LISTEN"`
	DataDir       string        `toml:"data_dir"       env:"REMOTEHAND_DATA_DIR"`
	ReadTimeout   time.Duration `toml:"read_timeout"   env:"REMOTEHAND_READ_TIMEOUT"`
	RelayTimeout  time.Duration `toml:"relay_timeout"  env:"REMOTEHAND_RELAY_TIMEOUT"`
	WipeCountdown int           `toml:"wipe_countdown" env:"REMOTEHAND_WIPE_COUNTDOWN"`
	MasterKey     string        `toml:"master_key"     env:"REMOTEHAND_MASTER_KEY"`
	DefaultSecret string        `toml:"default_secret" env:"REMOTEHAND_DEFAULT_SECRET"`
	LogLevel      string        `toml:"log_level"      env:"REMOTEHAND_LOG_LEVEL"`
	LogFormat     string        `toml:"log_format"     env:"REMOTEHAND_LOG_FORMAT"`

	Alerts  AlertConfig       `toml:"alerts"`
	Device  DeviceConfig      `toml:"device"`
	Host    HostConfig        `toml:"host"`
	Actions map[string]string `toml:"actions"`
}

// AlertConfig configures the outbound alert webhook. An empty URL disables
// it.
type AlertConfig struct {
	WebhookURL    string `toml:"webhook_url"    env:"REMOTEHAND_ALERT_WEBHOOK_URL"`
	WebhookHeader string `toml:"webhook_header" env:"REMOTEHAND_ALERT_WEBHOOK_HEADER"`
}

// DeviceConfig names the device in greetings. Empty fields fall back to the
// host's own details.
type DeviceConfig struct {
	Brand string `toml:"brand" env:"REMOTEHAND_DEVICE_BRAND"`
	Model string `toml:"model" env:"REMOTEHAND_DEVICE_MODEL"`
}

// HostConfig tunes how actions are run.
type HostConfig struct {
	Shell         string        `toml:"shell"          env:"REMOTEHAND_SHELL"`
	ActionTimeout time.Duration `toml:"action_timeout" env:"REMOTEHAND_ACTION_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:        ":4632",
		DataDir:       "./data",
		ReadTimeout:   20 * time.Second,
		RelayTimeout:  5 * time.Second,
		WipeCountdown: 8,
		MasterKey:     "gmasterkey",
		DefaultSecret: "genonbeta",
		LogLevel:      "info",
		LogFormat:     "json",
		Host: HostConfig{
			Shell:         "/bin/sh",
			ActionTimeout: 30 * time.Second,
		},
		Actions: map[string]string{},
	}
}

// Load builds the configuration. path may be empty, in which case only the
// defaults and the environment apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadTOML(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadTOML(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks the configuration for values the agent cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen is required"))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("read_timeout must be positive, got %s", c.ReadTimeout))
	}
	if c.RelayTimeout <= 0 {
		errs = append(errs, fmt.Errorf("relay_timeout must be positive, got %s", c.RelayTimeout))
	}
	if c.Host.ActionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("host.action_timeout must be positive, got %s", c.Host.ActionTimeout))
	}
	if c.WipeCountdown < 0 {
		errs = append(errs, fmt.Errorf("wipe_countdown must not be negative, got %d", c.WipeCountdown))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	for name := range c.Actions {
		if !slices.Contains(actuator.Actions, name) {
			errs = append(errs, fmt.Errorf("actions: unknown capability %q", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level parses the configured log level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Logger builds the process logger on stderr.
func (c Config) Logger() *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
