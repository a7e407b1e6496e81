package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	TransportGoBLE    = "goble"
	TransportLoopback = "loopback"
)

// DefaultScript is the loopback central scenario used when none is configured.
var DefaultScript = []string{
	"subscribe",
	"wait 2s",
	"read",
	"write 0",
	"wait 1s",
	"write 1",
	"wait 2s",
	"unsubscribe",
}

// LoopbackConfig configures the in-memory radio used by simulate.
type LoopbackConfig struct {
	Centrals   int      `yaml:"centrals" default:"1"`
	QueueDepth int      `yaml:"queue_depth" default:"8"`
	Script     []string `yaml:"script"`
}

// Config holds application configuration
type Config struct {
	LogLevel          string         `yaml:"log_level" default:"info"`
	DeviceName        string         `yaml:"device_name" default:"Geiger"`
	TelemetryInterval time.Duration  `yaml:"telemetry_interval" default:"400ms"`
	EventBuffer       int            `yaml:"event_buffer" default:"256"`
	EventHistory      int            `yaml:"event_history" default:"64"`
	RequestTimeout    time.Duration  `yaml:"request_timeout" default:"2s"`
	Transport         string         `yaml:"transport" default:"goble"`
	Loopback          LoopbackConfig `yaml:"loopback"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Loopback.Script = append([]string(nil), DefaultScript...)
	return cfg
}

// DefaultConfigPath returns ~/.config/geigersim/config.yaml, or an empty
// string when the home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "geigersim", "config.yaml")
}

// Load reads a YAML file on top of the defaults. A missing file yields the
// defaults; an empty path is treated the same way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if len(cfg.Loopback.Script) == 0 {
		cfg.Loopback.Script = append([]string(nil), DefaultScript...)
	}
	return cfg, cfg.Validate()
}

// Validate rejects non-positive durations and sizes and unknown enum values.
func (c *Config) Validate() error {
	var errs []error
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.DeviceName) == "" {
		errs = append(errs, errors.New("device_name must not be empty"))
	}
	if c.TelemetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("telemetry_interval must be positive, got %s", c.TelemetryInterval))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer))
	}
	if c.EventHistory <= 0 {
		errs = append(errs, fmt.Errorf("event_history must be positive, got %d", c.EventHistory))
	}
	switch c.Transport {
	case TransportGoBLE, TransportLoopback:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportGoBLE, TransportLoopback))
	}
	if c.Loopback.Centrals <= 0 {
		errs = append(errs, fmt.Errorf("loopback.centrals must be positive, got %d", c.Loopback.Centrals))
	}
	if c.Loopback.QueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("loopback.queue_depth must be positive, got %d", c.Loopback.QueueDepth))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ParseLogLevel accepts debug, info, warn and error.
func ParseLogLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", level)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
