// Package logging builds the structured loggers shared by all vpnfence monitors.
//
// Each monitor writes to its own append-only log file (one self-contained
// line per record, so files survive service restarts and can be tailed
// independently) and mirrors records to stderr for journald.
package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
)

// DefaultDir is the default directory for per-monitor log files.
const DefaultDir = "/var/log/vpnfence"

// DefaultLevel is the default log level.
const DefaultLevel = "info"

// Config holds the logging configuration shared by all monitors.
type Config struct {
	// Dir is the directory for per-monitor log files.
	// Default: /var/log/vpnfence
	Dir string `yaml:"dir"`

	// Level is the log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
	if c.Level == "" {
		c.Level = DefaultLevel
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("logging: config: Dir is required")
	}
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a configuration string to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q (must be debug, info, warn, or error)", level)
	}
}

// New opens the append-only log file for the named monitor and returns a
// logger that writes every record to both the file and stderr. The returned
// close func releases the file handle; callers defer it for the lifetime of
// the monitor. Every record carries a "monitor" attribute.
func New(cfg Config, monitor string) (*slog.Logger, func() error, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logging: create log dir %s: %w", cfg.Dir, err)
	}

	path := filepath.Join(cfg.Dir, monitor+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open log file %s: %w", path, err)
	}

	handler := NewFanoutHandler(
		slog.NewTextHandler(f, &slog.HandlerOptions{Level: lvl}),
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.DateTime,
		}),
	)

	logger := slog.New(handler).With("monitor", monitor)
	return logger, f.Close, nil
}

// NewStderr returns a stderr-only logger for one-shot commands that have no
// long-lived log file of their own.
func NewStderr(level string) *slog.Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
	}))
}
