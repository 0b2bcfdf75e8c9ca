// Package torrent supervises the BitTorrent client application: its
// bind-address settings file and its service-managed process.
package torrent

import (
	"errors"
	"time"
)

// DefaultUnit is the default systemd unit for the client.
const DefaultUnit = "transmission-daemon.service"

// DefaultProcessName is the default process name matched in the process table.
const DefaultProcessName = "transmission-daemon"

// DefaultSettingsPath is the default path of the client's settings file.
const DefaultSettingsPath = "/var/lib/transmission-daemon/info/settings.json"

// DefaultStartTimeout is the default wait for the process to appear after start.
const DefaultStartTimeout = 10 * time.Second

// DefaultStopTimeout is the default graceful-stop wait before escalation.
const DefaultStopTimeout = 15 * time.Second

// DefaultKillTimeout is the default wait after SIGKILL before giving up.
const DefaultKillTimeout = 5 * time.Second

// Config holds the configuration for the supervised client.
type Config struct {
	// Unit is the systemd unit that runs the client.
	// Default: transmission-daemon.service
	Unit string `yaml:"unit"`

	// ProcessName is the executable name matched against the process table
	// when verifying liveness.
	// Default: transmission-daemon
	ProcessName string `yaml:"process_name"`

	// SettingsPath is the path of the client's settings file holding the
	// bind address.
	// Default: /var/lib/transmission-daemon/info/settings.json
	SettingsPath string `yaml:"settings_path"`

	// StartTimeout is how long a started process may take to appear in the
	// process table before the launch counts as failed.
	// Default: 10s
	StartTimeout time.Duration `yaml:"start_timeout"`

	// StopTimeout is the graceful-stop window before SIGKILL escalation.
	// Default: 15s
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// KillTimeout is the post-SIGKILL window before Stop reports failure.
	// Default: 5s
	KillTimeout time.Duration `yaml:"kill_timeout"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Unit == "" {
		c.Unit = DefaultUnit
	}
	if c.ProcessName == "" {
		c.ProcessName = DefaultProcessName
	}
	if c.SettingsPath == "" {
		c.SettingsPath = DefaultSettingsPath
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.KillTimeout == 0 {
		c.KillTimeout = DefaultKillTimeout
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Unit == "" {
		return errors.New("torrent: config: Unit is required")
	}
	if c.ProcessName == "" {
		return errors.New("torrent: config: ProcessName is required")
	}
	if c.SettingsPath == "" {
		return errors.New("torrent: config: SettingsPath is required")
	}
	if c.StartTimeout <= 0 {
		return errors.New("torrent: config: StartTimeout must be positive")
	}
	if c.StopTimeout <= 0 {
		return errors.New("torrent: config: StopTimeout must be positive")
	}
	if c.KillTimeout <= 0 {
		return errors.New("torrent: config: KillTimeout must be positive")
	}
	return nil
}
