// Package supervisor ties the monitors to a single configuration file
// and the shared state directory.
package supervisor

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vpnfence/vpnfenced/internal/bypass"
	"github.com/vpnfence/vpnfenced/internal/driftwatch"
	"github.com/vpnfence/vpnfenced/internal/linkmon"
	"github.com/vpnfence/vpnfenced/internal/logging"
	"github.com/vpnfence/vpnfenced/internal/mediaserver"
	"github.com/vpnfence/vpnfenced/internal/pubaddr"
	"github.com/vpnfence/vpnfenced/internal/torrent"
	"github.com/vpnfence/vpnfenced/internal/tunnel"
	"github.com/vpnfence/vpnfenced/internal/vpnclient"
)

const (
	// DefaultConfigPath is the default configuration file location.
	DefaultConfigPath = "/etc/vpnfence/config.yaml"

	// DefaultStateDir is the default directory for supervisor state: the
	// settings reference and the pause marker.
	DefaultStateDir = "/var/lib/vpnfence"
)

// State file names under StateDir.
const (
	referenceFile = "reference.yaml"
	pauseFile     = "pause"
)

// Config is the top-level configuration for all monitors. It aggregates
// the subsystem configurations and is populated from a YAML configuration
// file via ParseConfig.
type Config struct {
	// StateDir is the directory for supervisor state.
	// Default: /var/lib/vpnfence
	StateDir string `yaml:"state_dir"`

	Logging     logging.Config     `yaml:"logging"`
	Tunnel      tunnel.Config      `yaml:"tunnel"`
	Torrent     torrent.Config     `yaml:"torrent"`
	LinkMonitor linkmon.Config     `yaml:"link_monitor"`
	VPNClient   vpnclient.Config   `yaml:"vpn_client"`
	DriftWatch  driftwatch.Config  `yaml:"drift_watchdog"`
	PubAddr     pubaddr.Config     `yaml:"public_address"`
	MediaServer mediaserver.Config `yaml:"media_server"`
	Bypass      bypass.Config      `yaml:"bypass"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	c.Logging.ApplyDefaults()
	c.Tunnel.ApplyDefaults()
	c.Torrent.ApplyDefaults()
	c.LinkMonitor.ApplyDefaults()
	c.VPNClient.ApplyDefaults()
	c.DriftWatch.ApplyDefaults()
	c.PubAddr.ApplyDefaults()
	c.MediaServer.ApplyDefaults()
	c.Bypass.ApplyDefaults()
}

// Validate checks that required fields are set and values are acceptable.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("supervisor: config: StateDir is required")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Tunnel.Validate(); err != nil {
		return err
	}
	if err := c.Torrent.Validate(); err != nil {
		return err
	}
	if err := c.LinkMonitor.Validate(); err != nil {
		return err
	}
	if err := c.VPNClient.Validate(); err != nil {
		return err
	}
	if err := c.DriftWatch.Validate(); err != nil {
		return err
	}
	if err := c.PubAddr.Validate(); err != nil {
		return err
	}
	if err := c.MediaServer.Validate(); err != nil {
		return err
	}
	if err := c.Bypass.Validate(); err != nil {
		return err
	}
	return nil
}

// ReferencePath returns the location of the operator-approved settings
// reference under StateDir.
func (c *Config) ReferencePath() string {
	return filepath.Join(c.StateDir, referenceFile)
}

// PausePath returns the location of the pause marker under StateDir.
func (c *Config) PausePath() string {
	return filepath.Join(c.StateDir, pauseFile)
}

// ParseConfig reads a YAML configuration file and returns a Config. It
// applies defaults and validates the configuration.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("supervisor: config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("supervisor: config: parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
