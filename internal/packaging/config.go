// Package packaging implements systemd service packaging for bare-metal Linux servers.
package packaging

import (
	"errors"
	"fmt"
	"path/filepath"
)

// InstallConfig holds the configuration for packaging and installing the
// vpnfence monitors as systemd services. InstallConfig is passed as a
// constructor argument — no file I/O in this package's config layer.
type InstallConfig struct {
	// BinaryPath is the path to install the vpnfenced binary.
	// Default: /usr/local/bin/vpnfenced
	BinaryPath string

	// ConfigDir is the configuration directory.
	// Default: /etc/vpnfence
	ConfigDir string

	// StateDir is the supervisor state directory.
	// Default: /var/lib/vpnfence
	StateDir string

	// LogDir is the per-monitor log directory.
	// Default: /var/log/vpnfence
	LogDir string

	// UnitDir is the directory for systemd unit files.
	// Default: /etc/systemd/system
	UnitDir string

	// ServicePrefix is the prefix for the three unit names.
	// Default: vpnfence
	ServicePrefix string

	// MediaServerUID is the unix user ID of the media server, written into
	// the generated default config (optional).
	MediaServerUID int

	// VPNToken is the VPN client API token embedded in the generated
	// default config (optional).
	VPNToken string

	// MediaToken is the media server API token embedded in the generated
	// default config (optional).
	MediaToken string
}

// DefaultBinaryPath is the default path to install the vpnfenced binary.
const DefaultBinaryPath = "/usr/local/bin/vpnfenced"

// DefaultConfigDir is the default configuration directory.
const DefaultConfigDir = "/etc/vpnfence"

// DefaultStateDir is the default supervisor state directory.
const DefaultStateDir = "/var/lib/vpnfence"

// DefaultLogDir is the default per-monitor log directory.
const DefaultLogDir = "/var/log/vpnfence"

// DefaultUnitDir is the default directory for systemd unit files.
const DefaultUnitDir = "/etc/systemd/system"

// DefaultServicePrefix is the default prefix for unit names.
const DefaultServicePrefix = "vpnfence"

// ApplyDefaults sets default values for zero-valued fields.
func (c *InstallConfig) ApplyDefaults() {
	if c.BinaryPath == "" {
		c.BinaryPath = DefaultBinaryPath
	}
	if c.ConfigDir == "" {
		c.ConfigDir = DefaultConfigDir
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.UnitDir == "" {
		c.UnitDir = DefaultUnitDir
	}
	if c.ServicePrefix == "" {
		c.ServicePrefix = DefaultServicePrefix
	}
}

// Validate checks that required fields are set.
func (c *InstallConfig) Validate() error {
	if c.BinaryPath == "" {
		return errors.New("packaging: config: BinaryPath is required")
	}
	if c.ConfigDir == "" {
		return errors.New("packaging: config: ConfigDir is required")
	}
	if c.StateDir == "" {
		return errors.New("packaging: config: StateDir is required")
	}
	if c.LogDir == "" {
		return errors.New("packaging: config: LogDir is required")
	}
	if c.UnitDir == "" {
		return errors.New("packaging: config: UnitDir is required")
	}
	if c.ServicePrefix == "" {
		return errors.New("packaging: config: ServicePrefix is required")
	}
	return nil
}

// UnitName returns the systemd unit name for a monitor.
func (c *InstallConfig) UnitName(mon Monitor) string {
	return fmt.Sprintf("%s-%s.service", c.ServicePrefix, mon.Name)
}

// UnitPath returns the unit file path for a monitor.
func (c *InstallConfig) UnitPath(mon Monitor) string {
	return filepath.Join(c.UnitDir, c.UnitName(mon))
}
