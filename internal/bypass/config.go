// Package bypass maintains the policy-routing rules that steer the media
// server's traffic around the VPN tunnel and keeps the server's advertised
// address pointing at the real public address of that path.
package bypass

import (
	"errors"
	"time"
)

// Defaults for the owned policy-routing region. The values sit outside
// anything distributions configure by default so the supervisor never
// fights other tooling for them.
const (
	DefaultPollInterval = 60 * time.Second
	DefaultMark         = 0x20
	DefaultRouteTable   = 212
	DefaultRulePriority = 15000
)

// Reserved kernel route tables that must never be used as the bypass
// table.
const (
	tableUnspec  = 0
	tableDefault = 253
	tableMain    = 254
	tableLocal   = 255
)

// Config holds the configuration for the bypass route daemon.
type Config struct {
	// PollInterval is the verification poll interval.
	// Default: 60s
	PollInterval time.Duration `yaml:"poll_interval"`

	// UID is the unix user ID the media server runs as. Traffic owned by
	// this UID is steered around the tunnel. Required.
	UID uint32 `yaml:"uid"`

	// Mark is the fwmark stamped on the media server's packets.
	// Default: 0x20
	Mark uint32 `yaml:"mark"`

	// RouteTable is the kernel route table holding the bypass routes.
	// Default: 212
	RouteTable int `yaml:"route_table"`

	// RulePriority is the ip-rule priority for the fwmark lookup. It must
	// sort before the main table rule (32766).
	// Default: 15000
	RulePriority int `yaml:"rule_priority"`

	// AdvertisePort is the port published in the media server's
	// advertised address. Zero means use the server's own listen port.
	AdvertisePort int `yaml:"advertise_port"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Mark == 0 {
		c.Mark = DefaultMark
	}
	if c.RouteTable == 0 {
		c.RouteTable = DefaultRouteTable
	}
	if c.RulePriority == 0 {
		c.RulePriority = DefaultRulePriority
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("bypass: config: PollInterval must be positive")
	}
	if c.UID == 0 {
		return errors.New("bypass: config: UID is required (root traffic is never steered)")
	}
	if c.Mark == 0 {
		return errors.New("bypass: config: Mark must not be zero")
	}
	switch c.RouteTable {
	case tableUnspec, tableDefault, tableMain, tableLocal:
		return errors.New("bypass: config: RouteTable must not be a reserved kernel table")
	}
	if c.RouteTable < 0 || c.RouteTable > 252 {
		return errors.New("bypass: config: RouteTable must be between 1 and 252")
	}
	if c.RulePriority <= 0 || c.RulePriority >= 32766 {
		return errors.New("bypass: config: RulePriority must be between 1 and 32765")
	}
	if c.AdvertisePort < 0 || c.AdvertisePort > 65535 {
		return errors.New("bypass: config: AdvertisePort must be a valid port")
	}
	return nil
}
