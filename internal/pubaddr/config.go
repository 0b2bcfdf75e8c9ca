// Package pubaddr discovers the host's public IPv4 address as seen from a
// given local source address, so callers can prove which egress path their
// traffic takes.
package pubaddr

import (
	"errors"
	"time"
)

// DefaultTimeout is the default per-source probe timeout.
const DefaultTimeout = 5 * time.Second

// DefaultSTUNServers is the default list of STUN servers probed first.
var DefaultSTUNServers = []string{
	"stun.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

// DefaultEchoURLs is the default list of HTTPS address echo services used
// when no STUN server responds.
var DefaultEchoURLs = []string{
	"https://api.ipify.org",
	"https://icanhazip.com",
}

// Config holds the configuration for public address probing.
type Config struct {
	// STUNServers is the list of STUN server addresses (host:port),
	// tried in order.
	STUNServers []string `yaml:"stun_servers"`

	// EchoURLs is the list of HTTPS address echo endpoints, tried in
	// order after the STUN servers.
	EchoURLs []string `yaml:"echo_urls"`

	// Timeout is the per-source probe timeout.
	// Default: 5s
	Timeout time.Duration `yaml:"timeout"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.STUNServers == nil {
		c.STUNServers = append([]string{}, DefaultSTUNServers...)
	}
	if c.EchoURLs == nil {
		c.EchoURLs = append([]string{}, DefaultEchoURLs...)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if len(c.STUNServers) == 0 && len(c.EchoURLs) == 0 {
		return errors.New("pubaddr: config: at least one STUN server or echo URL is required")
	}
	if c.Timeout <= 0 {
		return errors.New("pubaddr: config: Timeout must be positive")
	}
	return nil
}
