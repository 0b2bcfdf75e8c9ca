// Package tunnel observes VPN tunnel interfaces on the local host.
package tunnel

import "fmt"

// DefaultNamePrefixes lists interface-name prefixes treated as tunnels in
// addition to links that identify themselves as wireguard or tun devices.
var DefaultNamePrefixes = []string{"wg", "tun"}

// Config holds the configuration for tunnel interface discovery.
type Config struct {
	// NamePrefixes is the list of interface-name prefixes classified as
	// tunnels. Links whose netlink type is wireguard or tun are always
	// classified as tunnels regardless of name.
	// Default: ["wg", "tun"]
	NamePrefixes []string `yaml:"name_prefixes"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.NamePrefixes == nil {
		c.NamePrefixes = append([]string{}, DefaultNamePrefixes...)
	}
}

// Validate checks that configuration values are acceptable.
func (c *Config) Validate() error {
	for i, prefix := range c.NamePrefixes {
		if prefix == "" {
			return fmt.Errorf("tunnel: config: NamePrefixes[%d] must not be empty", i)
		}
	}
	return nil
}
