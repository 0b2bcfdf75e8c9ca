package vpnclient

import (
	"errors"
	"time"
)

// DefaultBaseURL is the default VPN client control API endpoint. The
// control API only listens on loopback.
const DefaultBaseURL = "http://127.0.0.1:7867"

// DefaultRequestTimeout is the default HTTP request timeout.
const DefaultRequestTimeout = 10 * time.Second

// Config holds the configuration for the VPN client control API.
type Config struct {
	// BaseURL is the control API base URL.
	// Default: "http://127.0.0.1:7867"
	BaseURL string `yaml:"base_url"`

	// Token is the control API bearer token. Optional: most VPN client
	// builds leave the loopback API unauthenticated.
	Token string `yaml:"token"`

	// RequestTimeout is the maximum time for a complete request/response
	// cycle.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("vpnclient: config: BaseURL is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("vpnclient: config: RequestTimeout must be positive")
	}
	return nil
}
