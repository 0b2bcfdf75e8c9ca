package mediaserver

import (
	"errors"
	"time"
)

// DefaultBaseURL is the default media server API endpoint on the local
// host.
const DefaultBaseURL = "http://127.0.0.1:32400"

// DefaultListenPort is the media server's well-known listen port, used
// when the server does not report one.
const DefaultListenPort = 32400

// DefaultRequestTimeout is the default HTTP request timeout.
const DefaultRequestTimeout = 10 * time.Second

// Config holds the configuration for the media server API.
type Config struct {
	// BaseURL is the media server API base URL.
	// Default: "http://127.0.0.1:32400"
	BaseURL string `yaml:"base_url"`

	// Token is the media server API token.
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
		return errors.New("mediaserver: config: BaseURL is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("mediaserver: config: RequestTimeout must be positive")
	}
	return nil
}
