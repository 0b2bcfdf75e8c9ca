// Package linkmon implements the tunnel link monitor: it keeps the
// BitTorrent client bound to the VPN tunnel address and stops it whenever
// the tunnel is gone.
package linkmon

import (
	"errors"
	"time"
)

// DefaultPollInterval is the default link poll interval.
const DefaultPollInterval = 5 * time.Second

// DefaultDownLogEvery is how many steady-down cycles pass between log
// records. At the default poll interval this logs roughly once a minute.
const DefaultDownLogEvery = 12

// Config holds the configuration for the link monitor.
type Config struct {
	// PollInterval is the interface poll interval.
	// Default: 5s
	PollInterval time.Duration `yaml:"poll_interval"`

	// DownLogEvery reduces steady-down logging to one record per N cycles.
	// Default: 12
	DownLogEvery int `yaml:"down_log_every"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DownLogEvery == 0 {
		c.DownLogEvery = DefaultDownLogEvery
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("linkmon: config: PollInterval must be positive")
	}
	if c.DownLogEvery <= 0 {
		return errors.New("linkmon: config: DownLogEvery must be positive")
	}
	return nil
}
