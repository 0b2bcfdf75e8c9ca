// Package driftwatch implements the config drift watchdog: it compares
// the VPN client's live settings against an operator-approved reference
// and restores the reference when they diverge.
package driftwatch

import (
	"errors"
	"time"
)

// DefaultPollInterval is the default drift poll interval.
const DefaultPollInterval = 60 * time.Second

// Config holds the configuration for the drift watchdog.
type Config struct {
	// PollInterval is the drift poll interval.
	// Default: 60s
	PollInterval time.Duration `yaml:"poll_interval"`

	// BackoffThreshold is the number of consecutive restoration failures
	// before restoration attempts are slowed down.
	// Default: 3
	BackoffThreshold int `yaml:"backoff_threshold"`

	// BackoffCooldown is how long restoration is held back once the
	// failure threshold is reached.
	// Default: 5m
	BackoffCooldown time.Duration `yaml:"backoff_cooldown"`
}

// ApplyDefaults sets default values for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return errors.New("driftwatch: config: PollInterval must be positive")
	}
	if c.BackoffThreshold < 0 {
		return errors.New("driftwatch: config: BackoffThreshold must not be negative")
	}
	if c.BackoffCooldown < 0 {
		return errors.New("driftwatch: config: BackoffCooldown must not be negative")
	}
	return nil
}
