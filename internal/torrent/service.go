package torrent

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// defaultVerifyInterval is how often the process table is re-scanned while
// waiting for a start or stop to take effect.
const defaultVerifyInterval = 200 * time.Millisecond

// ServiceController drives the client through its service unit and verifies
// every outcome against the live process table. The unit manager's opinion
// of the service state is never trusted on its own: a "stopped" unit with a
// surviving process is exactly the failure mode supervision exists for.
type ServiceController struct {
	cfg    Config
	logger *slog.Logger

	// Seams for tests.
	systemctl      func(ctx context.Context, args ...string) error
	scan           func(ctx context.Context) ([]procEntry, error)
	verifyInterval time.Duration
}

// NewServiceController creates a ServiceController with defaults applied.
func NewServiceController(cfg Config, logger *slog.Logger) (*ServiceController, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ServiceController{
		cfg:            cfg,
		logger:         logger.With("component", "torrent"),
		systemctl:      runSystemctl,
		scan:           scanProcesses,
		verifyInterval: defaultVerifyInterval,
	}, nil
}

// runSystemctl executes systemctl with the given arguments.
func runSystemctl(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "systemctl", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl %s: %s: %w", args[0], strings.TrimSpace(string(output)), err)
	}
	return nil
}

// Running reports whether the client process is currently alive, via a
// fresh process-table scan.
func (c *ServiceController) Running(ctx context.Context) (Handle, bool, error) {
	entry, ok, err := c.find(ctx)
	if err != nil || !ok {
		return Handle{}, false, err
	}
	return Handle{PID: entry.pid, StartedAt: entry.created}, true, nil
}

// Start launches the client through its unit and confirms the process
// actually appears. A unit that reports success but spawns nothing counts
// as a failed launch.
func (c *ServiceController) Start(ctx context.Context) error {
	if entry, ok, err := c.find(ctx); err != nil {
		return err
	} else if ok {
		c.logger.Debug("client already running", "pid", entry.pid)
		return nil
	}

	if err := c.systemctl(ctx, "start", c.cfg.Unit); err != nil {
		return fmt.Errorf("torrent: start %s: %w", c.cfg.Unit, err)
	}

	deadline := time.Now().Add(c.cfg.StartTimeout)
	for {
		entry, ok, err := c.find(ctx)
		if err != nil {
			return err
		}
		if ok {
			c.logger.Info("client started", "pid", entry.pid)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("torrent: start %s: process %q not found after %s",
				c.cfg.Unit, c.cfg.ProcessName, c.cfg.StartTimeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("torrent: start %s: %w", c.cfg.Unit, ctx.Err())
		case <-time.After(c.verifyInterval):
		}
	}
}

// Stop terminates the client and verifies it is gone from the process
// table, escalating from a graceful unit stop to SIGKILL. Stopping an
// already-stopped client is a no-op. ErrStopTimeout is returned when the
// process survives the full escalation.
func (c *ServiceController) Stop(ctx context.Context) error {
	entry, ok, err := c.find(ctx)
	if err != nil {
		return err
	}
	if !ok {
		c.logger.Debug("client already stopped")
		return nil
	}

	if err := c.systemctl(ctx, "stop", c.cfg.Unit); err != nil {
		c.logger.Warn("systemctl stop failed, escalating", "unit", c.cfg.Unit, "error", err)
	}

	if c.waitGone(ctx, c.cfg.StopTimeout) {
		c.logger.Info("client stopped", "pid", entry.pid)
		return nil
	}

	c.logger.Warn("client survived graceful stop, sending SIGKILL", "pid", entry.pid)
	if survivor, ok, err := c.find(ctx); err != nil {
		return err
	} else if ok {
		if err := survivor.kill(); err != nil {
			c.logger.Warn("SIGKILL failed", "pid", survivor.pid, "error", err)
		}
	}

	if c.waitGone(ctx, c.cfg.KillTimeout) {
		c.logger.Info("client killed", "pid", entry.pid)
		return nil
	}

	return fmt.Errorf("%w: %s (pid %d)", ErrStopTimeout, c.cfg.ProcessName, entry.pid)
}

// find scans the process table for the configured process name.
func (c *ServiceController) find(ctx context.Context) (procEntry, bool, error) {
	entries, err := c.scan(ctx)
	if err != nil {
		return procEntry{}, false, fmt.Errorf("torrent: scan processes: %w", err)
	}
	for _, entry := range entries {
		if entry.name == c.cfg.ProcessName {
			return entry, true, nil
		}
	}
	return procEntry{}, false, nil
}

// waitGone re-scans until the process disappears or the window elapses.
func (c *ServiceController) waitGone(ctx context.Context, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for {
		_, ok, err := c.find(ctx)
		if err == nil && !ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.verifyInterval):
		}
	}
}
