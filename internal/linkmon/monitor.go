package linkmon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/vpnfence/vpnfenced/internal/torrent"
	"github.com/vpnfence/vpnfenced/internal/tunnel"
)

// AppSettings reads and rewrites the supervised client's bind address.
type AppSettings interface {
	BindAddress() (netip.Addr, error)
	SetBindAddress(addr netip.Addr) error
}

// AppProcess controls the supervised client process.
type AppProcess interface {
	Running(ctx context.Context) (torrent.Handle, bool, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Monitor polls the tunnel link and converges the client on it: bound to
// the tunnel address while the tunnel is up, stopped while it is down.
type Monitor struct {
	cfg      Config
	watcher  tunnel.Watcher
	settings AppSettings
	proc     AppProcess
	logger   *slog.Logger

	state      State
	downCycles int
}

// NewMonitor creates a link monitor.
func NewMonitor(cfg Config, watcher tunnel.Watcher, settings AppSettings, proc AppProcess, logger *slog.Logger) (*Monitor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{
		cfg:      cfg,
		watcher:  watcher,
		settings: settings,
		proc:     proc,
		logger:   logger.With("component", "linkmon"),
	}, nil
}

// Run executes the poll loop until ctx is cancelled or a cycle fails
// fatally. The first cycle runs immediately.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("link monitor started", "poll_interval", m.cfg.PollInterval)

	if err := m.cycle(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("link monitor stopped")
			return nil
		case <-ticker.C:
			if err := m.cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// cycle performs one poll. It returns an error only for fatal conditions;
// transient failures are logged and retried on the next poll.
func (m *Monitor) cycle(ctx context.Context) error {
	snap, err := m.watcher.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		m.logger.Warn("interface snapshot failed", "error", err)
		return nil
	}

	prev := m.state
	next, transition := Next(prev, snap)
	m.state = next

	switch transition {
	case TransitionUp:
		m.downCycles = 0
		m.logger.Info("tunnel up", "interface", next.Iface, "address", next.Addr.String())
		return m.converge(ctx, next.Addr, false)

	case TransitionChanged:
		m.logger.Info("tunnel changed",
			"interface", next.Iface,
			"old_interface", prev.Iface,
			"old_address", prev.Addr.String(),
			"new_address", next.Addr.String())
		return m.converge(ctx, next.Addr, true)

	case TransitionDown:
		m.downCycles = 0
		m.logger.Warn("tunnel down, stopping client", "interface", prev.Iface)
		return m.stopClient(ctx)

	default:
		if next.Phase == PhaseUp {
			return m.converge(ctx, next.Addr, false)
		}
		m.downCycles++
		if m.downCycles%m.cfg.DownLogEvery == 0 {
			m.logger.Info("tunnel still down, client held stopped", "cycles", m.downCycles)
		}
		return m.stopClient(ctx)
	}
}

// converge puts the client in the desired up posture: bind address
// confirmed on disk first, then the process running. With restart set
// (address change) the client is stopped up front so it cannot keep
// serving traffic on the old binding.
func (m *Monitor) converge(ctx context.Context, addr netip.Addr, restart bool) error {
	if restart {
		if err := m.proc.Stop(ctx); err != nil {
			return m.stopFailure(err)
		}
	}

	bound, err := m.ensureBound(ctx, addr)
	if err != nil {
		if errors.Is(err, torrent.ErrStopTimeout) {
			return m.stopFailure(err)
		}
		m.logger.Warn("bind address update failed, retrying next poll", "error", err)
		return nil
	}
	if !bound {
		// Never launch on an unconfirmed binding.
		return nil
	}

	_, running, err := m.proc.Running(ctx)
	if err != nil {
		m.logger.Warn("liveness check failed, retrying next poll", "error", err)
		return nil
	}
	if running {
		return nil
	}

	if err := m.proc.Start(ctx); err != nil {
		// Launching is cheap, so no backoff: the next poll retries.
		m.logger.Warn("client launch failed, retrying next poll", "error", err)
		return nil
	}
	return nil
}

// ensureBound makes the settings file carry addr and confirms it by
// reading back. A write that does not stick means a running client has
// rewritten its own settings, so the client is stopped before one more
// write attempt. Returns true only when the read back value matches.
func (m *Monitor) ensureBound(ctx context.Context, addr netip.Addr) (bool, error) {
	current, err := m.settings.BindAddress()
	if err != nil {
		return false, err
	}
	if current == addr {
		return true, nil
	}

	if err := m.settings.SetBindAddress(addr); err != nil {
		return false, err
	}
	readback, err := m.settings.BindAddress()
	if err != nil {
		return false, err
	}
	if readback == addr {
		m.logger.Info("bind address updated", "address", addr.String())
		return true, nil
	}

	m.logger.Warn("bind address write did not stick, stopping client before rewrite",
		"want", addr.String(), "got", readback.String())
	if err := m.proc.Stop(ctx); err != nil {
		return false, err
	}
	if err := m.settings.SetBindAddress(addr); err != nil {
		return false, err
	}
	readback, err = m.settings.BindAddress()
	if err != nil {
		return false, err
	}
	if readback != addr {
		return false, fmt.Errorf("linkmon: bind address %s not applied (read back %s)", addr, readback)
	}
	m.logger.Info("bind address updated", "address", addr.String())
	return true, nil
}

// stopClient stops the client. An unkillable process is fatal: the
// monitor must never carry on as if the client were stopped.
func (m *Monitor) stopClient(ctx context.Context) error {
	if err := m.proc.Stop(ctx); err != nil {
		return m.stopFailure(err)
	}
	return nil
}

func (m *Monitor) stopFailure(err error) error {
	if errors.Is(err, torrent.ErrStopTimeout) {
		m.logger.Error("client cannot be stopped, exiting so the service manager restarts supervision", "error", err)
		return fmt.Errorf("linkmon: %w", err)
	}
	m.logger.Warn("client stop attempt failed, retrying next poll", "error", err)
	return nil
}
