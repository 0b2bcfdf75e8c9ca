package driftwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vpnfence/vpnfenced/internal/backoff"
	"github.com/vpnfence/vpnfenced/internal/vpnclient"
)

// SettingsClient is the slice of the VPN client control API the watchdog
// uses.
type SettingsClient interface {
	Settings(ctx context.Context) (vpnclient.Settings, error)
	ApplySettings(ctx context.Context, s vpnclient.Settings) error
	Reconnect(ctx context.Context) error
}

// Watchdog polls the VPN client settings and restores the reference
// snapshot whenever they drift, unless the operator paused restoration.
type Watchdog struct {
	cfg     Config
	client  SettingsClient
	refPath string
	marker  *Marker
	tracker *backoff.Tracker
	logger  *slog.Logger
}

// NewWatchdog creates a drift watchdog. refPath is where the reference
// snapshot lives.
func NewWatchdog(cfg Config, client SettingsClient, refPath string, marker *Marker, logger *slog.Logger) (*Watchdog, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if refPath == "" {
		return nil, errors.New("driftwatch: reference path is required")
	}

	return &Watchdog{
		cfg:     cfg,
		client:  client,
		refPath: refPath,
		marker:  marker,
		tracker: backoff.NewTracker(cfg.BackoffThreshold, cfg.BackoffCooldown),
		logger:  logger.With("component", "driftwatch"),
	}, nil
}

// Run executes the poll loop until ctx is cancelled. The first cycle runs
// immediately.
func (w *Watchdog) Run(ctx context.Context) error {
	w.logger.Info("drift watchdog started",
		"poll_interval", w.cfg.PollInterval,
		"reference", w.refPath)

	if err := w.cycle(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("drift watchdog stopped")
			return nil
		case <-ticker.C:
			if err := w.cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// cycle performs one poll. All failures here are transient: they are
// logged and the next poll retries. A pause marker suspends correction
// and the bootstrap write only; drift is still detected and logged, so
// the log trail shows what changed during a maintenance window.
func (w *Watchdog) cycle(ctx context.Context) error {
	paused, err := w.marker.Present()
	if err != nil {
		// Unknown pause state: keep observing, never correct over a
		// maintenance window that may be in progress.
		w.logger.Warn("pause marker check failed, holding corrections", "error", err)
		paused = true
	}

	ref, err := LoadReference(w.refPath)
	if errors.Is(err, ErrNoReference) {
		if paused {
			w.logger.Warn("no reference and restoration paused, nothing to enforce",
				"marker", w.marker.Path())
			return nil
		}
		w.bootstrap(ctx)
		return nil
	}
	if err != nil {
		w.logger.Error("reference unreadable, not enforcing", "error", err)
		return nil
	}

	current, err := w.client.Settings(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Warn("settings fetch failed", "error", err)
		return nil
	}

	drift := Compare(ref.Settings, current)
	if drift.Empty() {
		w.tracker.Reset()
		return nil
	}

	w.logger.Warn("settings drifted from reference",
		"fields", len(drift.Fields),
		"drift", drift.String(),
		"reference_saved_at", ref.SavedAt.Format(time.RFC3339))

	if paused {
		w.logger.Info("restoration paused by operator, drift left in place",
			"marker", w.marker.Path())
		return nil
	}

	if !w.tracker.Eligible() {
		w.logger.Info("restoration held back",
			"failures", w.tracker.Failures(),
			"retry_in", w.tracker.Remaining().Round(time.Second).String())
		return nil
	}

	if err := w.restore(ctx, ref.Settings); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if w.tracker.Failure() {
			w.logger.Error("restoration failing repeatedly, backing off",
				"failures", w.tracker.Failures(),
				"cooldown", w.tracker.Remaining().Round(time.Second).String(),
				"error", err)
		} else {
			w.logger.Warn("restoration failed", "error", err)
		}
		return nil
	}

	w.tracker.Reset()
	w.logger.Info("settings restored", "fields", len(drift.Fields))
	return nil
}

// bootstrap snapshots the current settings as the first reference. This
// only happens at initial deployment; the loud log makes an accidental
// wipe of the state directory visible.
func (w *Watchdog) bootstrap(ctx context.Context) {
	current, err := w.client.Settings(ctx)
	if err != nil {
		w.logger.Warn("settings fetch failed, cannot snapshot reference", "error", err)
		return
	}
	if err := SaveReference(w.refPath, current); err != nil {
		w.logger.Warn("reference snapshot failed", "error", err)
		return
	}
	w.logger.Warn("no reference found, snapshotted current settings as reference", "path", w.refPath)
}

// restore applies the reference, reconnects so it takes effect, and
// confirms by re-reading. Restoration only counts as a success when the
// re-read matches the reference.
func (w *Watchdog) restore(ctx context.Context, want vpnclient.Settings) error {
	if err := w.client.ApplySettings(ctx, want); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}
	if err := w.client.Reconnect(ctx); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}
	got, err := w.client.Settings(ctx)
	if err != nil {
		return fmt.Errorf("verify settings: %w", err)
	}
	if remaining := Compare(want, got); !remaining.Empty() {
		return fmt.Errorf("settings still drifted after restore: %s", remaining)
	}
	return nil
}

// SnapshotReference captures the VPN client's current settings as the new
// reference and clears any pause marker, re-arming enforcement.
func (w *Watchdog) SnapshotReference(ctx context.Context) error {
	current, err := w.client.Settings(ctx)
	if err != nil {
		return fmt.Errorf("driftwatch: fetch settings: %w", err)
	}
	if err := SaveReference(w.refPath, current); err != nil {
		return err
	}
	if err := w.marker.Clear(); err != nil {
		return err
	}
	w.logger.Info("reference snapshot saved", "path", w.refPath)
	return nil
}

// Pause sets the pause marker so the running watchdog skips restoration
// until a new reference is saved.
func (w *Watchdog) Pause() error {
	if err := w.marker.Set(); err != nil {
		return err
	}
	w.logger.Info("restoration paused", "marker", w.marker.Path())
	return nil
}
