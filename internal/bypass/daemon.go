package bypass

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/vpnfence/vpnfenced/internal/mediaserver"
)

// Prober resolves the public address of the physical path.
type Prober interface {
	Probe(ctx context.Context, local netip.Addr) (netip.Addr, error)
}

// MediaClient is the slice of the media server API the daemon needs.
type MediaClient interface {
	Connection(ctx context.Context) (mediaserver.Connection, error)
	SetAdvertisedAddress(ctx context.Context, hostport string) error
}

// Daemon keeps the bypass policy routing converged and the media
// server's advertised address pointing at the physical path's public
// address. Rule failures are fatal: a daemon that cannot see or steer
// the kernel state must not keep running as if it could.
type Daemon struct {
	cfg      Config
	detector PathDetector
	rules    RuleController
	prober   Prober
	media    MediaClient
	logger   *slog.Logger

	lastPath Path
	havePath bool
}

// NewDaemon returns a bypass route daemon over the given collaborators.
func NewDaemon(cfg Config, detector PathDetector, rules RuleController, prober Prober, media MediaClient, logger *slog.Logger) (*Daemon, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Daemon{
		cfg:      cfg,
		detector: detector,
		rules:    rules,
		prober:   prober,
		media:    media,
		logger:   logger.With("component", "bypass"),
	}, nil
}

// Run executes the verification loop until ctx is cancelled or a rule
// operation fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("bypass route daemon started",
		"poll_interval", d.cfg.PollInterval,
		"uid", d.cfg.UID,
		"mark", fmt.Sprintf("%#x", d.cfg.Mark),
		"route_table", d.cfg.RouteTable)

	if err := d.cycle(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("bypass route daemon stopped")
			return nil
		case <-ticker.C:
			if err := d.cycle(ctx); err != nil {
				return err
			}
		}
	}
}

// cycle performs one verification pass. It returns nil for transient
// conditions that the next poll retries, and an error only when the
// kernel rule state cannot be verified or converged.
func (d *Daemon) cycle(ctx context.Context) error {
	path, err := d.detector.Detect(ctx)
	if err != nil {
		if errors.Is(err, ErrNoPhysicalPath) {
			d.logger.Warn("no physical egress path, leaving rules in place")
			return nil
		}
		d.logger.Warn("path detection failed", "error", err)
		return nil
	}

	if !d.havePath {
		d.logger.Info("physical path detected", "path", path.String())
	} else if d.lastPath != path {
		d.logger.Info("physical path changed",
			"from", d.lastPath.String(), "to", path.String())
	}
	d.lastPath = path
	d.havePath = true

	want := d.ruleSetFor(path)

	intact, err := d.rules.Intact(ctx, want)
	if err != nil {
		d.logger.Error("rule verification failed", "error", err)
		return err
	}
	if !intact {
		d.logger.Warn("bypass rules drifted, reapplying", "rules", want.String())
		if err := d.rules.Apply(ctx, want); err != nil {
			d.logger.Error("rule application failed", "error", err)
			return err
		}
	}

	d.syncAdvertisedAddress(ctx, path)
	return nil
}

// syncAdvertisedAddress points the media server's advertised address at
// the public address of the physical path. Best effort: every failure
// here is retried on the next poll, and the address is rewritten only
// when it differs from what the server currently reports.
func (d *Daemon) syncAdvertisedAddress(ctx context.Context, path Path) {
	pub, err := d.prober.Probe(ctx, path.Addr)
	if err != nil {
		d.logger.Warn("public address probe failed", "error", err)
		return
	}

	conn, err := d.media.Connection(ctx)
	if err != nil {
		d.logger.Warn("media server unreachable", "error", err)
		return
	}

	port := d.cfg.AdvertisePort
	if port == 0 {
		port = conn.ListenPort
	}
	if port == 0 {
		port = mediaserver.DefaultListenPort
	}

	desired := net.JoinHostPort(pub.String(), strconv.Itoa(port))
	if conn.AdvertisedAddress == desired {
		return
	}

	d.logger.Info("advertised address out of date",
		"current", conn.AdvertisedAddress, "desired", desired)
	if err := d.media.SetAdvertisedAddress(ctx, desired); err != nil {
		d.logger.Warn("advertised address update failed", "error", err)
	}
}

// Teardown removes the owned policy-routing region. The poll loop never
// calls this; it backs the one-shot teardown mode.
func (d *Daemon) Teardown(ctx context.Context) error {
	path, err := d.detector.Detect(ctx)
	if err != nil && !errors.Is(err, ErrNoPhysicalPath) {
		return err
	}
	return d.rules.Remove(ctx, d.ruleSetFor(path))
}

func (d *Daemon) ruleSetFor(path Path) RuleSet {
	return RuleSet{
		Iface:    path.Iface,
		Addr:     path.Addr,
		Subnet:   path.Subnet,
		Gateway:  path.Gateway,
		UID:      d.cfg.UID,
		Mark:     d.cfg.Mark,
		Table:    d.cfg.RouteTable,
		Priority: d.cfg.RulePriority,
	}
}
