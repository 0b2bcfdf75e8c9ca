package pubaddr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
)

// ErrNoResponse is returned when every probe source failed to answer.
var ErrNoResponse = errors.New("pubaddr: no probe source responded")

// Prober discovers the public address reachable from a local source
// address.
type Prober interface {
	Probe(ctx context.Context, local netip.Addr) (netip.Addr, error)
}

// MultiProber tries STUN servers in order, then HTTPS echo services.
type MultiProber struct {
	cfg    Config
	stun   STUNClient
	echo   EchoClient
	logger *slog.Logger
}

// NewProber creates a prober over the configured STUN and echo sources.
func NewProber(cfg Config, logger *slog.Logger) (*MultiProber, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &MultiProber{
		cfg:    cfg,
		stun:   &UDPSTUNClient{Timeout: cfg.Timeout},
		echo:   &HTTPEchoClient{Timeout: cfg.Timeout},
		logger: logger.With("component", "pubaddr"),
	}, nil
}

// Probe returns the first public address any source reports for traffic
// leaving from local. It returns ErrNoResponse when every source failed.
func (p *MultiProber) Probe(ctx context.Context, local netip.Addr) (netip.Addr, error) {
	for _, server := range p.cfg.STUNServers {
		mapped, err := p.stun.Bind(ctx, server, local)
		if err != nil {
			if ctx.Err() != nil {
				return netip.Addr{}, fmt.Errorf("pubaddr: probe: %w", ctx.Err())
			}
			p.logger.Debug("STUN probe failed", "server", server, "error", err)
			continue
		}
		addr, err := toAddr4(mapped)
		if err != nil {
			p.logger.Debug("STUN probe unusable", "server", server, "error", err)
			continue
		}
		p.logger.Debug("public address probed", "source", server, "address", addr.String())
		return addr, nil
	}

	for _, url := range p.cfg.EchoURLs {
		addr, err := p.echo.Fetch(ctx, url, local)
		if err != nil {
			if ctx.Err() != nil {
				return netip.Addr{}, fmt.Errorf("pubaddr: probe: %w", ctx.Err())
			}
			p.logger.Debug("echo probe failed", "url", url, "error", err)
			continue
		}
		p.logger.Debug("public address probed", "source", url, "address", addr.String())
		return addr, nil
	}

	return netip.Addr{}, ErrNoResponse
}

func toAddr4(mapped MappedAddress) (netip.Addr, error) {
	ip4 := mapped.IP.To4()
	if ip4 == nil {
		return netip.Addr{}, fmt.Errorf("pubaddr: mapped address %s is not IPv4", mapped.IP)
	}
	addr, ok := netip.AddrFromSlice(ip4)
	if !ok {
		return netip.Addr{}, fmt.Errorf("pubaddr: mapped address %s unusable", mapped.IP)
	}
	return addr, nil
}
