//go:build linux

package tunnel

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/vishvananda/netlink"
	"golang.zx2c4.com/wireguard/wgctrl"
)

// NetlinkWatcher implements Watcher using netlink for link and address
// enumeration and wgctrl for authoritative WireGuard device discovery.
type NetlinkWatcher struct {
	cfg    Config
	logger *slog.Logger
}

// NewWatcher returns the Linux tunnel watcher.
func NewWatcher(cfg Config, logger *slog.Logger) (Watcher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &NetlinkWatcher{
		cfg:    cfg,
		logger: logger.With("component", "tunnel"),
	}, nil
}

// Snapshot enumerates tunnel interfaces and their first IPv4 address.
// A new wgctrl client is opened per call to avoid stale netlink socket
// issues across long-lived watcher instances.
func (w *NetlinkWatcher) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("tunnel: snapshot: %w", err)
	}

	wgNames := w.wireguardDevices()

	links, err := netlink.LinkList()
	if err != nil {
		return Snapshot{}, fmt.Errorf("tunnel: snapshot: list links: %w", err)
	}

	var ifaces []Interface
	for _, link := range links {
		if !w.isTunnel(link, wgNames) {
			continue
		}
		attrs := link.Attrs()
		iface := Interface{Name: attrs.Name, Index: attrs.Index}

		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return Snapshot{}, fmt.Errorf("tunnel: snapshot: list addresses on %s: %w", attrs.Name, err)
		}
		for _, addr := range addrs {
			ip, ok := netip.AddrFromSlice(addr.IP.To4())
			if !ok {
				continue
			}
			iface.Addr = ip
			break
		}

		ifaces = append(ifaces, iface)
	}

	sortInterfaces(ifaces)
	return Snapshot{Interfaces: ifaces}, nil
}

// wireguardDevices returns the names of all WireGuard devices on the host.
// Enumeration failures degrade to name/type matching: a kernel without
// WireGuard support still has OpenVPN-style tun links to classify.
func (w *NetlinkWatcher) wireguardDevices() map[string]bool {
	names := make(map[string]bool)

	client, err := wgctrl.New()
	if err != nil {
		w.logger.Debug("wgctrl unavailable", "error", err)
		return names
	}
	defer client.Close()

	devices, err := client.Devices()
	if err != nil {
		w.logger.Debug("wgctrl device enumeration failed", "error", err)
		return names
	}
	for _, dev := range devices {
		names[dev.Name] = true
	}
	return names
}

// isTunnel classifies a link as a tunnel: a known WireGuard device, a link
// reporting a tunnel type, or a name matching a configured prefix.
func (w *NetlinkWatcher) isTunnel(link netlink.Link, wgNames map[string]bool) bool {
	attrs := link.Attrs()
	if wgNames[attrs.Name] {
		return true
	}
	switch link.Type() {
	case "wireguard", "tun":
		return true
	}
	for _, prefix := range w.cfg.NamePrefixes {
		if strings.HasPrefix(attrs.Name, prefix) {
			return true
		}
	}
	return false
}
