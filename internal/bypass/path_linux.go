//go:build linux

package bypass

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// NetlinkPathDetector implements PathDetector by walking the main route
// table.
type NetlinkPathDetector struct {
	tunnelPrefixes []string
	logger         *slog.Logger
}

// NewPathDetector returns the Linux path detector. tunnelPrefixes is the
// interface-name vocabulary shared with the tunnel watcher: links matching
// it are never picked as the physical path.
func NewPathDetector(tunnelPrefixes []string, logger *slog.Logger) (PathDetector, error) {
	return &NetlinkPathDetector{
		tunnelPrefixes: append([]string(nil), tunnelPrefixes...),
		logger:         logger.With("component", "bypass"),
	}, nil
}

// Detect finds the physical egress path: the lowest-metric default route
// in the main table whose link is not a tunnel.
func (d *NetlinkPathDetector) Detect(ctx context.Context) (Path, error) {
	if err := ctx.Err(); err != nil {
		return Path{}, fmt.Errorf("bypass: detect path: %w", err)
	}

	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4,
		&netlink.Route{Table: unix.RT_TABLE_MAIN}, netlink.RT_FILTER_TABLE)
	if err != nil {
		return Path{}, fmt.Errorf("bypass: detect path: list routes: %w", err)
	}

	var best *netlink.Route
	var bestLink netlink.Link
	for i := range routes {
		route := &routes[i]
		if !isDefaultRoute(route) || route.Gw == nil {
			continue
		}
		link, err := netlink.LinkByIndex(route.LinkIndex)
		if err != nil {
			d.logger.Debug("default route link lookup failed",
				"link_index", route.LinkIndex, "error", err)
			continue
		}
		if d.linkIsTunnel(link) {
			continue
		}
		if best == nil || route.Priority < best.Priority {
			best = route
			bestLink = link
		}
	}
	if best == nil {
		return Path{}, ErrNoPhysicalPath
	}

	gw, ok := netip.AddrFromSlice(best.Gw.To4())
	if !ok {
		return Path{}, fmt.Errorf("bypass: detect path: gateway %s is not IPv4", best.Gw)
	}

	addr, subnet, err := linkAddr(bestLink)
	if err != nil {
		return Path{}, err
	}

	return Path{
		Iface:   bestLink.Attrs().Name,
		Addr:    addr,
		Subnet:  subnet,
		Gateway: gw,
	}, nil
}

// linkAddr returns the first IPv4 address on the link and its subnet.
func linkAddr(link netlink.Link) (netip.Addr, netip.Prefix, error) {
	name := link.Attrs().Name
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return netip.Addr{}, netip.Prefix{}, fmt.Errorf("bypass: detect path: list addresses on %s: %w", name, err)
	}
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP.To4())
		if !ok {
			continue
		}
		ones, _ := a.Mask.Size()
		prefix, err := ip.Prefix(ones)
		if err != nil {
			continue
		}
		return ip, prefix, nil
	}
	return netip.Addr{}, netip.Prefix{}, fmt.Errorf("bypass: detect path: no IPv4 address on %s", name)
}

func isDefaultRoute(route *netlink.Route) bool {
	if route.Dst == nil {
		return true
	}
	ones, _ := route.Dst.Mask.Size()
	return ones == 0
}

// linkIsTunnel reports whether a link is a VPN tunnel. The default route
// through the tunnel is exactly what the bypass must not use.
func (d *NetlinkPathDetector) linkIsTunnel(link netlink.Link) bool {
	switch link.Type() {
	case "wireguard", "tun":
		return true
	}
	name := link.Attrs().Name
	for _, prefix := range d.tunnelPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
