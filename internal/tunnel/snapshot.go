package tunnel

import (
	"context"
	"net/netip"
	"sort"
)

// Interface describes one tunnel interface at poll time.
type Interface struct {
	// Name is the interface name (e.g. "wg0", "tun0").
	Name string

	// Index is the kernel interface index.
	Index int

	// Addr is the first global IPv4 address on the link. The zero Addr
	// means the link exists but carries no usable address.
	Addr netip.Addr
}

// HasAddr reports whether the interface carries a usable IPv4 address.
func (i Interface) HasAddr() bool {
	return i.Addr.IsValid() && !i.Addr.IsUnspecified()
}

// Snapshot is a point-in-time view of all tunnel interfaces on the host,
// sorted by ascending interface index.
type Snapshot struct {
	Interfaces []Interface
}

// Active returns the tunnel interface traffic should be bound to: the
// lowest-index interface carrying an address. Index ordering makes the
// choice deterministic when several tunnels are up at once.
func (s Snapshot) Active() (Interface, bool) {
	for _, iface := range s.Interfaces {
		if iface.HasAddr() {
			return iface, true
		}
	}
	return Interface{}, false
}

// Watcher takes tunnel interface snapshots.
type Watcher interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// sortInterfaces orders interfaces by ascending kernel index.
func sortInterfaces(ifaces []Interface) {
	sort.Slice(ifaces, func(a, b int) bool {
		return ifaces[a].Index < ifaces[b].Index
	})
}
