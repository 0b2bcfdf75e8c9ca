package bypass

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
)

// ErrNoPhysicalPath is returned when no non-tunnel default route exists.
var ErrNoPhysicalPath = errors.New("bypass: no physical default route found")

// Path describes the physical egress path: the non-tunnel interface
// carrying the default route, its address and subnet, and the LAN
// gateway.
type Path struct {
	Iface   string
	Addr    netip.Addr
	Subnet  netip.Prefix
	Gateway netip.Addr
}

// String returns a short description for logging.
func (p Path) String() string {
	return fmt.Sprintf("%s %s via %s", p.Iface, p.Addr, p.Gateway)
}

// PathDetector discovers the physical egress path.
type PathDetector interface {
	Detect(ctx context.Context) (Path, error)
}

// RuleSet is the complete owned policy-routing region: which traffic is
// steered (UID, Mark), where it goes (Iface, Gateway, route table), and
// how the lookup is wired in (rule priority). Two rule sets are compared
// with ==.
type RuleSet struct {
	Iface    string
	Addr     netip.Addr
	Subnet   netip.Prefix
	Gateway  netip.Addr
	UID      uint32
	Mark     uint32
	Table    int
	Priority int
}

// String returns a short description for logging.
func (r RuleSet) String() string {
	return fmt.Sprintf("uid %d mark %#x via %s table %d", r.UID, r.Mark, r.Iface, r.Table)
}

// RuleController owns the bypass artifacts in the kernel: the fwmark
// nftables rules, the ip rule, and the bypass route table.
type RuleController interface {
	// Intact reports whether the owned region exactly matches want.
	Intact(ctx context.Context, want RuleSet) (bool, error)

	// Apply converges the owned region onto want, replacing anything
	// stale. It never touches routes, rules, or tables outside the
	// region.
	Apply(ctx context.Context, want RuleSet) error

	// Remove tears the owned region down. Idempotent.
	Remove(ctx context.Context, want RuleSet) error
}
