//go:build linux

package bypass

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"syscall"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"github.com/vishvananda/netlink"
)

// nftTableName is the nftables table owned by the bypass daemon. Nothing
// outside this table is ever touched.
const nftTableName = "vpnfence-bypass"

// Chains within the owned table.
const (
	nftChainOutput      = "output"
	nftChainPostrouting = "postrouting"
)

// NetlinkRuleController implements RuleController with netlink for routes
// and ip rules and nftables for packet marking and masquerade.
type NetlinkRuleController struct {
	logger *slog.Logger
}

// NewRuleController returns the Linux rule controller.
func NewRuleController(logger *slog.Logger) (RuleController, error) {
	return &NetlinkRuleController{logger: logger.With("component", "bypass")}, nil
}

// Apply converges the owned region in three layers, routes first so that
// marked packets always find a path the moment marking begins.
func (c *NetlinkRuleController) Apply(ctx context.Context, want RuleSet) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bypass: apply: %w", err)
	}

	if err := c.applyRoutes(want); err != nil {
		return err
	}
	if err := c.applyRule(want); err != nil {
		return err
	}
	if err := c.applyNFT(want); err != nil {
		return err
	}

	c.logger.Debug("bypass rules applied", "rules", want.String())
	return nil
}

// applyRoutes repopulates the owned route table: the LAN subnet on the
// physical link plus a default route via the LAN gateway. The table is
// owned outright, so anything else in it is dropped first and a path
// change never leaves stale routes behind.
func (c *NetlinkRuleController) applyRoutes(want RuleSet) error {
	link, err := netlink.LinkByName(want.Iface)
	if err != nil {
		return fmt.Errorf("bypass: apply routes: lookup interface %q: %w", want.Iface, err)
	}

	if err := c.flushTable(want.Table); err != nil {
		return err
	}

	subnet := &net.IPNet{
		IP:   want.Subnet.Masked().Addr().AsSlice(),
		Mask: net.CIDRMask(want.Subnet.Bits(), 32),
	}
	routes := []*netlink.Route{
		{
			Dst:       subnet,
			LinkIndex: link.Attrs().Index,
			Scope:     netlink.SCOPE_LINK,
			Table:     want.Table,
		},
		{
			Gw:        net.IP(want.Gateway.AsSlice()),
			LinkIndex: link.Attrs().Index,
			Table:     want.Table,
		},
	}
	for _, route := range routes {
		if err := netlink.RouteAdd(route); err != nil && !errors.Is(err, syscall.EEXIST) {
			return fmt.Errorf("bypass: add route %v table %d: %w", route.Dst, want.Table, err)
		}
	}
	return nil
}

// flushTable removes every route from the owned table.
// Idempotent: an empty table is a no-op.
func (c *NetlinkRuleController) flushTable(table int) error {
	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4,
		&netlink.Route{Table: table}, netlink.RT_FILTER_TABLE)
	if err != nil {
		return fmt.Errorf("bypass: list routes in table %d: %w", table, err)
	}
	for i := range routes {
		if err := netlink.RouteDel(&routes[i]); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("bypass: flush route table %d: %w", table, err)
		}
	}
	return nil
}

// applyRule wires the fwmark lookup in front of the main table. Any other
// rule squatting on the owned priority is cleared first.
func (c *NetlinkRuleController) applyRule(want RuleSet) error {
	existing, err := netlink.RuleList(netlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("bypass: list ip rules: %w", err)
	}
	for i := range existing {
		r := existing[i]
		if r.Priority != want.Priority {
			continue
		}
		if r.Mark == want.Mark && r.Table == want.Table {
			return nil
		}
		r.Family = netlink.FAMILY_V4
		if err := netlink.RuleDel(&r); err != nil && !errors.Is(err, syscall.ENOENT) {
			return fmt.Errorf("bypass: remove stale ip rule at priority %d: %w", want.Priority, err)
		}
	}

	rule := netlink.NewRule()
	rule.Family = netlink.FAMILY_V4
	rule.Priority = want.Priority
	rule.Mark = want.Mark
	rule.Table = want.Table
	if err := netlink.RuleAdd(rule); err != nil && !errors.Is(err, syscall.EEXIST) {
		return fmt.Errorf("bypass: add ip rule priority %d: %w", want.Priority, err)
	}
	return nil
}

// applyNFT rebuilds the owned nftables table in one atomic batch: an
// output route chain marking the media server's packets and a postrouting
// chain masquerading them onto the physical address.
func (c *NetlinkRuleController) applyNFT(want RuleSet) error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("bypass: apply nftables: %w", err)
	}

	table := conn.AddTable(&nftables.Table{
		Family: nftables.TableFamilyIPv4,
		Name:   nftTableName,
	})

	output := conn.AddChain(&nftables.Chain{
		Name:     nftChainOutput,
		Table:    table,
		Type:     nftables.ChainTypeRoute,
		Hooknum:  nftables.ChainHookOutput,
		Priority: nftables.ChainPriorityMangle,
	})
	conn.FlushChain(output)

	// nft equivalent: meta skuid <uid> counter meta mark set <mark>
	conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: output,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeySKUID, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     binaryutil.NativeEndian.PutUint32(want.UID),
			},
			&expr.Counter{},
			&expr.Immediate{Register: 1, Data: binaryutil.NativeEndian.PutUint32(want.Mark)},
			&expr.Meta{Key: expr.MetaKeyMARK, Register: 1, SourceRegister: true},
		},
	})

	post := conn.AddChain(&nftables.Chain{
		Name:     nftChainPostrouting,
		Table:    table,
		Type:     nftables.ChainTypeNAT,
		Hooknum:  nftables.ChainHookPostrouting,
		Priority: nftables.ChainPriorityNATSource,
	})
	conn.FlushChain(post)

	// nft equivalent: meta mark <mark> oifname <iface> counter masquerade
	conn.AddRule(&nftables.Rule{
		Table: table,
		Chain: post,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeyMARK, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     binaryutil.NativeEndian.PutUint32(want.Mark),
			},
			&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
			&expr.Cmp{
				Op:       expr.CmpOpEq,
				Register: 1,
				Data:     ifaceNameBytes(want.Iface),
			},
			&expr.Counter{},
			&expr.Masq{},
		},
	})

	if err := conn.Flush(); err != nil {
		return fmt.Errorf("bypass: apply nftables: %w", err)
	}
	return nil
}

// Intact verifies all three layers without modifying anything.
func (c *NetlinkRuleController) Intact(ctx context.Context, want RuleSet) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("bypass: verify: %w", err)
	}

	ok, err := c.routesIntact(want)
	if err != nil || !ok {
		return ok, err
	}
	ok, err = c.ruleIntact(want)
	if err != nil || !ok {
		return ok, err
	}
	return c.nftIntact(want)
}

func (c *NetlinkRuleController) routesIntact(want RuleSet) (bool, error) {
	link, err := netlink.LinkByName(want.Iface)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("bypass: verify routes: lookup interface %q: %w", want.Iface, err)
	}
	index := link.Attrs().Index

	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4,
		&netlink.Route{Table: want.Table}, netlink.RT_FILTER_TABLE)
	if err != nil {
		return false, fmt.Errorf("bypass: verify routes: %w", err)
	}

	var haveSubnet, haveDefault bool
	for i := range routes {
		route := &routes[i]
		if route.LinkIndex != index {
			continue
		}
		if isDefaultRoute(route) {
			if route.Gw != nil && route.Gw.Equal(net.IP(want.Gateway.AsSlice())) {
				haveDefault = true
			}
			continue
		}
		if route.Dst != nil && routeDstEquals(route.Dst, want.Subnet) {
			haveSubnet = true
		}
	}
	return haveSubnet && haveDefault, nil
}

func routeDstEquals(dst *net.IPNet, prefix netip.Prefix) bool {
	ones, _ := dst.Mask.Size()
	if ones != prefix.Bits() {
		return false
	}
	ip, ok := netip.AddrFromSlice(dst.IP.To4())
	if !ok {
		return false
	}
	return ip == prefix.Masked().Addr()
}

func (c *NetlinkRuleController) ruleIntact(want RuleSet) (bool, error) {
	rules, err := netlink.RuleList(netlink.FAMILY_V4)
	if err != nil {
		return false, fmt.Errorf("bypass: verify ip rules: %w", err)
	}
	for _, r := range rules {
		if r.Priority == want.Priority && r.Mark == want.Mark && r.Table == want.Table {
			return true, nil
		}
	}
	return false, nil
}

func (c *NetlinkRuleController) nftIntact(want RuleSet) (bool, error) {
	conn, err := nftables.New()
	if err != nil {
		return false, fmt.Errorf("bypass: verify nftables: %w", err)
	}

	table, err := findTable(conn)
	if err != nil {
		return false, err
	}
	if table == nil {
		return false, nil
	}

	chains, err := conn.ListChainsOfTableFamily(nftables.TableFamilyIPv4)
	if err != nil {
		return false, fmt.Errorf("bypass: list nftables chains: %w", err)
	}
	var output, post *nftables.Chain
	for _, ch := range chains {
		if ch.Table.Name != nftTableName {
			continue
		}
		switch ch.Name {
		case nftChainOutput:
			output = ch
		case nftChainPostrouting:
			post = ch
		}
	}
	if output == nil || post == nil {
		return false, nil
	}

	outputRules, err := conn.GetRules(table, output)
	if err != nil {
		return false, fmt.Errorf("bypass: get output chain rules: %w", err)
	}
	if !anyRuleMarksUID(outputRules, want.UID, want.Mark) {
		return false, nil
	}

	postRules, err := conn.GetRules(table, post)
	if err != nil {
		return false, fmt.Errorf("bypass: get postrouting chain rules: %w", err)
	}
	return anyRuleMasqueradesMark(postRules, want.Mark, want.Iface), nil
}

// Remove tears down the owned region: the nftables table first so marking
// stops, then the ip rule, then the route table.
func (c *NetlinkRuleController) Remove(ctx context.Context, want RuleSet) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("bypass: remove: %w", err)
	}

	if err := c.removeNFT(); err != nil {
		return err
	}
	if err := c.removeRule(want); err != nil {
		return err
	}
	if err := c.flushTable(want.Table); err != nil {
		return err
	}

	c.logger.Info("bypass rules removed")
	return nil
}

// removeNFT deletes the owned nftables table.
// Idempotent: a missing table returns nil.
func (c *NetlinkRuleController) removeNFT() error {
	conn, err := nftables.New()
	if err != nil {
		return fmt.Errorf("bypass: remove nftables: %w", err)
	}

	table, err := findTable(conn)
	if err != nil {
		return err
	}
	if table == nil {
		return nil
	}

	conn.DelTable(table)
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("bypass: remove nftables table: %w", err)
	}
	return nil
}

// removeRule deletes every ip rule at the owned priority.
// Idempotent: no rule at the priority is a no-op.
func (c *NetlinkRuleController) removeRule(want RuleSet) error {
	rules, err := netlink.RuleList(netlink.FAMILY_V4)
	if err != nil {
		return fmt.Errorf("bypass: list ip rules: %w", err)
	}
	for i := range rules {
		r := rules[i]
		if r.Priority != want.Priority {
			continue
		}
		r.Family = netlink.FAMILY_V4
		if err := netlink.RuleDel(&r); err != nil && !errors.Is(err, syscall.ENOENT) {
			return fmt.Errorf("bypass: remove ip rule priority %d: %w", want.Priority, err)
		}
	}
	return nil
}

// findTable returns the owned nftables table, or nil when it does not
// exist.
func findTable(conn *nftables.Conn) (*nftables.Table, error) {
	tables, err := conn.ListTablesOfFamily(nftables.TableFamilyIPv4)
	if err != nil {
		return nil, fmt.Errorf("bypass: list nftables tables: %w", err)
	}
	for _, t := range tables {
		if t.Name == nftTableName {
			return t, nil
		}
	}
	return nil, nil
}

// anyRuleMarksUID reports whether any rule compares skuid against uid and
// sets the packet mark to mark.
func anyRuleMarksUID(rules []*nftables.Rule, uid, mark uint32) bool {
	for _, r := range rules {
		if ruleMarksUID(r.Exprs, uid, mark) {
			return true
		}
	}
	return false
}

func ruleMarksUID(exprs []expr.Any, uid, mark uint32) bool {
	var prevMeta *expr.Meta
	var lastImmediate []byte
	var uidMatched, markSet bool

	for _, e := range exprs {
		switch v := e.(type) {
		case *expr.Meta:
			if v.SourceRegister {
				if v.Key == expr.MetaKeyMARK && lastImmediate != nil &&
					binaryutil.NativeEndian.Uint32(lastImmediate) == mark {
					markSet = true
				}
				continue
			}
			prevMeta = v
		case *expr.Cmp:
			if prevMeta != nil && prevMeta.Key == expr.MetaKeySKUID &&
				len(v.Data) == 4 && binaryutil.NativeEndian.Uint32(v.Data) == uid {
				uidMatched = true
			}
		case *expr.Immediate:
			if len(v.Data) == 4 {
				lastImmediate = v.Data
			}
		}
	}
	return uidMatched && markSet
}

// anyRuleMasqueradesMark reports whether any rule masquerades traffic
// carrying mark out of iface.
func anyRuleMasqueradesMark(rules []*nftables.Rule, mark uint32, iface string) bool {
	for _, r := range rules {
		if ruleMasqueradesMark(r.Exprs, mark, iface) {
			return true
		}
	}
	return false
}

func ruleMasqueradesMark(exprs []expr.Any, mark uint32, iface string) bool {
	var prevMeta *expr.Meta
	var markMatched, ifaceMatched, masq bool

	for _, e := range exprs {
		switch v := e.(type) {
		case *expr.Meta:
			if !v.SourceRegister {
				prevMeta = v
			}
		case *expr.Cmp:
			if prevMeta == nil {
				continue
			}
			switch prevMeta.Key {
			case expr.MetaKeyMARK:
				if len(v.Data) == 4 && binaryutil.NativeEndian.Uint32(v.Data) == mark {
					markMatched = true
				}
			case expr.MetaKeyOIFNAME:
				if string(bytes.TrimRight(v.Data, "\x00")) == iface {
					ifaceMatched = true
				}
			}
		case *expr.Masq:
			masq = true
		}
	}
	return markMatched && ifaceMatched && masq
}

// ifaceNameBytes returns the interface name as a null-terminated byte
// slice for nftables expression matching.
func ifaceNameBytes(name string) []byte {
	buf := make([]byte, len(name)+1)
	copy(buf, name)
	return buf
}
