package driftwatch

import (
	"sort"
	"strconv"
	"strings"

	"github.com/vpnfence/vpnfenced/internal/vpnclient"
)

// FieldDrift describes one diverged field.
type FieldDrift struct {
	Field string
	Want  string
	Got   string
}

// Drift is the set of fields where live settings diverge from the
// reference. Fields are ordered deterministically.
type Drift struct {
	Fields []FieldDrift
}

// Empty reports whether no drift was found.
func (d Drift) Empty() bool {
	return len(d.Fields) == 0
}

// String renders the drift for logging.
func (d Drift) String() string {
	if d.Empty() {
		return "none"
	}
	parts := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		parts = append(parts, f.Field+": want "+f.Want+", got "+f.Got)
	}
	return strings.Join(parts, "; ")
}

func (d *Drift) add(field, want, got string) {
	d.Fields = append(d.Fields, FieldDrift{Field: field, Want: want, Got: got})
}

// Compare diffs live settings against the reference. App rules are
// matched by name and bypass subnets as a set, so reordering alone never
// counts as drift.
func Compare(want, got vpnclient.Settings) Drift {
	var d Drift
	if want.SplitTunnel != got.SplitTunnel {
		d.add("split_tunnel", strconv.FormatBool(want.SplitTunnel), strconv.FormatBool(got.SplitTunnel))
	}
	if want.KillSwitch != got.KillSwitch {
		d.add("kill_switch", strconv.FormatBool(want.KillSwitch), strconv.FormatBool(got.KillSwitch))
	}
	compareRules(&d, want.AppRules, got.AppRules)
	compareCIDRs(&d, want.BypassCIDRs, got.BypassCIDRs)
	return d
}

func compareRules(d *Drift, want, got []vpnclient.AppRule) {
	wantBy := rulesByName(want)
	gotBy := rulesByName(got)

	names := make([]string, 0, len(wantBy)+len(gotBy))
	for name := range wantBy {
		names = append(names, name)
	}
	for name := range gotBy {
		if _, exists := wantBy[name]; !exists {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		w, inWant := wantBy[name]
		g, inGot := gotBy[name]
		switch {
		case !inGot:
			d.add("app_rules."+name, w, "absent")
		case !inWant:
			d.add("app_rules."+name, "absent", g)
		case w != g:
			d.add("app_rules."+name, w, g)
		}
	}
}

func compareCIDRs(d *Drift, want, got []string) {
	wantSet := stringSet(want)
	gotSet := stringSet(got)

	cidrs := make([]string, 0, len(wantSet)+len(gotSet))
	for cidr := range wantSet {
		cidrs = append(cidrs, cidr)
	}
	for cidr := range gotSet {
		if _, exists := wantSet[cidr]; !exists {
			cidrs = append(cidrs, cidr)
		}
	}
	sort.Strings(cidrs)

	for _, cidr := range cidrs {
		_, inWant := wantSet[cidr]
		_, inGot := gotSet[cidr]
		switch {
		case inWant && !inGot:
			d.add("bypass_cidrs", cidr, "absent")
		case !inWant && inGot:
			d.add("bypass_cidrs", "absent", cidr)
		}
	}
}

// rulesByName indexes rules by application name. Duplicate names keep the
// last entry, matching how the VPN client resolves them.
func rulesByName(rules []vpnclient.AppRule) map[string]string {
	by := make(map[string]string, len(rules))
	for _, r := range rules {
		by[r.Name] = r.Route
	}
	return by
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
