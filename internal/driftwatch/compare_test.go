package driftwatch

import (
	"reflect"
	"testing"

	"github.com/vpnfence/vpnfenced/internal/vpnclient"
)

func approvedSettings() vpnclient.Settings {
	return vpnclient.Settings{
		SplitTunnel: true,
		KillSwitch:  true,
		AppRules: []vpnclient.AppRule{
			{Name: "plex", Route: vpnclient.RouteBypass},
			{Name: "transmission", Route: vpnclient.RouteVPN},
		},
		BypassCIDRs: []string{"192.168.1.0/24", "10.0.0.0/8"},
	}
}

func TestCompare_IdenticalSettingsHaveNoDrift(t *testing.T) {
	d := Compare(approvedSettings(), approvedSettings())
	if !d.Empty() {
		t.Errorf("drift = %s, want none", d)
	}
}

func TestCompare_ReorderingIsNotDrift(t *testing.T) {
	got := approvedSettings()
	got.AppRules = []vpnclient.AppRule{
		{Name: "transmission", Route: vpnclient.RouteVPN},
		{Name: "plex", Route: vpnclient.RouteBypass},
	}
	got.BypassCIDRs = []string{"10.0.0.0/8", "192.168.1.0/24"}

	d := Compare(approvedSettings(), got)
	if !d.Empty() {
		t.Errorf("drift = %s, want none", d)
	}
}

func TestCompare_BooleanFlips(t *testing.T) {
	got := approvedSettings()
	got.SplitTunnel = false
	got.KillSwitch = false

	d := Compare(approvedSettings(), got)
	want := []FieldDrift{
		{Field: "split_tunnel", Want: "true", Got: "false"},
		{Field: "kill_switch", Want: "true", Got: "false"},
	}
	if !reflect.DeepEqual(d.Fields, want) {
		t.Errorf("Fields = %+v, want %+v", d.Fields, want)
	}
}

func TestCompare_RuleRouteChanged(t *testing.T) {
	got := approvedSettings()
	got.AppRules[1].Route = vpnclient.RouteBypass

	d := Compare(approvedSettings(), got)
	want := []FieldDrift{{Field: "app_rules.transmission", Want: "vpn", Got: "bypass"}}
	if !reflect.DeepEqual(d.Fields, want) {
		t.Errorf("Fields = %+v, want %+v", d.Fields, want)
	}
}

func TestCompare_RuleRemoved(t *testing.T) {
	got := approvedSettings()
	got.AppRules = got.AppRules[:1]

	d := Compare(approvedSettings(), got)
	want := []FieldDrift{{Field: "app_rules.transmission", Want: "vpn", Got: "absent"}}
	if !reflect.DeepEqual(d.Fields, want) {
		t.Errorf("Fields = %+v, want %+v", d.Fields, want)
	}
}

func TestCompare_RuleAdded(t *testing.T) {
	got := approvedSettings()
	got.AppRules = append(got.AppRules, vpnclient.AppRule{Name: "sshd", Route: vpnclient.RouteBypass})

	d := Compare(approvedSettings(), got)
	want := []FieldDrift{{Field: "app_rules.sshd", Want: "absent", Got: "bypass"}}
	if !reflect.DeepEqual(d.Fields, want) {
		t.Errorf("Fields = %+v, want %+v", d.Fields, want)
	}
}

func TestCompare_CIDRChanges(t *testing.T) {
	got := approvedSettings()
	got.BypassCIDRs = []string{"192.168.1.0/24", "172.16.0.0/12"}

	d := Compare(approvedSettings(), got)
	want := []FieldDrift{
		{Field: "bypass_cidrs", Want: "10.0.0.0/8", Got: "absent"},
		{Field: "bypass_cidrs", Want: "absent", Got: "172.16.0.0/12"},
	}
	if !reflect.DeepEqual(d.Fields, want) {
		t.Errorf("Fields = %+v, want %+v", d.Fields, want)
	}
}

func TestCompare_EmptyAgainstNilSlicesIsNoDrift(t *testing.T) {
	want := vpnclient.Settings{AppRules: []vpnclient.AppRule{}, BypassCIDRs: []string{}}
	got := vpnclient.Settings{}

	if d := Compare(want, got); !d.Empty() {
		t.Errorf("drift = %s, want none", d)
	}
}

func TestDrift_String(t *testing.T) {
	var d Drift
	if got := d.String(); got != "none" {
		t.Errorf("String() = %q, want %q", got, "none")
	}

	d.add("kill_switch", "true", "false")
	d.add("app_rules.plex", "bypass", "vpn")
	want := "kill_switch: want true, got false; app_rules.plex: want bypass, got vpn"
	if got := d.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
