package vpnclient

// RouteVPN and RouteBypass are the per-application routing modes the VPN
// client supports.
const (
	RouteVPN    = "vpn"
	RouteBypass = "bypass"
)

// AppRule is one per-application routing rule.
type AppRule struct {
	// Name is the application identifier the VPN client matches on.
	Name string `json:"name" yaml:"name"`

	// Route is the routing mode for the application, RouteVPN or
	// RouteBypass.
	Route string `json:"route" yaml:"route"`
}

// Settings is the enforcement-relevant slice of the VPN client's
// configuration. Fields the supervisor does not enforce are not carried
// here and are never touched on restore.
type Settings struct {
	// SplitTunnel reports whether split tunneling is enabled.
	SplitTunnel bool `json:"split_tunnel" yaml:"split_tunnel"`

	// KillSwitch reports whether the kill switch is enabled.
	KillSwitch bool `json:"kill_switch" yaml:"kill_switch"`

	// AppRules are the per-application routing rules.
	AppRules []AppRule `json:"app_rules" yaml:"app_rules"`

	// BypassCIDRs are subnets excluded from the tunnel.
	BypassCIDRs []string `json:"bypass_cidrs" yaml:"bypass_cidrs"`
}

// Clone returns a deep copy of the settings.
func (s Settings) Clone() Settings {
	out := s
	if s.AppRules != nil {
		out.AppRules = make([]AppRule, len(s.AppRules))
		copy(out.AppRules, s.AppRules)
	}
	if s.BypassCIDRs != nil {
		out.BypassCIDRs = make([]string, len(s.BypassCIDRs))
		copy(out.BypassCIDRs, s.BypassCIDRs)
	}
	return out
}
