package packaging

import (
	"fmt"
	"path/filepath"
)

// Monitor describes one of the vpnfence systemd services.
type Monitor struct {
	// Name is the short monitor name, used in the unit file name.
	Name string

	// Subcommand is the vpnfenced subcommand the unit runs.
	Subcommand string

	// Description is the unit's Description line.
	Description string

	// NetAdmin confines the service to CAP_NET_ADMIN. Monitors that
	// manage other services' processes and files run with full root
	// instead.
	NetAdmin bool
}

// Monitors lists the vpnfence services in install order.
var Monitors = []Monitor{
	{
		Name:        "linkmon",
		Subcommand:  "link-monitor",
		Description: "vpnfence VPN link monitor",
	},
	{
		Name:        "driftwatch",
		Subcommand:  "drift-watchdog",
		Description: "vpnfence config drift watchdog",
	},
	{
		Name:        "bypass",
		Subcommand:  "bypass-route",
		Description: "vpnfence bypass route daemon",
		NetAdmin:    true,
	},
}

// GenerateUnitFile produces a complete systemd unit file for one monitor.
// It calls cfg.ApplyDefaults() to fill in zero-valued fields before
// generating the output.
func GenerateUnitFile(cfg InstallConfig, mon Monitor) string {
	cfg.ApplyDefaults()

	configPath := filepath.Join(cfg.ConfigDir, "config.yaml")
	envPath := filepath.Join(cfg.ConfigDir, "environment")

	caps := ""
	if mon.NetAdmin {
		caps = "AmbientCapabilities=CAP_NET_ADMIN\nCapabilityBoundingSet=CAP_NET_ADMIN\n"
	}

	return fmt.Sprintf(`[Unit]
Description=%s
After=network-online.target
Wants=network-online.target
StartLimitBurst=5
StartLimitIntervalSec=60

[Service]
Type=simple
ExecStart=%s %s --config %s
Restart=always
RestartSec=5s
LimitNOFILE=65536
EnvironmentFile=-%s
%sProtectSystem=full
ProtectHome=true
ReadWritePaths=%s %s

[Install]
WantedBy=multi-user.target
`, mon.Description, cfg.BinaryPath, mon.Subcommand, configPath, envPath, caps, cfg.StateDir, cfg.LogDir)
}
