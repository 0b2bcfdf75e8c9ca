package packaging

import (
	"strings"
	"testing"
)

func TestGenerateUnitFile_DefaultConfig(t *testing.T) {
	cfg := InstallConfig{}
	output := GenerateUnitFile(cfg, Monitors[0])

	// Check sections exist
	if !strings.Contains(output, "[Unit]") {
		t.Error("output missing [Unit] section")
	}
	if !strings.Contains(output, "[Service]") {
		t.Error("output missing [Service] section")
	}
	if !strings.Contains(output, "[Install]") {
		t.Error("output missing [Install] section")
	}

	// Check key directives
	if !strings.Contains(output, "Type=simple") {
		t.Error("output missing Type=simple")
	}
	if !strings.Contains(output, "After=network-online.target") {
		t.Error("output missing After=network-online.target")
	}
	if !strings.Contains(output, "Restart=always") {
		t.Error("output missing Restart=always")
	}
	if !strings.Contains(output, "RestartSec=5s") {
		t.Error("output missing RestartSec=5s")
	}
	if !strings.Contains(output, "WantedBy=multi-user.target") {
		t.Error("output missing WantedBy=multi-user.target")
	}
}

func TestGenerateUnitFile_ExecStartPerMonitor(t *testing.T) {
	cfg := InstallConfig{}

	tests := []struct {
		mon  Monitor
		want string
	}{
		{Monitors[0], "ExecStart=/usr/local/bin/vpnfenced link-monitor --config /etc/vpnfence/config.yaml"},
		{Monitors[1], "ExecStart=/usr/local/bin/vpnfenced drift-watchdog --config /etc/vpnfence/config.yaml"},
		{Monitors[2], "ExecStart=/usr/local/bin/vpnfenced bypass-route --config /etc/vpnfence/config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.mon.Name, func(t *testing.T) {
			output := GenerateUnitFile(cfg, tt.mon)
			if !strings.Contains(output, tt.want) {
				t.Errorf("output missing %q, got:\n%s", tt.want, output)
			}
			if !strings.Contains(output, "Description="+tt.mon.Description) {
				t.Errorf("output missing description %q", tt.mon.Description)
			}
		})
	}
}

func TestGenerateUnitFile_SecurityHardening(t *testing.T) {
	cfg := InstallConfig{}
	output := GenerateUnitFile(cfg, Monitors[0])

	if !strings.Contains(output, "ProtectSystem=full") {
		t.Error("output missing ProtectSystem=full")
	}
	if !strings.Contains(output, "ProtectHome=true") {
		t.Error("output missing ProtectHome=true")
	}
}

func TestGenerateUnitFile_CapabilityConfinement(t *testing.T) {
	cfg := InstallConfig{}

	// The bypass daemon only needs CAP_NET_ADMIN; the other monitors
	// manage foreign processes and files and run with full root.
	bypass := GenerateUnitFile(cfg, Monitors[2])
	if !strings.Contains(bypass, "AmbientCapabilities=CAP_NET_ADMIN") {
		t.Error("bypass unit missing AmbientCapabilities=CAP_NET_ADMIN")
	}
	if !strings.Contains(bypass, "CapabilityBoundingSet=CAP_NET_ADMIN") {
		t.Error("bypass unit missing CapabilityBoundingSet=CAP_NET_ADMIN")
	}

	linkmon := GenerateUnitFile(cfg, Monitors[0])
	if strings.Contains(linkmon, "CapabilityBoundingSet") {
		t.Error("linkmon unit unexpectedly confined")
	}
}

func TestGenerateUnitFile_EnvironmentFile(t *testing.T) {
	cfg := InstallConfig{}
	output := GenerateUnitFile(cfg, Monitors[0])

	if !strings.Contains(output, "EnvironmentFile=-/etc/vpnfence/environment") {
		t.Error("output missing EnvironmentFile=-/etc/vpnfence/environment")
	}
}

func TestGenerateUnitFile_CrashLoopProtection(t *testing.T) {
	cfg := InstallConfig{}
	output := GenerateUnitFile(cfg, Monitors[1])

	if !strings.Contains(output, "StartLimitBurst=5") {
		t.Error("output missing StartLimitBurst=5")
	}
	if !strings.Contains(output, "StartLimitIntervalSec=60") {
		t.Error("output missing StartLimitIntervalSec=60")
	}
}

func TestGenerateUnitFile_CustomPaths(t *testing.T) {
	cfg := InstallConfig{
		BinaryPath: "/opt/vpnfence/bin/vpnfenced",
		ConfigDir:  "/opt/vpnfence/etc",
		StateDir:   "/opt/vpnfence/state",
		LogDir:     "/opt/vpnfence/log",
	}
	output := GenerateUnitFile(cfg, Monitors[0])

	if !strings.Contains(output, "ExecStart=/opt/vpnfence/bin/vpnfenced link-monitor --config /opt/vpnfence/etc/config.yaml") {
		t.Errorf("output missing custom ExecStart with config path, got:\n%s", output)
	}
	if !strings.Contains(output, "EnvironmentFile=-/opt/vpnfence/etc/environment") {
		t.Errorf("output missing custom EnvironmentFile, got:\n%s", output)
	}
	if !strings.Contains(output, "ReadWritePaths=/opt/vpnfence/state /opt/vpnfence/log") {
		t.Errorf("output missing custom ReadWritePaths, got:\n%s", output)
	}
}
