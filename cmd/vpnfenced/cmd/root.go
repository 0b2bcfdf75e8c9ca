// Package cmd implements the vpnfenced CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vpnfence/vpnfenced/internal/supervisor"
)

var (
	cfgFile  string
	logLevel string
)

// Build info set from main.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// SetVersionInfo sets the version info from build-time ldflags.
func SetVersionInfo(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("vpnfenced version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

var rootCmd = &cobra.Command{
	Use:   "vpnfenced",
	Short: "vpnfenced is the VPN enforcement supervisor",
	Long: "vpnfenced is a set of supervisors for a host whose traffic must stay inside a\n" +
		"VPN tunnel. It keeps a BitTorrent client bound to the tunnel address and stopped\n" +
		"while the tunnel is down, restores VPN client settings when they drift from an\n" +
		"approved reference, and maintains policy routes that steer a media server around\n" +
		"the tunnel so remote streaming stays reachable.",
	// No Run function — prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", supervisor.DefaultConfigPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.Version = buildVersion
	rootCmd.SetVersionTemplate(fmt.Sprintf("vpnfenced version {{.Version}}\ncommit: %s\nbuilt: %s\n", buildCommit, buildDate))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
