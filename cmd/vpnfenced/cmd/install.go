package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vpnfence/vpnfenced/internal/packaging"
)

var (
	installMediaUID   int
	installVPNToken   string
	installMediaToken string
	installStart      bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the vpnfence monitors as systemd services",
	RunE:  runInstall,
}

func init() {
	installCmd.Flags().IntVar(&installMediaUID, "media-uid", 0, "unix uid the media server runs as")
	installCmd.Flags().StringVar(&installVPNToken, "vpn-token", "", "VPN client API token")
	installCmd.Flags().StringVar(&installMediaToken, "media-token", "", "media server API token")
	installCmd.Flags().BoolVar(&installStart, "start", false, "start the services after installing")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := packaging.InstallConfig{
		MediaServerUID: installMediaUID,
		VPNToken:       installVPNToken,
		MediaToken:     installMediaToken,
	}

	installer := packaging.NewInstaller(cfg, packaging.NewSystemdController(), packaging.NewRootChecker(), logger)

	if err := installer.Install(installStart); err != nil {
		return fmt.Errorf("vpnfenced install: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "vpnfence installed successfully")
	return nil
}
