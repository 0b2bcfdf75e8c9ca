package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vpnfence/vpnfenced/internal/linkmon"
	"github.com/vpnfence/vpnfenced/internal/logging"
	"github.com/vpnfence/vpnfenced/internal/supervisor"
	"github.com/vpnfence/vpnfenced/internal/torrent"
	"github.com/vpnfence/vpnfenced/internal/tunnel"
)

var linkMonitorCmd = &cobra.Command{
	Use:   "link-monitor",
	Short: "Run the VPN link monitor",
	Long: "Run the VPN link monitor daemon. Polls the tunnel interface and keeps the\n" +
		"BitTorrent client bound to the tunnel address while the tunnel is up, and\n" +
		"stopped while it is down.",
	RunE: runLinkMonitor,
}

func init() {
	rootCmd.AddCommand(linkMonitorCmd)
}

func runLinkMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := supervisor.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("vpnfenced link-monitor: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, closeLogs, err := logging.New(cfg.Logging, "linkmon")
	if err != nil {
		return fmt.Errorf("vpnfenced link-monitor: %w", err)
	}
	defer func() { _ = closeLogs() }()

	logger.Info("starting link monitor", "version", buildVersion)

	watcher, err := tunnel.NewWatcher(cfg.Tunnel, logger)
	if err != nil {
		return fmt.Errorf("vpnfenced link-monitor: %w", err)
	}
	settings := torrent.NewSettingsFile(cfg.Torrent.SettingsPath)
	proc, err := torrent.NewServiceController(cfg.Torrent, logger)
	if err != nil {
		return fmt.Errorf("vpnfenced link-monitor: %w", err)
	}

	monitor, err := linkmon.NewMonitor(cfg.LinkMonitor, watcher, settings, proc, logger)
	if err != nil {
		return fmt.Errorf("vpnfenced link-monitor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := monitor.Run(ctx); err != nil {
		return fmt.Errorf("vpnfenced link-monitor: %w", err)
	}
	return nil
}
