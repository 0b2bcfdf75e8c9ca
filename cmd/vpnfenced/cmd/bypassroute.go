package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vpnfence/vpnfenced/internal/bypass"
	"github.com/vpnfence/vpnfenced/internal/logging"
	"github.com/vpnfence/vpnfenced/internal/mediaserver"
	"github.com/vpnfence/vpnfenced/internal/pubaddr"
	"github.com/vpnfence/vpnfenced/internal/supervisor"
)

var bypassTeardown bool

var bypassRouteCmd = &cobra.Command{
	Use:   "bypass-route",
	Short: "Run the bypass route daemon",
	Long: "Run the bypass route daemon. Maintains the policy routes and firewall rules\n" +
		"that steer the media server's traffic out the physical interface instead of\n" +
		"the VPN tunnel, and keeps the server's advertised address pointed at the\n" +
		"physical path's public address.\n\n" +
		"With --teardown, removes the routes and rules and exits.",
	RunE: runBypassRoute,
}

func init() {
	bypassRouteCmd.Flags().BoolVar(&bypassTeardown, "teardown", false, "remove bypass routes and rules and exit")
	rootCmd.AddCommand(bypassRouteCmd)
}

func runBypassRoute(cmd *cobra.Command, _ []string) error {
	cfg, err := supervisor.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("vpnfenced bypass-route: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	var logger *slog.Logger
	if bypassTeardown {
		logger = logging.NewStderr(cfg.Logging.Level)
	} else {
		var closeLogs func() error
		logger, closeLogs, err = logging.New(cfg.Logging, "bypass")
		if err != nil {
			return fmt.Errorf("vpnfenced bypass-route: %w", err)
		}
		defer func() { _ = closeLogs() }()
	}

	detector, err := bypass.NewPathDetector(cfg.Tunnel.NamePrefixes, logger)
	if err != nil {
		return fmt.Errorf("vpnfenced bypass-route: %w", err)
	}
	rules, err := bypass.NewRuleController(logger)
	if err != nil {
		return fmt.Errorf("vpnfenced bypass-route: %w", err)
	}
	prober, err := pubaddr.NewProber(cfg.PubAddr, logger)
	if err != nil {
		return fmt.Errorf("vpnfenced bypass-route: %w", err)
	}
	media, err := mediaserver.NewClient(cfg.MediaServer, logger)
	if err != nil {
		return fmt.Errorf("vpnfenced bypass-route: %w", err)
	}

	daemon, err := bypass.NewDaemon(cfg.Bypass, detector, rules, prober, media, logger)
	if err != nil {
		return fmt.Errorf("vpnfenced bypass-route: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if bypassTeardown {
		if err := daemon.Teardown(ctx); err != nil {
			return fmt.Errorf("vpnfenced bypass-route: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "bypass routes and rules removed")
		return nil
	}

	logger.Info("starting bypass route daemon", "version", buildVersion)

	if err := daemon.Run(ctx); err != nil {
		return fmt.Errorf("vpnfenced bypass-route: %w", err)
	}
	return nil
}
