package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vpnfence/vpnfenced/internal/driftwatch"
	"github.com/vpnfence/vpnfenced/internal/logging"
	"github.com/vpnfence/vpnfenced/internal/supervisor"
	"github.com/vpnfence/vpnfenced/internal/vpnclient"
)

var (
	driftSaveReference bool
	driftPause         bool
)

var driftWatchdogCmd = &cobra.Command{
	Use:   "drift-watchdog",
	Short: "Run the VPN config drift watchdog",
	Long: "Run the config drift watchdog daemon. Polls the VPN client's settings and\n" +
		"restores them to the approved reference whenever they drift.\n\n" +
		"With --save-reference, captures the current settings as the new reference and\n" +
		"re-arms enforcement, then exits. With --pause, suspends restoration until the\n" +
		"next --save-reference, then exits.",
	RunE: runDriftWatchdog,
}

func init() {
	driftWatchdogCmd.Flags().BoolVar(&driftSaveReference, "save-reference", false, "snapshot current settings as the reference and exit")
	driftWatchdogCmd.Flags().BoolVar(&driftPause, "pause", false, "pause restoration until the next --save-reference and exit")
	rootCmd.AddCommand(driftWatchdogCmd)
}

func runDriftWatchdog(cmd *cobra.Command, _ []string) error {
	if driftSaveReference && driftPause {
		return errors.New("vpnfenced drift-watchdog: --save-reference and --pause cannot be combined")
	}

	cfg, err := supervisor.ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("vpnfenced drift-watchdog: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	// One-shot invocations log to stderr only; the daemon owns the log file.
	var logger *slog.Logger
	if driftSaveReference || driftPause {
		logger = logging.NewStderr(cfg.Logging.Level)
	} else {
		var closeLogs func() error
		logger, closeLogs, err = logging.New(cfg.Logging, "driftwatch")
		if err != nil {
			return fmt.Errorf("vpnfenced drift-watchdog: %w", err)
		}
		defer func() { _ = closeLogs() }()
	}

	client, err := vpnclient.NewClient(cfg.VPNClient, logger)
	if err != nil {
		return fmt.Errorf("vpnfenced drift-watchdog: %w", err)
	}
	marker := driftwatch.NewMarker(cfg.PausePath())

	watchdog, err := driftwatch.NewWatchdog(cfg.DriftWatch, client, cfg.ReferencePath(), marker, logger)
	if err != nil {
		return fmt.Errorf("vpnfenced drift-watchdog: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	switch {
	case driftSaveReference:
		if err := watchdog.SnapshotReference(ctx); err != nil {
			return fmt.Errorf("vpnfenced drift-watchdog: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "reference snapshot saved")
		return nil
	case driftPause:
		if err := watchdog.Pause(); err != nil {
			return fmt.Errorf("vpnfenced drift-watchdog: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "restoration paused until the next --save-reference")
		return nil
	}

	logger.Info("starting drift watchdog", "version", buildVersion)

	if err := watchdog.Run(ctx); err != nil {
		return fmt.Errorf("vpnfenced drift-watchdog: %w", err)
	}
	return nil
}
