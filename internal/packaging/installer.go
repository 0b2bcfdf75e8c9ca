package packaging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const maxTokenLength = 512

// Installer handles installing and uninstalling the vpnfence monitors as
// systemd services.
type Installer struct {
	cfg     InstallConfig
	systemd SystemdController
	root    RootChecker
	logger  *slog.Logger
}

// NewInstaller creates a new Installer with defaults applied.
func NewInstaller(cfg InstallConfig, systemd SystemdController, root RootChecker, logger *slog.Logger) *Installer {
	cfg.ApplyDefaults()
	return &Installer{
		cfg:     cfg,
		systemd: systemd,
		root:    root,
		logger:  logger.With("component", "packaging"),
	}
}

// Install installs the binary, directories, default configuration, and
// the three monitor units, then enables the units. With start set the
// units are also started immediately instead of waiting for a reboot.
func (ins *Installer) Install(start bool) error {
	// 1. Check root
	if !ins.root.IsRoot() {
		return errors.New("packaging: install requires root privileges")
	}

	// 2. Check systemd
	if !ins.systemd.IsAvailable() {
		return errors.New("packaging: systemd is not available")
	}

	// 3. Validate any tokens destined for the config file
	for _, token := range []string{ins.cfg.VPNToken, ins.cfg.MediaToken} {
		if err := validateToken(token); err != nil {
			return err
		}
	}

	// 4. Create directories
	dirs := []struct {
		path string
		perm os.FileMode
	}{
		{ins.cfg.ConfigDir, 0o755},
		{ins.cfg.StateDir, 0o700},
		{ins.cfg.LogDir, 0o755},
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d.path, d.perm); err != nil {
			return fmt.Errorf("packaging: create directory %s: %w", d.path, err)
		}
		ins.logger.Info("directory created", "path", d.path, "perm", fmt.Sprintf("%04o", d.perm))
	}

	// 5. Copy binary
	if err := ins.copyBinary(); err != nil {
		return err
	}

	// 6. Write default config if absent
	configPath := filepath.Join(ins.cfg.ConfigDir, "config.yaml")
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		content := GenerateDefaultConfig(ins.cfg)
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			return fmt.Errorf("packaging: write config: %w", err)
		}
		ins.logger.Info("default config written", "path", configPath)
	} else if err == nil {
		ins.logger.Info("existing config preserved", "path", configPath)
	} else {
		return fmt.Errorf("packaging: stat config: %w", err)
	}

	// 7. Write unit files
	if err := os.MkdirAll(ins.cfg.UnitDir, 0o755); err != nil {
		return fmt.Errorf("packaging: create unit file directory: %w", err)
	}
	for _, mon := range Monitors {
		unitPath := ins.cfg.UnitPath(mon)
		content := GenerateUnitFile(ins.cfg, mon)
		if err := os.WriteFile(unitPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("packaging: write unit file %s: %w", unitPath, err)
		}
		ins.logger.Info("unit file written", "path", unitPath)
	}

	// 8. Daemon reload
	if err := ins.systemd.DaemonReload(); err != nil {
		return fmt.Errorf("packaging: daemon-reload: %w", err)
	}
	ins.logger.Info("systemd daemon reloaded")

	// 9. Enable units
	for _, mon := range Monitors {
		name := ins.cfg.UnitName(mon)
		if err := ins.systemd.Enable(name); err != nil {
			return fmt.Errorf("packaging: enable %s: %w", name, err)
		}
		ins.logger.Info("service enabled", "unit", name)
	}

	// 10. Start units if requested
	if start {
		for _, mon := range Monitors {
			name := ins.cfg.UnitName(mon)
			if err := ins.systemd.Start(name); err != nil {
				return fmt.Errorf("packaging: start %s: %w", name, err)
			}
			ins.logger.Info("service started", "unit", name)
		}
	}

	return nil
}

// Uninstall removes the vpnfence systemd services. If purge is true, the
// state, config, and log directories are also removed.
func (ins *Installer) Uninstall(purge bool) error {
	// 1. Check root
	if !ins.root.IsRoot() {
		return errors.New("packaging: uninstall requires root privileges")
	}

	// 2. Check if installed (any unit file exists)
	installed := false
	for _, mon := range Monitors {
		if _, err := os.Stat(ins.cfg.UnitPath(mon)); err == nil {
			installed = true
			break
		}
	}
	if !installed {
		ins.logger.Info("vpnfence is not installed, nothing to do")
		return nil
	}

	// 3. Stop, disable, and remove each unit (ignore stop/disable errors —
	// a service may not be running or enabled)
	for _, mon := range Monitors {
		name := ins.cfg.UnitName(mon)
		if err := ins.systemd.Stop(name); err != nil {
			ins.logger.Info("stop service", "unit", name, "error", err)
		}
		if err := ins.systemd.Disable(name); err != nil {
			ins.logger.Info("disable service", "unit", name, "error", err)
		}
		unitPath := ins.cfg.UnitPath(mon)
		if err := os.Remove(unitPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("packaging: remove unit file %s: %w", unitPath, err)
		}
		ins.logger.Info("unit file removed", "path", unitPath)
	}

	// 4. Daemon reload
	if err := ins.systemd.DaemonReload(); err != nil {
		return fmt.Errorf("packaging: daemon-reload: %w", err)
	}

	// 5. Remove binary
	if err := os.Remove(ins.cfg.BinaryPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("packaging: remove binary: %w", err)
	}
	ins.logger.Info("binary removed", "path", ins.cfg.BinaryPath)

	// 6. Purge directories if requested
	if purge {
		for _, dir := range []string{ins.cfg.StateDir, ins.cfg.ConfigDir, ins.cfg.LogDir} {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("packaging: remove directory %s: %w", dir, err)
			}
			ins.logger.Info("directory removed", "path", dir)
		}
	}

	return nil
}

func (ins *Installer) copyBinary() error {
	srcPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("packaging: resolve executable path: %w", err)
	}

	// Resolve symlinks
	srcPath, err = filepath.EvalSymlinks(srcPath)
	if err != nil {
		return fmt.Errorf("packaging: resolve symlinks: %w", err)
	}

	dstPath := ins.cfg.BinaryPath

	// Skip if source and destination are the same
	if srcPath == dstPath {
		ins.logger.Info("binary already at install path, skipping copy", "path", dstPath)
		return nil
	}

	// Create parent directory if needed
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("packaging: create binary directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("packaging: open source binary: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("packaging: create destination binary: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("packaging: copy binary: %w", err)
	}

	ins.logger.Info("binary installed", "src", srcPath, "dst", dstPath)
	return nil
}

func validateToken(token string) error {
	if token == "" {
		return nil
	}
	if len(token) > maxTokenLength {
		return fmt.Errorf("packaging: token exceeds maximum length of %d bytes", maxTokenLength)
	}
	for i := 0; i < len(token); i++ {
		if token[i] < 0x20 || token[i] > 0x7E {
			return errors.New("packaging: token contains non-printable characters")
		}
	}
	return nil
}
