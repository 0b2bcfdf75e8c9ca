package torrent

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/vpnfence/vpnfenced/internal/fsutil"
)

// bindAddressKey is the settings key owned by vpnfence. Every other key in
// the file belongs to the client and is preserved verbatim.
const bindAddressKey = "bind-address-ipv4"

// SettingsFile reads and rewrites the client's settings.json.
type SettingsFile struct {
	path string
}

// NewSettingsFile returns a SettingsFile for the given path.
func NewSettingsFile(path string) *SettingsFile {
	return &SettingsFile{path: path}
}

// BindAddress returns the client's configured IPv4 bind address. A missing
// key or empty value returns the zero Addr with no error: the client is
// simply not pinned yet.
func (f *SettingsFile) BindAddress() (netip.Addr, error) {
	settings, err := f.load()
	if err != nil {
		return netip.Addr{}, err
	}

	raw, ok := settings[bindAddressKey]
	if !ok {
		return netip.Addr{}, nil
	}
	s, ok := raw.(string)
	if !ok {
		return netip.Addr{}, fmt.Errorf("torrent: settings: %s is not a string", bindAddressKey)
	}
	if s == "" {
		return netip.Addr{}, nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("torrent: settings: parse %s: %w", bindAddressKey, err)
	}
	return addr, nil
}

// SetBindAddress rewrites the settings file with the bind address set,
// leaving every other key untouched. The write is atomic so the client
// never observes a partial file.
func (f *SettingsFile) SetBindAddress(addr netip.Addr) error {
	settings, err := f.load()
	if err != nil {
		return err
	}

	settings[bindAddressKey] = addr.String()

	data, err := json.MarshalIndent(settings, "", "    ")
	if err != nil {
		return fmt.Errorf("torrent: settings: encode: %w", err)
	}
	data = append(data, '\n')

	if err := fsutil.WriteFileAtomic(filepath.Dir(f.path), filepath.Base(f.path), data, 0o600); err != nil {
		return fmt.Errorf("torrent: settings: write %s: %w", f.path, err)
	}
	return nil
}

func (f *SettingsFile) load() (map[string]any, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("torrent: settings: read %s: %w", f.path, err)
	}
	var settings map[string]any
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("torrent: settings: parse %s: %w", f.path, err)
	}
	return settings, nil
}
