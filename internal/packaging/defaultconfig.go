package packaging

import "fmt"

// GenerateDefaultConfig produces a starting config.yaml for vpnfence.
// Values not supplied at install time are written as placeholder comments
// for the operator to fill in.
func GenerateDefaultConfig(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	uidLine := "  # uid: 997  # unix user the media server runs as"
	if cfg.MediaServerUID > 0 {
		uidLine = fmt.Sprintf("  uid: %d", cfg.MediaServerUID)
	}

	vpnTokenLine := "  # token: your-vpn-api-token"
	if cfg.VPNToken != "" {
		vpnTokenLine = fmt.Sprintf("  token: %s", cfg.VPNToken)
	}

	mediaTokenLine := "  # token: your-media-api-token"
	if cfg.MediaToken != "" {
		mediaTokenLine = fmt.Sprintf("  token: %s", cfg.MediaToken)
	}

	return fmt.Sprintf(`# vpnfence configuration
# See documentation for all available options.

state_dir: %s

logging:
  dir: %s
  level: info

torrent:
  unit: transmission-daemon.service
  settings_path: /var/lib/transmission-daemon/info/settings.json

vpn_client:
  base_url: http://127.0.0.1:7867
%s

media_server:
  base_url: http://127.0.0.1:32400
%s

bypass:
%s
`, cfg.StateDir, cfg.LogDir, vpnTokenLine, mediaTokenLine, uidLine)
}
