//go:build !linux

package tunnel

import (
	"errors"
	"log/slog"
)

// NewWatcher is unavailable on non-Linux platforms.
func NewWatcher(_ Config, _ *slog.Logger) (Watcher, error) {
	return nil, errors.New("tunnel: interface watcher requires linux")
}
