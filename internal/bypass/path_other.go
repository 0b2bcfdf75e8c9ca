//go:build !linux

package bypass

import (
	"errors"
	"log/slog"
)

// NewPathDetector is unavailable on non-Linux platforms.
func NewPathDetector(_ []string, _ *slog.Logger) (PathDetector, error) {
	return nil, errors.New("bypass: path detection requires linux")
}
