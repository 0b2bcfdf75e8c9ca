//go:build !linux

package bypass

import (
	"errors"
	"log/slog"
)

// NewRuleController is unavailable on non-Linux platforms.
func NewRuleController(_ *slog.Logger) (RuleController, error) {
	return nil, errors.New("bypass: rule management requires linux")
}
