package logging

import (
	"context"
	"errors"
	"log/slog"
)

// FanoutHandler is a slog.Handler that forwards every record to a set of
// child handlers. A record is delivered to each child whose own level
// enables it; errors from children are joined rather than short-circuiting,
// so a full disk never silences stderr.
type FanoutHandler struct {
	handlers []slog.Handler
}

// NewFanoutHandler returns a FanoutHandler over the given child handlers.
func NewFanoutHandler(handlers ...slog.Handler) *FanoutHandler {
	return &FanoutHandler{handlers: handlers}
}

// Enabled reports whether any child handler would accept a record at the
// given level.
func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, child := range h.handlers {
		if child.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards the record to every enabled child handler.
func (h *FanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, child := range h.handlers {
		if !child.Enabled(ctx, record.Level) {
			continue
		}
		if err := child.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithAttrs returns a new FanoutHandler whose children all carry the attrs.
func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	children := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		children[i] = child.WithAttrs(attrs)
	}
	return &FanoutHandler{handlers: children}
}

// WithGroup returns a new FanoutHandler whose children all open the group.
func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	children := make([]slog.Handler, len(h.handlers))
	for i, child := range h.handlers {
		children[i] = child.WithGroup(name)
	}
	return &FanoutHandler{handlers: children}
}
