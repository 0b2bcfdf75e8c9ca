package driftwatch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Marker is the on-disk pause marker. Its presence alone suspends
// restoration; the file content is informational.
type Marker struct {
	path string
}

// NewMarker creates a marker at the given path.
func NewMarker(path string) *Marker {
	return &Marker{path: path}
}

// Path returns the marker file path.
func (m *Marker) Path() string {
	return m.path
}

// Present reports whether the marker file exists.
func (m *Marker) Present() (bool, error) {
	_, err := os.Stat(m.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("driftwatch: stat pause marker: %w", err)
}

// Set creates the marker file. The content records when restoration was
// paused, for operators inspecting the state directory.
func (m *Marker) Set() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("driftwatch: create state dir: %w", err)
	}
	content := "paused at " + time.Now().UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(m.path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("driftwatch: write pause marker: %w", err)
	}
	return nil
}

// Clear removes the marker file. A missing marker is not an error.
func (m *Marker) Clear() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("driftwatch: remove pause marker: %w", err)
	}
	return nil
}
