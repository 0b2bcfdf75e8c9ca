package driftwatch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vpnfence/vpnfenced/internal/fsutil"
	"github.com/vpnfence/vpnfenced/internal/vpnclient"
)

// ErrNoReference is returned when no reference snapshot has been saved yet.
var ErrNoReference = errors.New("driftwatch: no reference snapshot")

// Reference is the operator-approved settings snapshot drift is measured
// against.
type Reference struct {
	// SavedAt records when the snapshot was taken.
	SavedAt time.Time `yaml:"saved_at"`

	// Settings is the approved configuration.
	Settings vpnclient.Settings `yaml:"settings"`
}

// LoadReference reads the reference snapshot at path.
func LoadReference(path string) (Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Reference{}, ErrNoReference
		}
		return Reference{}, fmt.Errorf("driftwatch: read reference: %w", err)
	}

	var ref Reference
	if err := yaml.Unmarshal(data, &ref); err != nil {
		return Reference{}, fmt.Errorf("driftwatch: parse reference %s: %w", path, err)
	}
	return ref, nil
}

// SaveReference atomically writes settings as the new reference snapshot,
// stamped with the current time.
func SaveReference(path string, settings vpnclient.Settings) error {
	ref := Reference{
		SavedAt:  time.Now().UTC(),
		Settings: settings,
	}
	data, err := yaml.Marshal(&ref)
	if err != nil {
		return fmt.Errorf("driftwatch: marshal reference: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("driftwatch: create state dir: %w", err)
	}
	if err := fsutil.WriteFileAtomic(dir, filepath.Base(path), data, 0o600); err != nil {
		return fmt.Errorf("driftwatch: write reference: %w", err)
	}
	return nil
}
