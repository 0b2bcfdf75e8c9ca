package cmd

import (
	"strings"
	"testing"
)

func TestDriftWatchdog_SaveReferenceAndPauseConflict(t *testing.T) {
	driftSaveReference = true
	driftPause = true
	t.Cleanup(func() {
		driftSaveReference = false
		driftPause = false
	})

	err := runDriftWatchdog(driftWatchdogCmd, nil)
	if err == nil {
		t.Fatal("expected error when --save-reference and --pause are combined")
	}
	if !strings.Contains(err.Error(), "cannot be combined") {
		t.Errorf("error = %v, want mention of flags that cannot be combined", err)
	}
}
