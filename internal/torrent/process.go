package torrent

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrStopTimeout is returned by Stop when the client process survives the
// full graceful-stop and SIGKILL escalation. Callers must not proceed as if
// the client were stopped.
var ErrStopTimeout = errors.New("torrent: process survived stop escalation")

// Handle identifies a live client process at the moment it was observed.
// A Handle is informational only: liveness is always established by a fresh
// process-table scan, never inferred from a previously returned Handle.
type Handle struct {
	PID       int32
	StartedAt time.Time
}

// procEntry is one process-table row relevant to supervision. The kill
// func sends SIGKILL to that PID.
type procEntry struct {
	pid     int32
	name    string
	created time.Time
	kill    func() error
}

// scanProcesses reads the live process table. Processes that exit mid-scan
// are skipped.
func scanProcesses(ctx context.Context) ([]procEntry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]procEntry, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		created, err := p.CreateTimeWithContext(ctx)
		if err != nil {
			created = 0
		}
		entries = append(entries, procEntry{
			pid:     p.Pid,
			name:    name,
			created: time.UnixMilli(created),
			kill:    p.Kill,
		})
	}
	return entries, nil
}
