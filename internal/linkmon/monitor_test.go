package linkmon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vpnfence/vpnfenced/internal/torrent"
	"github.com/vpnfence/vpnfenced/internal/tunnel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects the cross-mock event order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) indexOf(event string) int {
	for i, ev := range r.list() {
		if ev == event {
			return i
		}
	}
	return -1
}

type mockWatcher struct {
	mu   sync.Mutex
	snap tunnel.Snapshot
	err  error
}

func (w *mockWatcher) Snapshot(ctx context.Context) (tunnel.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap, w.err
}

func (w *mockWatcher) set(snap tunnel.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snap = snap
	w.err = nil
}

type mockSettings struct {
	rec *recorder

	mu       sync.Mutex
	addr     netip.Addr
	sticky   bool
	readErr  error
	writeErr error
}

func (s *mockSettings) BindAddress() (netip.Addr, error) {
	s.rec.add("settings.read")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return netip.Addr{}, s.readErr
	}
	return s.addr, nil
}

func (s *mockSettings) SetBindAddress(addr netip.Addr) error {
	s.rec.add("settings.write " + addr.String())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.sticky {
		s.addr = addr
	}
	return nil
}

func (s *mockSettings) current() netip.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

type mockProc struct {
	rec *recorder

	mu         sync.Mutex
	running    bool
	runErr     error
	startErr   error
	stopErr    error
	startCalls int
	stopCalls  int
	onStop     func()
}

func (p *mockProc) Running(ctx context.Context) (torrent.Handle, bool, error) {
	p.rec.add("proc.running")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.runErr != nil {
		return torrent.Handle{}, false, p.runErr
	}
	return torrent.Handle{PID: 4242}, p.running, nil
}

func (p *mockProc) Start(ctx context.Context) error {
	p.rec.add("proc.start")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startCalls++
	if p.startErr != nil {
		return p.startErr
	}
	p.running = true
	return nil
}

func (p *mockProc) Stop(ctx context.Context) error {
	p.rec.add("proc.stop")
	p.mu.Lock()
	hook := p.onStop
	p.stopCalls++
	if p.stopErr != nil {
		err := p.stopErr
		p.mu.Unlock()
		return err
	}
	p.running = false
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (p *mockProc) stats() (startCalls, stopCalls int, running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startCalls, p.stopCalls, p.running
}

func upSnapshot(addr string) tunnel.Snapshot {
	return tunnel.Snapshot{Interfaces: []tunnel.Interface{
		{Name: "wg0", Index: 7, Addr: netip.MustParseAddr(addr)},
	}}
}

func newTestMonitor(t *testing.T, watcher *mockWatcher, settings *mockSettings, proc *mockProc) *Monitor {
	t.Helper()
	m, err := NewMonitor(Config{PollInterval: 10 * time.Millisecond}, watcher, settings, proc, discardLogger())
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	return m
}

func TestMonitor_BindConfirmedBeforeLaunch(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: upSnapshot("10.8.0.2")}
	settings := &mockSettings{rec: rec, addr: netip.MustParseAddr("192.168.1.50"), sticky: true}
	proc := &mockProc{rec: rec}
	m := newTestMonitor(t, watcher, settings, proc)

	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}

	write := rec.indexOf("settings.write 10.8.0.2")
	start := rec.indexOf("proc.start")
	if write == -1 || start == -1 {
		t.Fatalf("missing write or start in events %v", rec.list())
	}
	if write > start {
		t.Errorf("bind write at %d after launch at %d: %v", write, start, rec.list())
	}
	if got := settings.current(); got != netip.MustParseAddr("10.8.0.2") {
		t.Errorf("bind address = %s, want 10.8.0.2", got)
	}
}

func TestMonitor_SteadyUpLeavesClientAlone(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: upSnapshot("10.8.0.2")}
	settings := &mockSettings{rec: rec, addr: netip.MustParseAddr("10.8.0.2"), sticky: true}
	proc := &mockProc{rec: rec, running: true}
	m := newTestMonitor(t, watcher, settings, proc)

	for i := 0; i < 3; i++ {
		if err := m.cycle(context.Background()); err != nil {
			t.Fatalf("cycle() error = %v", err)
		}
	}

	startCalls, stopCalls, _ := proc.stats()
	if startCalls != 0 || stopCalls != 0 {
		t.Errorf("start/stop calls = %d/%d, want 0/0", startCalls, stopCalls)
	}
	if idx := rec.indexOf("settings.write 10.8.0.2"); idx != -1 {
		t.Errorf("settings rewritten while already bound: %v", rec.list())
	}
}

func TestMonitor_RelaunchesCrashedClient(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: upSnapshot("10.8.0.2")}
	settings := &mockSettings{rec: rec, addr: netip.MustParseAddr("10.8.0.2"), sticky: true}
	proc := &mockProc{rec: rec, running: false}
	m := newTestMonitor(t, watcher, settings, proc)

	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}

	startCalls, _, running := proc.stats()
	if startCalls != 1 {
		t.Errorf("start calls = %d, want 1", startCalls)
	}
	if !running {
		t.Error("client not running after relaunch")
	}
}

func TestMonitor_StubbornWriteStopsClientFirst(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: upSnapshot("10.8.0.2")}
	// The write does not stick until the client is stopped, mimicking a
	// running client that rewrites its own settings file.
	settings := &mockSettings{rec: rec, addr: netip.MustParseAddr("192.168.1.50")}
	proc := &mockProc{rec: rec, running: true}
	proc.onStop = func() {
		settings.mu.Lock()
		settings.sticky = true
		settings.mu.Unlock()
	}
	m := newTestMonitor(t, watcher, settings, proc)

	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}

	stop := rec.indexOf("proc.stop")
	start := rec.indexOf("proc.start")
	if stop == -1 || start == -1 {
		t.Fatalf("missing stop or start in events %v", rec.list())
	}
	if stop > start {
		t.Errorf("stop at %d after start at %d: %v", stop, start, rec.list())
	}
	if got := settings.current(); got != netip.MustParseAddr("10.8.0.2") {
		t.Errorf("bind address = %s, want 10.8.0.2", got)
	}
}

func TestMonitor_AddressChangeRestartsClient(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: upSnapshot("10.8.0.2")}
	settings := &mockSettings{rec: rec, addr: netip.MustParseAddr("10.8.0.2"), sticky: true}
	proc := &mockProc{rec: rec, running: true}
	m := newTestMonitor(t, watcher, settings, proc)

	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}
	watcher.set(upSnapshot("10.8.0.9"))
	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}

	stop := rec.indexOf("proc.stop")
	write := rec.indexOf("settings.write 10.8.0.9")
	start := rec.indexOf("proc.start")
	if stop == -1 || write == -1 || start == -1 {
		t.Fatalf("missing stop/write/start in events %v", rec.list())
	}
	if !(stop < write && write < start) {
		t.Errorf("want stop < write < start, got %d/%d/%d: %v", stop, write, start, rec.list())
	}
	if got := settings.current(); got != netip.MustParseAddr("10.8.0.9") {
		t.Errorf("bind address = %s, want 10.8.0.9", got)
	}
}

func TestMonitor_TunnelLossStopsClient(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: upSnapshot("10.8.0.2")}
	settings := &mockSettings{rec: rec, addr: netip.MustParseAddr("10.8.0.2"), sticky: true}
	proc := &mockProc{rec: rec, running: true}
	m := newTestMonitor(t, watcher, settings, proc)

	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}
	watcher.set(tunnel.Snapshot{})
	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}

	_, stopCalls, running := proc.stats()
	if stopCalls != 1 {
		t.Errorf("stop calls = %d, want 1", stopCalls)
	}
	if running {
		t.Error("client still running with tunnel down")
	}
}

func TestMonitor_SteadyDownKeepsClientStopped(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: tunnel.Snapshot{}}
	settings := &mockSettings{rec: rec, sticky: true}
	// The client is running at monitor startup with no tunnel present,
	// as after a supervisor restart.
	proc := &mockProc{rec: rec, running: true}
	m := newTestMonitor(t, watcher, settings, proc)

	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}

	_, stopCalls, running := proc.stats()
	if stopCalls != 1 {
		t.Errorf("stop calls = %d, want 1", stopCalls)
	}
	if running {
		t.Error("client still running with tunnel down")
	}
}

func TestMonitor_UnstoppableClientIsFatal(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: upSnapshot("10.8.0.2")}
	settings := &mockSettings{rec: rec, addr: netip.MustParseAddr("10.8.0.2"), sticky: true}
	proc := &mockProc{rec: rec, running: true}
	m := newTestMonitor(t, watcher, settings, proc)

	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}

	proc.mu.Lock()
	proc.stopErr = fmt.Errorf("%w: transmission-daemon (pid 4242)", torrent.ErrStopTimeout)
	proc.mu.Unlock()
	watcher.set(tunnel.Snapshot{})

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(context.Background())
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, torrent.ErrStopTimeout) {
			t.Errorf("Run() error = %v, want ErrStopTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not exit on unstoppable client")
	}
}

func TestMonitor_TransientStopFailureRetries(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: tunnel.Snapshot{}}
	settings := &mockSettings{rec: rec, sticky: true}
	proc := &mockProc{rec: rec, running: true, stopErr: errors.New("process scan failed")}
	m := newTestMonitor(t, watcher, settings, proc)

	for i := 0; i < 3; i++ {
		if err := m.cycle(context.Background()); err != nil {
			t.Fatalf("cycle() error = %v", err)
		}
	}

	_, stopCalls, _ := proc.stats()
	if stopCalls != 3 {
		t.Errorf("stop calls = %d, want 3", stopCalls)
	}
}

func TestMonitor_LaunchFailureRetriesEveryPoll(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: upSnapshot("10.8.0.2")}
	settings := &mockSettings{rec: rec, addr: netip.MustParseAddr("10.8.0.2"), sticky: true}
	proc := &mockProc{rec: rec, startErr: errors.New("unit not found")}
	m := newTestMonitor(t, watcher, settings, proc)

	for i := 0; i < 3; i++ {
		if err := m.cycle(context.Background()); err != nil {
			t.Fatalf("cycle() error = %v", err)
		}
	}

	startCalls, _, _ := proc.stats()
	if startCalls != 3 {
		t.Errorf("start calls = %d, want 3", startCalls)
	}
}

func TestMonitor_SnapshotFailureIsTransient(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{err: errors.New("netlink: no such device")}
	settings := &mockSettings{rec: rec, sticky: true}
	proc := &mockProc{rec: rec}
	m := newTestMonitor(t, watcher, settings, proc)

	if err := m.cycle(context.Background()); err != nil {
		t.Fatalf("cycle() error = %v", err)
	}
	if events := rec.list(); len(events) != 0 {
		t.Errorf("unexpected client activity on snapshot failure: %v", events)
	}
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	watcher := &mockWatcher{snap: upSnapshot("10.8.0.2")}
	settings := &mockSettings{rec: rec, addr: netip.MustParseAddr("10.8.0.2"), sticky: true}
	proc := &mockProc{rec: rec, running: true}
	m := newTestMonitor(t, watcher, settings, proc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(ctx)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop on cancel")
	}
}

func TestNewMonitor_InvalidConfig(t *testing.T) {
	_, err := NewMonitor(Config{PollInterval: -time.Second}, &mockWatcher{}, &mockSettings{rec: &recorder{}}, &mockProc{rec: &recorder{}}, discardLogger())
	if err == nil {
		t.Fatal("NewMonitor() accepted negative poll interval")
	}
	want := "linkmon: config: PollInterval must be positive"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}
