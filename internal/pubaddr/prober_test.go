package pubaddr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSTUN struct {
	mu      sync.Mutex
	results map[string]MappedAddress
	locals  []netip.Addr
	calls   []string
}

func (m *mockSTUN) Bind(ctx context.Context, serverAddr string, local netip.Addr) (MappedAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, serverAddr)
	m.locals = append(m.locals, local)
	if addr, ok := m.results[serverAddr]; ok {
		return addr, nil
	}
	return MappedAddress{}, errors.New("stun: no response")
}

type mockEcho struct {
	mu      sync.Mutex
	results map[string]netip.Addr
	calls   []string
}

func (m *mockEcho) Fetch(ctx context.Context, url string, local netip.Addr) (netip.Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, url)
	if addr, ok := m.results[url]; ok {
		return addr, nil
	}
	return netip.Addr{}, errors.New("echo: no response")
}

func newTestProber(t *testing.T, stun *mockSTUN, echo *mockEcho) *MultiProber {
	t.Helper()
	cfg := Config{
		STUNServers: []string{"stun-a:3478", "stun-b:3478"},
		EchoURLs:    []string{"https://echo-a", "https://echo-b"},
		Timeout:     time.Second,
	}
	p, err := NewProber(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewProber: %v", err)
	}
	p.stun = stun
	p.echo = echo
	return p
}

func TestMultiProber_FirstSTUNServerWins(t *testing.T) {
	stun := &mockSTUN{results: map[string]MappedAddress{
		"stun-a:3478": {IP: net.IPv4(203, 0, 113, 9), Port: 41000},
	}}
	echo := &mockEcho{}
	p := newTestProber(t, stun, echo)

	addr, err := p.Probe(context.Background(), netip.MustParseAddr("192.168.1.50"))
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if want := netip.MustParseAddr("203.0.113.9"); addr != want {
		t.Errorf("addr = %s, want %s", addr, want)
	}
	if len(stun.calls) != 1 {
		t.Errorf("stun calls = %v, want one", stun.calls)
	}
	if len(echo.calls) != 0 {
		t.Errorf("echo consulted despite STUN success: %v", echo.calls)
	}
	if stun.locals[0] != netip.MustParseAddr("192.168.1.50") {
		t.Errorf("local addr = %s, want 192.168.1.50", stun.locals[0])
	}
}

func TestMultiProber_TriesServersInOrder(t *testing.T) {
	stun := &mockSTUN{results: map[string]MappedAddress{
		"stun-b:3478": {IP: net.IPv4(203, 0, 113, 9), Port: 41000},
	}}
	p := newTestProber(t, stun, &mockEcho{})

	if _, err := p.Probe(context.Background(), netip.Addr{}); err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	want := []string{"stun-a:3478", "stun-b:3478"}
	if len(stun.calls) != 2 || stun.calls[0] != want[0] || stun.calls[1] != want[1] {
		t.Errorf("stun calls = %v, want %v", stun.calls, want)
	}
}

func TestMultiProber_FallsBackToEcho(t *testing.T) {
	echo := &mockEcho{results: map[string]netip.Addr{
		"https://echo-b": netip.MustParseAddr("198.51.100.77"),
	}}
	p := newTestProber(t, &mockSTUN{}, echo)

	addr, err := p.Probe(context.Background(), netip.Addr{})
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if want := netip.MustParseAddr("198.51.100.77"); addr != want {
		t.Errorf("addr = %s, want %s", addr, want)
	}
	if len(echo.calls) != 2 {
		t.Errorf("echo calls = %v, want both tried", echo.calls)
	}
}

func TestMultiProber_AllSourcesFailed(t *testing.T) {
	p := newTestProber(t, &mockSTUN{}, &mockEcho{})

	_, err := p.Probe(context.Background(), netip.Addr{})
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("error = %v, want ErrNoResponse", err)
	}
}

func TestNewProber_RequiresAtLeastOneSource(t *testing.T) {
	cfg := Config{STUNServers: []string{}, EchoURLs: []string{}, Timeout: time.Second}
	_, err := NewProber(cfg, discardLogger())
	if err == nil {
		t.Fatal("NewProber accepted empty source lists")
	}
	want := "pubaddr: config: at least one STUN server or echo URL is required"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if len(cfg.STUNServers) == 0 || len(cfg.EchoURLs) == 0 {
		t.Errorf("defaults missing: stun=%v echo=%v", cfg.STUNServers, cfg.EchoURLs)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %s, want 5s", cfg.Timeout)
	}
}
