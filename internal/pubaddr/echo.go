package pubaddr

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"
)

// maxEchoBody is the maximum number of bytes read from an echo response.
// A plain-text IPv4 address fits comfortably.
const maxEchoBody = 64

// EchoClient abstracts HTTPS address echo lookups for testability.
type EchoClient interface {
	Fetch(ctx context.Context, url string, local netip.Addr) (netip.Addr, error)
}

// HTTPEchoClient fetches the caller's public address from a plain-text
// HTTPS echo service, with the connection pinned to a local source
// address.
type HTTPEchoClient struct {
	Timeout time.Duration
}

// Fetch requests url from the given local address and parses the response
// body as an IPv4 address.
func (c *HTTPEchoClient) Fetch(ctx context.Context, url string, local netip.Addr) (netip.Addr, error) {
	dialer := &net.Dialer{Timeout: c.Timeout}
	if local.IsValid() {
		dialer.LocalAddr = &net.TCPAddr{IP: local.AsSlice()}
	}

	client := &http.Client{
		Timeout: c.Timeout,
		Transport: &http.Transport{
			DialContext:       dialer.DialContext,
			DisableKeepAlives: true,
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("pubaddr: echo: create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("pubaddr: echo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, fmt.Errorf("pubaddr: echo: %s returned HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEchoBody))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("pubaddr: echo: read body: %w", err)
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(string(body)))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("pubaddr: echo: parse %q: %w", strings.TrimSpace(string(body)), err)
	}
	addr = addr.Unmap()
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("pubaddr: echo: %s is not an IPv4 address", addr)
	}
	return addr, nil
}
