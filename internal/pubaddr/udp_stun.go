package pubaddr

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// STUNClient abstracts STUN binding operations for testability.
type STUNClient interface {
	Bind(ctx context.Context, serverAddr string, local netip.Addr) (MappedAddress, error)
}

// UDPSTUNClient performs STUN binding requests over UDP, bound to a
// specific local source address. Binding to the physical interface
// address proves the reply travelled outside the tunnel.
type UDPSTUNClient struct {
	Timeout time.Duration
}

// Bind sends a STUN Binding Request to serverAddr from the given local
// address and returns the mapped address from the response.
func (c *UDPSTUNClient) Bind(ctx context.Context, serverAddr string, local netip.Addr) (MappedAddress, error) {
	if err := ctx.Err(); err != nil {
		return MappedAddress{}, fmt.Errorf("pubaddr: udp stun: %w", err)
	}

	remoteAddr, err := net.ResolveUDPAddr("udp4", serverAddr)
	if err != nil {
		return MappedAddress{}, fmt.Errorf("pubaddr: udp stun: resolve: %w", err)
	}

	var localAddr net.UDPAddr
	if local.IsValid() {
		localAddr.IP = local.AsSlice()
	}
	conn, err := net.DialUDP("udp4", &localAddr, remoteAddr)
	if err != nil {
		return MappedAddress{}, fmt.Errorf("pubaddr: udp stun: dial: %w", err)
	}
	defer conn.Close()

	// Use the earlier of Timeout or context deadline.
	deadline := time.Now().Add(c.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return MappedAddress{}, fmt.Errorf("pubaddr: udp stun: set deadline: %w", err)
	}

	var txID [12]byte
	if _, err := rand.Read(txID[:]); err != nil {
		return MappedAddress{}, fmt.Errorf("pubaddr: udp stun: random tx id: %w", err)
	}

	req := buildBindingRequest(txID)
	if _, err := conn.Write(req); err != nil {
		return MappedAddress{}, fmt.Errorf("pubaddr: udp stun: write: %w", err)
	}

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return MappedAddress{}, fmt.Errorf("pubaddr: udp stun: read: %w", err)
	}

	addr, err := parseBindingResponse(buf[:n], txID)
	if err != nil {
		return MappedAddress{}, fmt.Errorf("pubaddr: udp stun: parse: %w", err)
	}

	return addr, nil
}
