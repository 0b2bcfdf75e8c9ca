package linkmon

import (
	"net/netip"

	"github.com/vpnfence/vpnfenced/internal/tunnel"
)

// Phase describes whether a usable tunnel exists.
type Phase int

const (
	// PhaseDown means no tunnel interface with an address is present.
	PhaseDown Phase = iota
	// PhaseUp means a tunnel interface with an address is present.
	PhaseUp
)

// String returns the phase name.
func (p Phase) String() string {
	if p == PhaseUp {
		return "up"
	}
	return "down"
}

// State is the link state carried between consecutive polls.
type State struct {
	Phase Phase
	Iface string
	Addr  netip.Addr
}

// Transition classifies the change between two consecutive polls.
type Transition int

const (
	// TransitionNone means the phase, interface and address are unchanged.
	TransitionNone Transition = iota
	// TransitionUp means a tunnel appeared where there was none.
	TransitionUp
	// TransitionDown means the tunnel disappeared.
	TransitionDown
	// TransitionChanged means the tunnel is still up but on a different
	// interface or address.
	TransitionChanged
)

// String returns the transition name.
func (t Transition) String() string {
	switch t {
	case TransitionUp:
		return "up"
	case TransitionDown:
		return "down"
	case TransitionChanged:
		return "changed"
	default:
		return "none"
	}
}

// Next derives the state after a fresh snapshot and the transition that
// got there. It is a pure function of its inputs.
func Next(prev State, snap tunnel.Snapshot) (State, Transition) {
	active, ok := snap.Active()
	if !ok {
		next := State{Phase: PhaseDown}
		if prev.Phase == PhaseUp {
			return next, TransitionDown
		}
		return next, TransitionNone
	}

	next := State{Phase: PhaseUp, Iface: active.Name, Addr: active.Addr}
	if prev.Phase == PhaseDown {
		return next, TransitionUp
	}
	if prev.Iface != next.Iface || prev.Addr != next.Addr {
		return next, TransitionChanged
	}
	return next, TransitionNone
}
