// Package ids defines the flat identifier types used throughout the
// fabric: network identifiers, process identifiers, and wire handles.
package ids

import (
	"fmt"
	"sync/atomic"
)

// NID is a 64-bit opaque network interface identifier.
type NID uint64

// NIDAny is the wildcard NID, matching any source or destination.
const NIDAny NID = 0

// A NID packs a network id into its upper 32 bits and a per-net address
// into its lower 32 bits, mirroring LNET_NIDNET/LNET_NIDADDR from
// original_source/lnet/include/lnet/nidstr.h. The matching engine and
// routing layer never interpret the address portion; only the net
// portion is used, to decide locality (§4.4) and to key the remote-net
// routing table.

// Net returns the network-id component of the NID (upper 32 bits).
func (n NID) Net() uint32 { return uint32(uint64(n) >> 32) }

// Addr returns the per-net address component of the NID (lower 32 bits).
func (n NID) Addr() uint32 { return uint32(n) }

// NewNID packs a (net, addr) pair into a NID.
func NewNID(net, addr uint32) NID {
	return NID(uint64(net)<<32 | uint64(addr))
}

// UserFlag marks a PID as belonging to a userspace process rather than
// the kernel/daemon itself.
const UserFlag uint32 = 1 << 31

// PID is a 32-bit process identifier within a NID. The high bit is the
// user/kernel flag; the remaining 31 bits are the process number.
type PID uint32

// PIDAny is the wildcard PID, matching any process.
const PIDAny PID = 0xffffffff

// IsUser reports whether the process is a userspace process.
func (p PID) IsUser() bool { return uint32(p)&UserFlag != 0 }

// Number returns the PID with the user flag bit stripped.
func (p PID) Number() uint32 { return uint32(p) &^ UserFlag }

func (p PID) String() string {
	if p == PIDAny {
		return "*"
	}
	if p.IsUser() {
		return fmt.Sprintf("U%d", p.Number())
	}
	return fmt.Sprintf("%d", p.Number())
}

func (n NID) String() string {
	if n == NIDAny {
		return "*"
	}
	return fmt.Sprintf("0x%x", uint64(n))
}

// ProcessID is the pair (NID, PID) naming a single process on the fabric.
type ProcessID struct {
	NID NID
	PID PID
}

func (p ProcessID) String() string {
	return fmt.Sprintf("%s/%s", p.NID, p.PID)
}

// Matches reports whether p satisfies a match-entry predicate nid/pid,
// where NIDAny/PIDAny act as wildcards on the predicate side.
func (p ProcessID) Matches(nid NID, pid PID) bool {
	if nid != NIDAny && nid != p.NID {
		return false
	}
	if pid != PIDAny && pid != p.PID {
		return false
	}
	return true
}

// CookieNone is the sentinel cookie value meaning "no handle".
const CookieNone uint64 = 0

// Handle is a wire handle: a pair of cookies identifying an object
// (MD, ME, ...) across nodes. Cookies are minted monotonically at
// allocation by the owning node.
type Handle struct {
	Interface uint64 // interface-cookie: identifies the allocating node incarnation
	Object    uint64 // object-cookie: identifies the specific object
}

// HandleNone is the sentinel handle meaning "no handle attached".
var HandleNone = Handle{Interface: CookieNone, Object: CookieNone}

// IsNone reports whether h is the sentinel "no handle" value.
func (h Handle) IsNone() bool {
	return h.Interface == CookieNone && h.Object == CookieNone
}

func (h Handle) String() string {
	if h.IsNone() {
		return "-"
	}
	return fmt.Sprintf("%x:%x", h.Interface, h.Object)
}

// CookieGenerator mints monotonically increasing object cookies for a
// single interface incarnation. Zero is skipped so CookieNone is never
// produced by Next. Safe for concurrent use.
type CookieGenerator struct {
	interfaceCookie uint64
	next            atomic.Uint64
}

// NewCookieGenerator returns a generator stamping handles with the given
// interface-cookie (typically a boot-time random or incrementing value).
func NewCookieGenerator(interfaceCookie uint64) *CookieGenerator {
	if interfaceCookie == CookieNone {
		interfaceCookie = 1
	}
	g := &CookieGenerator{interfaceCookie: interfaceCookie}
	g.next.Store(1)
	return g
}

// Next mints a new handle for an object.
func (g *CookieGenerator) Next() Handle {
	object := g.next.Add(1) - 1
	return Handle{Interface: g.interfaceCookie, Object: object}
}
