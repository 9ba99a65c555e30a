// Package router implements the remote-net routing table and gateway
// selection (§4.4): a destination network maps to an ordered list of
// gateway routes, and the best gateway is chosen under the ordering
// (hops ascending, queued bytes ascending, tx-credits descending)
// among peers currently alive.
package router

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lustre-net/lnetgo/pkg/ferrors"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/peer"
)

// Net is an opaque network identifier (the "net" component of a NID,
// e.g. tcp0, o2ib1). Routing keys on this rather than the raw NID.
type Net uint32

// Route is one gateway entry for a remote net.
type Route struct {
	Gateway *peer.Peer
	Hops    int
}

// entry is the routing table's per-net state: an ordered ring of
// routes plus a rotating footprint cursor for round-robin bias.
type entry struct {
	mu       sync.Mutex
	routes   []Route
	footprint int
}

// Table is the node's remote-net routing table. version is bumped on
// every structural change so callers can cheaply detect staleness of
// a cached gateway decision (§4.4: "on version change the lookup is
// redone").
type Table struct {
	mu      sync.RWMutex
	entries map[Net]*entry
	version atomic.Uint64

	group singleflight.Group
}

// New returns an empty routing table.
func New() *Table {
	return &Table{entries: make(map[Net]*entry)}
}

// Version returns the current routing-table generation.
func (t *Table) Version() uint64 {
	return t.version.Load()
}

// AddRoute registers a gateway for net, per the §6.5 add_route control
// operation.
func (t *Table) AddRoute(net Net, gw *peer.Peer, hops int) {
	t.mu.Lock()
	e, ok := t.entries[net]
	if !ok {
		e = &entry{}
		t.entries[net] = e
	}
	t.mu.Unlock()

	e.mu.Lock()
	e.routes = append(e.routes, Route{Gateway: gw, Hops: hops})
	e.mu.Unlock()

	t.version.Add(1)
}

// RouteInfo is one route entry as reported to the control surface.
type RouteInfo struct {
	Net       Net
	GatewayNID ids.NID
	Hops      int
	Alive     bool
}

// Snapshot lists every configured route, for the control surface's
// route-listing endpoint. It does not consult peer timeouts beyond
// Peer.Alive with the supplied now/peerTimeout, mirroring the
// liveness test SelectGateway itself uses.
func (t *Table) Snapshot(now time.Time, peerTimeout time.Duration) []RouteInfo {
	t.mu.RLock()
	nets := make([]Net, 0, len(t.entries))
	entries := make([]*entry, 0, len(t.entries))
	for net, e := range t.entries {
		nets = append(nets, net)
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	var out []RouteInfo
	for i, net := range nets {
		e := entries[i]
		e.mu.Lock()
		for _, r := range e.routes {
			out = append(out, RouteInfo{
				Net:        net,
				GatewayNID: r.Gateway.NID,
				Hops:       r.Hops,
				Alive:      r.Gateway.Alive(now, peerTimeout),
			})
		}
		e.mu.Unlock()
	}
	return out
}

// DelRoute removes the route to gw for net, per del_route.
func (t *Table) DelRoute(net Net, gw *peer.Peer) bool {
	t.mu.RLock()
	e, ok := t.entries[net]
	t.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.routes {
		if r.Gateway == gw {
			e.routes = append(e.routes[:i], e.routes[i+1:]...)
			t.version.Add(1)
			return true
		}
	}
	return false
}

// better reports whether a improves on b under the §4.4 ordering:
// fewer hops wins; ties broken by fewer queued bytes; ties broken by
// more tx-credits.
func better(a, b Route) bool {
	if a.Hops != b.Hops {
		return a.Hops < b.Hops
	}
	aq, bq := a.Gateway.QueuedBytes(), b.Gateway.QueuedBytes()
	if aq != bq {
		return aq < bq
	}
	return a.Gateway.TxCredits.Value() > b.Gateway.TxCredits.Value()
}

// SelectGateway walks the routes for net in reverse order (advancing
// the per-net footprint cursor for distribution) and returns the best
// eligible gateway: alive, and — if sourceNI is non-zero — bound to
// that local NI.
func (t *Table) SelectGateway(net Net, now time.Time, peerTimeout time.Duration, sourceNI ids.NID) (*peer.Peer, error) {
	t.mu.RLock()
	e, ok := t.entries[net]
	t.mu.RUnlock()
	if !ok {
		return nil, ferrors.NewUnreachable("no route to net")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.routes) == 0 {
		return nil, ferrors.NewUnreachable("no route to net")
	}

	var best *Route
	visited := 0
	for visited < len(e.routes) {
		idx := e.footprint
		e.footprint = (e.footprint - 1 + len(e.routes)) % len(e.routes)
		visited++

		r := e.routes[idx]
		if !r.Gateway.Alive(now, peerTimeout) {
			continue
		}
		if sourceNI != ids.NIDAny && r.Gateway.NI() != sourceNI {
			continue
		}
		if best == nil || better(r, *best) {
			rCopy := r
			best = &rCopy
		}
	}

	if best == nil {
		return nil, ferrors.NewUnreachable("no eligible gateway")
	}
	return best.Gateway, nil
}

// SelectGatewayCached behaves like SelectGateway but collapses
// concurrent lookups for the same net into a single walk via
// singleflight, matching the caching behavior described for gateway
// lookups once the routing-table version is stable.
func (t *Table) SelectGatewayCached(net Net, now time.Time, peerTimeout time.Duration, sourceNI ids.NID) (*peer.Peer, error) {
	key := netKey(net, sourceNI)
	v, err, _ := t.group.Do(key, func() (interface{}, error) {
		return t.SelectGateway(net, now, peerTimeout, sourceNI)
	})
	if err != nil {
		return nil, err
	}
	return v.(*peer.Peer), nil
}

func netKey(net Net, sourceNI ids.NID) string {
	return sourceNI.String() + "/" + strconv.FormatUint(uint64(net), 10)
}
