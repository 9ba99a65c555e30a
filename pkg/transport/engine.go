// Package transport implements the transport core (§2 "Transport core",
// §4.3, §4.4): the RECV path (driver -> parse -> match -> commit ->
// schedule receive -> finalize) and the SEND path (select source NI and
// next hop -> charge credits -> driver send -> finalize), wiring
// pkg/portal, pkg/credit, pkg/peer, pkg/router, pkg/ni, pkg/message and
// pkg/bufpool into the single engine a node runs.
package transport

import (
	"sync"
	"time"

	"github.com/lustre-net/lnetgo/internal/logger"
	"github.com/lustre-net/lnetgo/pkg/bufpool"
	"github.com/lustre-net/lnetgo/pkg/ferrors"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/message"
	"github.com/lustre-net/lnetgo/pkg/metrics"
	"github.com/lustre-net/lnetgo/pkg/ni"
	"github.com/lustre-net/lnetgo/pkg/peer"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/router"
)

// Engine is the node-wide transport core: every bound NI, the portal
// matching engine, the peer and routing tables, and the router-buffer
// pool used for forwarded messages.
type Engine struct {
	Portals *portal.Engine
	Peers   *peer.Table
	Routes  *router.Table

	RouterBufs *bufpool.RouterPool
	Cookies    *ids.CookieGenerator
	Metrics    metrics.FabricMetrics
	Faults     *FaultInjector

	PeerTimeout      time.Duration
	LocalNIDDistZero bool
	CPTCount         int

	mu  sync.RWMutex
	nis map[ids.NID]*ni.NI

	waitMu  sync.Mutex
	waiters map[ids.Handle]*message.Message // ACK/REPLY waiters keyed by the wire handle minted at send time
}

// Config bundles the tuning knobs an Engine needs at construction,
// mirroring config.FabricConfig's shape without importing pkg/config
// (which would create an import cycle through pkg/controlapi).
type Config struct {
	MaxPortals       uint32
	MaxCPTPartitions uint32
	PeerTimeout      time.Duration
	LocalNIDDistZero bool
	RouterBufferPages []int
	RouterBuffersPerTier int
}

// NewEngine constructs an Engine with a fresh portal matching engine and
// empty peer/router tables.
func NewEngine(cfg Config, m metrics.FabricMetrics) *Engine {
	cpt := cfg.MaxCPTPartitions
	if cpt == 0 {
		cpt = 1
	}
	tiers := cfg.RouterBufferPages
	if len(tiers) == 0 {
		tiers = []int{1, 16, 256}
	}
	buffersPerTier := cfg.RouterBuffersPerTier
	if buffersPerTier == 0 {
		buffersPerTier = 64
	}
	return &Engine{
		Portals:          portal.NewEngine(cfg.MaxPortals, cpt),
		Peers:            peer.NewTable(),
		Routes:           router.New(),
		RouterBufs:       bufpool.NewRouterPool(tiers, buffersPerTier),
		Cookies:          ids.NewCookieGenerator(uint64(time.Now().UnixNano())),
		Metrics:          m,
		Faults:           newFaultInjector(),
		PeerTimeout:      cfg.PeerTimeout,
		LocalNIDDistZero: cfg.LocalNIDDistZero,
		CPTCount:         int(cpt),
		nis:              make(map[ids.NID]*ni.NI),
		waiters:          make(map[ids.Handle]*message.Message),
	}
}

// RegisterNI binds a local network interface to the engine.
func (e *Engine) RegisterNI(n *ni.NI) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nis[n.NID] = n
}

// NI returns the bound NI for nid, if any.
func (e *Engine) NI(nid ids.NID) (*ni.NI, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.nis[nid]
	return n, ok
}

// LocalNIDs returns every NID bound to this engine.
func (e *Engine) LocalNIDs() []ids.NID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ids.NID, 0, len(e.nis))
	for nid := range e.nis {
		out = append(out, nid)
	}
	return out
}

// IsLocal reports whether dest addresses one of our bound NIs directly.
func (e *Engine) IsLocal(dest ids.NID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.nis[dest]
	return ok
}

// PeerFor returns (creating if necessary) the Peer descriptor for nid,
// reachable through boundNI. isRouter marks nid as a gateway, in which
// case its routed-receive credit allowance is drawn from boundNI's
// configured PeerRtrCredits.
func (e *Engine) PeerFor(nid, boundNI ids.NID, via *ni.NI, isRouter bool) *peer.Peer {
	return e.Peers.GetOrCreate(nid, func() *peer.Peer {
		return peer.New(nid, boundNI, via.PeerTxCredits, isRouter, via.PeerRtrCredits)
	})
}

// resolveDestination implements §4.4's locality test and gateway
// selection. sourceNI, if non-zero, constrains gateway selection to a
// caller-specified local interface.
func (e *Engine) resolveDestination(dest ids.NID, sourceNI ids.NID) (target *ni.NI, nextHop ids.NID, routed bool, err error) {
	e.mu.RLock()
	for _, n := range e.nis {
		if n.NID == dest {
			e.mu.RUnlock()
			return n, dest, false, nil
		}
	}
	for _, n := range e.nis {
		if n.NID.Net() == dest.Net() {
			e.mu.RUnlock()
			return nil, ids.NIDAny, false, ferrors.NewInvalidArgument("destination on local net but no matching local NID: wrong interface")
		}
	}
	e.mu.RUnlock()

	gw, err := e.Routes.SelectGatewayCached(router.Net(dest.Net()), time.Now(), e.PeerTimeout, sourceNI)
	if err != nil {
		return nil, ids.NIDAny, false, err
	}
	target, ok := e.NI(gw.NI())
	if !ok {
		return nil, ids.NIDAny, false, ferrors.NewUnreachable("gateway bound to unknown local NI")
	}
	return target, gw.NID, true, nil
}

// registerWaiter records msg as the waiter for an ACK or REPLY that will
// arrive carrying handle as its dst_wmd.
func (e *Engine) registerWaiter(handle ids.Handle, msg *message.Message) {
	e.waitMu.Lock()
	e.waiters[handle] = msg
	e.waitMu.Unlock()
}

// takeWaiter removes and returns the waiter registered for handle, if
// any (§3: "Handle lookup requires both cookies to match an outstanding
// allocation").
func (e *Engine) takeWaiter(handle ids.Handle) (*message.Message, bool) {
	e.waitMu.Lock()
	defer e.waitMu.Unlock()
	msg, ok := e.waiters[handle]
	if ok {
		delete(e.waiters, handle)
	}
	return msg, ok
}

func (e *Engine) logf(format string, args ...any) {
	logger.Debugf(format, args...)
}
