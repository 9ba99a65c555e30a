// Package peer maintains per-NID connectivity state: liveness tracking,
// outgoing transmit credits and queue, and (for gateways) routed-receive
// credits and queue (§3 "Peer", §4.4 liveness).
package peer

import (
	"sync"
	"time"

	"github.com/lustre-net/lnetgo/pkg/credit"
	"github.com/lustre-net/lnetgo/pkg/ids"
)

// QueryInterval bounds how often a dead-looking peer is re-probed via
// the driver's liveness callback (§4.4: "at most once per query
// interval (1 s)").
const QueryInterval = 1 * time.Second

// Peer is the cached descriptor for a single remote NID.
type Peer struct {
	NID ids.NID

	TxCredits *credit.Pool
	RtrCredits *credit.Pool // nil unless this peer is a router

	mu sync.Mutex

	niNID       ids.NID // the local NI this peer is bound to
	queuedBytes int64
	lastAlive   time.Time
	lastQuery   time.Time
	lastNotify  time.Time
	alive       bool
	aliveCount  int
}

// New constructs a Peer bound to the given local NI, with the
// configured tx-credit (and, for routers, rtr-credit) allowance.
func New(nid ids.NID, niNID ids.NID, txCredits int, isRouter bool, rtrCredits int) *Peer {
	p := &Peer{
		NID:       nid,
		niNID:     niNID,
		TxCredits: credit.New("peer-tx", txCredits),
		alive:     true,
		lastAlive: time.Now(),
	}
	if isRouter {
		p.RtrCredits = credit.New("peer-rtr", rtrCredits)
	}
	return p
}

// NI returns the local NI NID this peer is reachable through.
func (p *Peer) NI() ids.NID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.niNID
}

// IsRouter reports whether this peer descriptor tracks routed-receive
// credits (i.e. the peer is itself a gateway).
func (p *Peer) IsRouter() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.RtrCredits != nil
}

// EnsureRtrCredits lazily provisions this peer's routed-receive credit
// pool the first time it is observed sending traffic that must be
// forwarded, seeding it with allowance. Later calls are no-ops and
// return the pool created by the first.
func (p *Peer) EnsureRtrCredits(allowance int) *credit.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RtrCredits == nil {
		p.RtrCredits = credit.New("peer-rtr", allowance)
	}
	return p.RtrCredits
}

// QueuedBytes returns the number of bytes currently queued for
// transmission to this peer, used by gateway-selection ordering.
func (p *Peer) QueuedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queuedBytes
}

// AddQueuedBytes adjusts the queued-byte counter; negative deltas are
// applied on send completion.
func (p *Peer) AddQueuedBytes(delta int64) {
	p.mu.Lock()
	p.queuedBytes += delta
	p.mu.Unlock()
}

// NotifyLocked records a liveness advertisement with the given
// timestamp, per §4.4's notify-locked.
func (p *Peer) NotifyLocked(timestamp time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if timestamp.Before(p.lastAlive) {
		return
	}
	p.lastNotify = timestamp
	p.lastAlive = timestamp
	p.alive = true
	p.aliveCount++
}

// Alive reports whether the peer is currently considered alive: now
// is within peerTimeout of last_alive, or a recent notify said so.
func (p *Peer) Alive(now time.Time, peerTimeout time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Before(p.lastAlive.Add(peerTimeout)) {
		return true
	}
	return p.alive && !p.lastNotify.Before(p.lastAlive)
}

// MarkDead flips the cached alive flag off; callers do this once a
// liveness query has definitively failed.
func (p *Peer) MarkDead() {
	p.mu.Lock()
	p.alive = false
	p.mu.Unlock()
}

// ShouldQuery reports whether enough time has passed since the last
// liveness query to issue another one (§4.4: at most once per
// QueryInterval).
func (p *Peer) ShouldQuery(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if now.Before(p.lastQuery.Add(QueryInterval)) {
		return false
	}
	p.lastQuery = now
	return true
}

// AliveCount returns the number of liveness advertisements NotifyLocked
// has accepted for this peer, whether or not the peer was already alive
// (diagnostic counter).
func (p *Peer) AliveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.aliveCount
}

// Table is a concurrency-safe registry of peers keyed by NID.
type Table struct {
	mu    sync.RWMutex
	peers map[ids.NID]*Peer
}

// NewTable returns an empty peer table.
func NewTable() *Table {
	return &Table{peers: make(map[ids.NID]*Peer)}
}

// GetOrCreate returns the existing peer for nid, or constructs one via
// newFn and stores it.
func (t *Table) GetOrCreate(nid ids.NID, newFn func() *Peer) *Peer {
	t.mu.RLock()
	p, ok := t.peers[nid]
	t.mu.RUnlock()
	if ok {
		return p
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.peers[nid]; ok {
		return p
	}
	p = newFn()
	t.peers[nid] = p
	return p
}

// Get returns the peer for nid, if known.
func (t *Table) Get(nid ids.NID) (*Peer, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.peers[nid]
	return p, ok
}

// All returns a snapshot of every known peer.
func (t *Table) All() []*Peer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}
