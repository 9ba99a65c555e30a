package portal

import (
	"container/list"
	"sync"

	"github.com/lustre-net/lnetgo/pkg/ferrors"
)

// Buckets is the number of hash buckets used by a unique portal's
// per-partition match-table.
const Buckets = 7

// Type is the immutable shape a portal locks in on its first ME
// insert.
type Type int

const (
	TypeUnset Type = iota
	TypeUnique
	TypeWildcard
)

// matchTable is one CPU partition's view of a portal: either a single
// wildcard list or a BUCKETS-wide hash of unique-ME lists.
type matchTable struct {
	mu           sync.Mutex
	wildcardList list.List // of *ME, used when the owning portal is TypeWildcard
	buckets      [Buckets]list.List
	lastPost     int64 // logical timestamp of the most recent AttachMD, diagnostics only
}

// Portal is a single matching namespace: an index in [0, MAX_PORTALS)
// with one match-table per CPU partition plus the cross-partition
// stealing and delayed lists.
type Portal struct {
	index    uint32
	cptCount int

	mu      sync.Mutex // LP: stealing list, delayed list, lazy flag, active-map, cursor
	ptype   Type
	lazy    bool
	cursor  int // round-robin starting point for the stealing walk
	active  []bool
	stealing list.List // of *blocked
	delayed  list.List // of *blocked

	partitions []*matchTable
}

func newPortal(index uint32, cptCount int) *Portal {
	p := &Portal{
		index:      index,
		cptCount:   cptCount,
		active:     make([]bool, cptCount),
		partitions: make([]*matchTable, cptCount),
	}
	for i := range p.partitions {
		p.partitions[i] = &matchTable{}
	}
	return p
}

// Index returns the portal's index.
func (p *Portal) Index() uint32 { return p.index }

// SetLazy enables or disables delayed queuing of unmatched PUTs. Per
// L2, clearing lazy on an empty portal must leave the portal
// indistinguishable from its initial state; clearing also drops every
// currently delayed message (§6.5 control surface semantics), each
// emitting a DROP to its originator via onDrop.
func (p *Portal) SetLazy(lazy bool, onDrop func(IncomingRequest)) {
	p.mu.Lock()
	p.lazy = lazy
	var dropped []IncomingRequest
	if !lazy {
		for e := p.delayed.Front(); e != nil; e = e.Next() {
			dropped = append(dropped, e.Value.(*blocked).req)
		}
		p.delayed.Init()
	}
	p.mu.Unlock()

	if onDrop != nil {
		for _, req := range dropped {
			onDrop(req)
		}
	}
}

// Lazy reports the portal's current lazy flag.
func (p *Portal) Lazy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lazy
}

// blocked is an incoming request waiting on the stealing or delayed
// list for a future MD publication.
type blocked struct {
	req IncomingRequest
}

// Engine owns every portal on the node.
type Engine struct {
	mu       sync.RWMutex
	portals  []*Portal
	cptCount int
}

// NewEngine constructs an engine with maxPortals portals, each sharded
// across cptCount CPU partitions.
func NewEngine(maxPortals, cptCount uint32) *Engine {
	if cptCount == 0 {
		cptCount = 1
	}
	e := &Engine{portals: make([]*Portal, maxPortals), cptCount: int(cptCount)}
	for i := range e.portals {
		e.portals[i] = newPortal(uint32(i), int(cptCount))
	}
	return e
}

// CPTCount returns the number of CPU partitions configured.
func (e *Engine) CPTCount() int { return e.cptCount }

// Portal returns the portal at idx, or InvalidArgument if idx is out
// of range. MAX_PORTALS-1 is valid; MAX_PORTALS is rejected.
func (e *Engine) Portal(idx uint32) (*Portal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if int(idx) >= len(e.portals) {
		return nil, ferrors.NewInvalidArgument("portal index out of range")
	}
	return e.portals[idx], nil
}

// AttachMD inserts me on the appropriate per-partition match-table
// list, binds md to it, and runs matchAgainstBlocked so that any
// message already waiting on the stealing or delayed list gets a
// chance at the newly posted MD. The portal's type is fixed by the
// shape of the first ME ever inserted.
func (e *Engine) AttachMD(portalIdx uint32, partition int, me *ME, md *MD, position Position) error {
	p, err := e.Portal(portalIdx)
	if err != nil {
		return err
	}
	if partition < 0 || partition >= p.cptCount {
		return ferrors.NewInvalidArgument("CPU partition out of range")
	}

	me.MD = md
	me.Position = position
	me.PortalIndex = portalIdx

	shapeWildcard := me.isWildcardShape()

	p.mu.Lock()
	if p.ptype == TypeUnset {
		if shapeWildcard {
			p.ptype = TypeWildcard
		} else {
			p.ptype = TypeUnique
		}
	} else if (p.ptype == TypeWildcard) != shapeWildcard {
		p.mu.Unlock()
		return ferrors.NewInvalidArgument("ME shape does not match portal's established type")
	}
	p.active[partition] = true
	ptype := p.ptype
	p.mu.Unlock()

	mt := p.partitions[partition]
	mt.mu.Lock()
	mt.lastPost++
	if ptype == TypeWildcard {
		insertME(&mt.wildcardList, me, position)
	} else {
		bucket := hashME(me) % Buckets
		insertME(&mt.buckets[bucket], me, position)
	}
	mt.mu.Unlock()

	e.matchAgainstBlocked(p, md)
	return nil
}

func insertME(l *list.List, me *ME, position Position) {
	if position == PositionBefore {
		l.PushFront(me)
	} else {
		l.PushBack(me)
	}
}

// hashME mixes match-bits, nid, and pid for unique-portal bucketing.
func hashME(me *ME) uint32 {
	h := me.MatchBits ^ uint64(me.NID)*0x9E3779B97F4A7C15 ^ uint64(me.PID)*0x100000001B3
	h ^= h >> 33
	return uint32(h)
}
