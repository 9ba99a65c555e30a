package bufpool

import (
	"sync"

	"github.com/lustre-net/lnetgo/pkg/credit"
	"github.com/lustre-net/lnetgo/pkg/ferrors"
)

// PageSize is the page size assumed by router-buffer-pool tiers (§3
// "Router-buffer pools", §6.4 router_buffer_tiers). It is a fixed
// constant rather than a runtime-queried value, matching the fixed
// PAGE_SIZE LNet itself builds router buffers against.
const PageSize = 4096

// RouterTier is one sized tier of pre-allocated page-vector landing
// buffers (§3). Credits gate how many buffers of this tier may be
// outstanding at once; Buffers themselves come from a sync.Pool keyed
// to the tier's fixed size.
type RouterTier struct {
	Pages   int
	Credits *credit.Pool

	bufs sync.Pool
}

func newTier(pages, count int) *RouterTier {
	size := pages * PageSize
	t := &RouterTier{Pages: pages, Credits: credit.New("router-buf", count)}
	t.bufs.New = func() any {
		buf := make([]byte, size)
		return &buf
	}
	return t
}

// Size returns the tier's fixed buffer size in bytes.
func (t *RouterTier) Size() int { return t.Pages * PageSize }

// Acquire charges one router-buffer-pool credit for this tier and
// returns a buffer of the tier's fixed size. queued mirrors
// credit.Pool.Acquire: when true, item has been queued and the caller
// must wait for a future Release to invoke it rather than proceed now.
func (t *RouterTier) Acquire(item credit.Pending) (buf []byte, queued bool) {
	queued = t.Credits.Acquire(item)
	bp := t.bufs.Get().(*[]byte)
	return *bp, queued
}

// Release returns buf to the tier's free list and returns one credit
// to the pool, draining the head of its FIFO queue if present.
func (t *RouterTier) Release(buf []byte) credit.Pending {
	t.PutBuf(buf)
	return t.Credits.Release()
}

// PutBuf returns buf to the tier's free list without touching the
// credit pool, for callers (pkg/transport) that release the matching
// credit themselves as part of a message's generic Finalize.
func (t *RouterTier) PutBuf(buf []byte) {
	if cap(buf) == t.Size() {
		full := buf[:cap(buf)]
		t.bufs.Put(&full)
	}
}

// RouterPool is the node's full set of router-buffer tiers, ordered
// ascending by page count per §6.4's router_buffer_tiers.
type RouterPool struct {
	Tiers []*RouterTier
}

// NewRouterPool builds a RouterPool from an ascending list of page-count
// tiers, each provisioned with buffersPerTier landing buffers.
func NewRouterPool(tierPages []int, buffersPerTier int) *RouterPool {
	p := &RouterPool{Tiers: make([]*RouterTier, len(tierPages))}
	for i, pages := range tierPages {
		p.Tiers[i] = newTier(pages, buffersPerTier)
	}
	return p
}

// SelectTier returns the smallest tier whose page count covers
// length bytes (§4.2: "the pool is chosen by smallest tier whose page
// count covers the message length").
func (p *RouterPool) SelectTier(length int) (*RouterTier, error) {
	for _, t := range p.Tiers {
		if t.Size() >= length {
			return t, nil
		}
	}
	return nil, ferrors.NewResourceExhausted("no router-buffer tier large enough for message")
}
