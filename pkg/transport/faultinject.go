package transport

import (
	"sync"
	"sync/atomic"

	"github.com/lustre-net/lnetgo/pkg/ids"
)

// nidFault tracks how many more sends toward a NID should be dropped
// before fail_nid's injected loss run is exhausted.
type nidFault struct {
	threshold uint64
	dropped   atomic.Uint64
}

// FaultInjector backs the control surface's fail_nid test hook (§6.5):
// "injects simulated losses". It is consulted on the send path only,
// mirroring how a real driver-level packet loss would be observed —
// the caller sees a Simulated error exactly as it would see any other
// send failure.
type FaultInjector struct {
	mu   sync.Mutex
	nids map[ids.NID]*nidFault
}

func newFaultInjector() *FaultInjector {
	return &FaultInjector{nids: make(map[ids.NID]*nidFault)}
}

// Fail arms nid to drop the next threshold sends directed at it. A
// threshold of 0 clears any existing injection for nid.
func (f *FaultInjector) Fail(nid ids.NID, threshold uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if threshold == 0 {
		delete(f.nids, nid)
		return
	}
	f.nids[nid] = &nidFault{threshold: threshold}
}

// Clear removes any armed injection for nid.
func (f *FaultInjector) Clear(nid ids.NID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.nids, nid)
}

// Active reports the NIDs currently armed and their remaining drop
// budget, for the control surface's status endpoint.
func (f *FaultInjector) Active() map[ids.NID]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[ids.NID]uint64, len(f.nids))
	for nid, nf := range f.nids {
		dropped := nf.dropped.Load()
		if dropped >= nf.threshold {
			continue
		}
		out[nid] = nf.threshold - dropped
	}
	return out
}

// shouldDrop consumes one unit of nid's drop budget and reports
// whether this send should be simulated as lost.
func (f *FaultInjector) shouldDrop(nid ids.NID) bool {
	f.mu.Lock()
	nf, ok := f.nids[nid]
	f.mu.Unlock()
	if !ok {
		return false
	}
	return nf.dropped.Add(1) <= nf.threshold
}
