package portal

import (
	"container/list"

	"github.com/lustre-net/lnetgo/pkg/ids"
)

// Outcome is the result category of a match attempt (§4.1).
type Outcome int

const (
	// OutcomeOK: a commit succeeded; see MatchResult.Commit.
	OutcomeOK Outcome = iota
	// OutcomeDrop: a matching ME existed but length policy rejected it,
	// or no ME matched and the portal does not queue unmatched requests.
	OutcomeDrop
	// OutcomeNone: no ME matched and the request was queued (stealing
	// exhausted and fell through to the delayed list on a lazy portal).
	OutcomeNone
)

// DropReason explains an OutcomeDrop result.
type DropReason int

const (
	DropReasonNone DropReason = iota
	DropReasonOverflow
	DropReasonNoMatch
)

// IncomingRequest describes a PUT or GET that needs to be matched
// against a portal's posted MDs.
type IncomingRequest struct {
	SrcNID      ids.NID
	SrcPID      ids.PID
	Op          OpMask
	RLength     uint32
	ROffset     uint32
	MatchBits   uint64
	HdrData     uint64
	Partition   int // CPU partition the request arrived on

	// OnDelayedMatch, if set, is invoked exactly once, asynchronously,
	// when a request that was queued on the delayed list (OutcomeNone)
	// is later matched or definitively dropped by a future AttachMD or
	// SetLazy(false) call.
	OnDelayedMatch func(MatchResult)
}

// Commit describes a successful match: which MD absorbed the request
// and at what offset/length.
type Commit struct {
	MD                *MD
	MOffset           uint32
	MLength           uint32
	ThresholdSnapshot int
	AutoUnlinked      bool
}

// MatchResult is the outcome of a match attempt.
type MatchResult struct {
	Outcome Outcome
	Reason  DropReason
	Commit  Commit
}

// MatchIncoming implements §4.1's match_incoming. It is synchronous:
// OutcomeNone means the request has been queued on the portal's
// delayed list and the caller must wait for req.OnDelayedMatch to
// fire rather than treat the request as resolved.
func (e *Engine) MatchIncoming(portalIdx uint32, req IncomingRequest) (MatchResult, error) {
	p, err := e.Portal(portalIdx)
	if err != nil {
		return MatchResult{}, err
	}

	if res, ok := e.tryMatchPartition(p, req.Partition, req); ok {
		return res, nil
	}

	p.mu.Lock()
	ptype := p.ptype
	otherActive := false
	for i, a := range p.active {
		if i != req.Partition && a {
			otherActive = true
			break
		}
	}
	p.mu.Unlock()

	if ptype == TypeUnique || p.cptCount == 1 || !otherActive {
		return e.fallthroughResult(p, req), nil
	}

	// Stealing: publish on the stealing list, then walk the other
	// partitions round-robin from the portal's cursor.
	b := &blocked{req: req}
	p.mu.Lock()
	elem := p.stealing.PushBack(b)
	start := p.cursor
	p.cursor = (p.cursor + 1) % p.cptCount
	p.mu.Unlock()

	for i := 0; i < p.cptCount; i++ {
		part := (start + i) % p.cptCount
		if part == req.Partition {
			continue
		}
		if res, ok := e.tryMatchPartition(p, part, req); ok {
			p.mu.Lock()
			removeBlocked(&p.stealing, elem)
			p.mu.Unlock()
			return res, nil
		}
	}

	p.mu.Lock()
	removeBlocked(&p.stealing, elem)
	p.mu.Unlock()

	return e.fallthroughResult(p, req), nil
}

// fallthroughResult decides DROP vs NONE once no ME matched anywhere,
// queuing onto the delayed list in the NONE case.
func (e *Engine) fallthroughResult(p *Portal, req IncomingRequest) MatchResult {
	p.mu.Lock()
	lazy := p.lazy
	if req.Op != OpGet && lazy {
		p.delayed.PushBack(&blocked{req: req})
		p.mu.Unlock()
		return MatchResult{Outcome: OutcomeNone}
	}
	p.mu.Unlock()
	return MatchResult{Outcome: OutcomeDrop, Reason: DropReasonNoMatch}
}

// tryMatchPartition attempts a match against partition part's table
// under its own lock. ok is false only when no ME's predicate matched
// at all (caller should keep searching); a predicate match that fails
// length policy returns ok=true with OutcomeDrop, since DROP is itself
// a resolved outcome.
func (e *Engine) tryMatchPartition(p *Portal, part int, req IncomingRequest) (MatchResult, bool) {
	mt := p.partitions[part]
	mt.mu.Lock()
	defer mt.mu.Unlock()

	p.mu.Lock()
	ptype := p.ptype
	p.mu.Unlock()

	var l *list.List
	if ptype == TypeWildcard {
		l = &mt.wildcardList
	} else {
		l = &mt.buckets[hashMatchBits(req.MatchBits, req.SrcNID, req.SrcPID)%Buckets]
	}

	for elem := l.Front(); elem != nil; elem = elem.Next() {
		me := elem.Value.(*ME)
		if me.unlinked || me.MD == nil {
			continue
		}
		if !me.matches(req) {
			continue
		}

		md := me.MD
		md.mu.Lock()
		if md.exhaustedLocked() {
			md.mu.Unlock()
			continue
		}

		var capacity uint32
		var base uint32
		if md.Options.has(OptManageRemote) {
			base = req.ROffset
		} else {
			base = md.Offset
		}
		if md.Options.has(OptMaxSize) {
			capacity = md.MaxSize
		} else {
			capacity = md.Length - base
		}

		if req.RLength > capacity && !md.Options.has(OptTruncate) {
			md.mu.Unlock()
			return MatchResult{
				Outcome: OutcomeDrop,
				Reason:  DropReasonOverflow,
				Commit:  Commit{MD: md},
			}, true
		}
		mlength := req.RLength
		if mlength > capacity {
			mlength = capacity
		}

		md.refcount++
		if md.Threshold != ThresholdInfinite {
			md.Threshold--
		}
		snapshot := md.Threshold
		md.Offset = base + mlength

		autoUnlinked := false
		if md.Options.has(OptAutoUnlink) && md.Threshold == 0 {
			md.unlinked = true
			autoUnlinked = true
		}
		md.mu.Unlock()

		if me.Position == PositionLocal {
			// local MEs are single-shot: unlink after first commit.
			me.unlinked = true
		}

		return MatchResult{
			Outcome: OutcomeOK,
			Commit: Commit{
				MD:                md,
				MOffset:           base,
				MLength:           mlength,
				ThresholdSnapshot: snapshot,
				AutoUnlinked:      autoUnlinked,
			},
		}, true
	}

	return MatchResult{}, false
}

func hashMatchBits(matchBits uint64, nid ids.NID, pid ids.PID) uint32 {
	h := matchBits ^ uint64(nid)*0x9E3779B97F4A7C15 ^ uint64(pid)*0x100000001B3
	h ^= h >> 33
	return uint32(h)
}

// matchAgainstBlocked walks the stealing list first, then (if the
// portal is lazy) the delayed list, attempting to satisfy waiting
// requests against a newly published MD. It is called with no table
// lock held; it takes the portal lock for list access and the target
// partition's lock to retry matches.
func (e *Engine) matchAgainstBlocked(p *Portal, md *MD) {
	e.drainList(p, &p.stealing)
	p.mu.Lock()
	lazy := p.lazy
	p.mu.Unlock()
	if lazy {
		e.drainList(p, &p.delayed)
	}
}

// drainList retries every entry currently on l in FIFO order against
// every partition; matched or conclusively-dropped entries are
// removed and their OnDelayedMatch callback fired.
func (e *Engine) drainList(p *Portal, l *list.List) {
	p.mu.Lock()
	var pending []*list.Element
	for elem := l.Front(); elem != nil; elem = elem.Next() {
		pending = append(pending, elem)
	}
	p.mu.Unlock()

	for _, elem := range pending {
		p.mu.Lock()
		b, ok := elem.Value.(*blocked)
		still := false
		for e2 := l.Front(); e2 != nil; e2 = e2.Next() {
			if e2 == elem {
				still = true
				break
			}
		}
		p.mu.Unlock()
		if !ok || !still {
			continue
		}

		var res MatchResult
		matched := false
		for part := 0; part < p.cptCount; part++ {
			if r, ok := e.tryMatchPartition(p, part, b.req); ok {
				res = r
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		p.mu.Lock()
		removeBlocked(l, elem)
		p.mu.Unlock()

		if b.req.OnDelayedMatch != nil {
			b.req.OnDelayedMatch(res)
		}
	}
}

func removeBlocked(l *list.List, elem *list.Element) {
	for e := l.Front(); e != nil; e = e.Next() {
		if e == elem {
			l.Remove(e)
			return
		}
	}
}
