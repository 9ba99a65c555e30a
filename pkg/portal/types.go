// Package portal implements the matching engine and portal/match-table
// structures (§4.1): memory descriptors, match entries, per-CPU-
// partition match-tables, and the stealing/delayed queues that back
// wildcard and lazy portals.
package portal

import (
	"sync"

	"github.com/lustre-net/lnetgo/pkg/ids"
)

// OpMask identifies which operations (PUT/GET) an ME or MD participates
// in.
type OpMask uint8

const (
	OpPut OpMask = 1 << iota
	OpGet
)

// Intersects reports whether m shares any bit with other.
func (m OpMask) Intersects(other OpMask) bool { return m&other != 0 }

// MDOptions is the MD options bitset (§3).
type MDOptions uint16

const (
	OptPut MDOptions = 1 << iota
	OptGet
	OptManageRemote
	OptMaxSize
	OptTruncate
	OptAckDisable
	OptKIOV
	OptAutoUnlink
)

func (o MDOptions) has(bit MDOptions) bool { return o&bit != 0 }

// Position controls where within a match-table list a newly attached
// ME is inserted.
type Position int

const (
	PositionAfter Position = iota
	PositionBefore
	PositionLocal
)

// ThresholdInfinite marks an MD whose threshold never decrements.
const ThresholdInfinite = -1

// MD is a memory descriptor: a scatter/gather buffer registered for
// matching. Iov itself is represented only by its length here — the
// actual bytes live in the buffer owned by the caller (see
// pkg/bufpool) and are addressed by transport via offset/length pairs
// computed against this MD, not copied into it.
type MD struct {
	mu sync.Mutex

	Handle    ids.Handle
	Length    uint32
	Offset    uint32 // current write cursor, advanced on each commit
	MaxSize   uint32 // only meaningful when Options has OptMaxSize
	Options   MDOptions
	Threshold int // ThresholdInfinite, or a remaining-commit counter
	NIOV      int

	refcount        int
	unlinked        bool
	autoUnlinkQueued bool

	EventQueue EventSink // nil => completions silently dropped

	// Buffer is the caller-owned backing memory this MD addresses, when
	// the caller wants the transport core to read/write bytes on its
	// behalf (loopback delivery, GET reply sourcing) rather than only
	// track offsets. It may be nil for callers that manage their own
	// iov outside the engine.
	Buffer []byte
}

// NewMD constructs an unattached MD. Threshold may be ThresholdInfinite.
func NewMD(handle ids.Handle, length uint32, options MDOptions, threshold int, niov int, sink EventSink) *MD {
	return &MD{
		Handle:    handle,
		Length:    length,
		Options:   options,
		Threshold: threshold,
		NIOV:      niov,
		EventQueue: sink,
	}
}

// Refcount returns the number of in-flight messages holding this MD.
func (md *MD) Refcount() int {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.refcount
}

// Unlinked reports whether the MD has been flagged for release.
func (md *MD) Unlinked() bool {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.unlinked
}

// exhausted reports whether the MD can no longer accept new commits.
// Caller must hold md.mu.
func (md *MD) exhaustedLocked() bool {
	if md.unlinked {
		return true
	}
	return md.Threshold == 0
}

// snapshot captures the fields needed for an event at commit time.
// Caller must hold md.mu.
func (md *MD) snapshotLocked() MDSnapshot {
	return MDSnapshot{NIOV: md.NIOV, Length: md.Length, Threshold: md.Threshold}
}

// Snapshot returns a point-in-time copy of the MD's fields, for a DROP
// event where no commit occurred so there is no snapshot already taken
// under the match lock.
func (md *MD) Snapshot() MDSnapshot {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.snapshotLocked()
}

// MDSnapshot is a point-in-time copy of MD fields taken at commit.
type MDSnapshot struct {
	NIOV      int
	Length    uint32
	Threshold int
}

// AddRef increments refcount. Used when a message is constructed
// directly against an unattached (Bind-only) MD rather than through
// the matching engine.
func (md *MD) AddRef() {
	md.mu.Lock()
	md.refcount++
	md.mu.Unlock()
}

// Release decrements refcount on message finalize. If it reaches zero
// and the MD was flagged unlinked, an UNLINK event is emitted and true
// is returned so the caller can drop the MD from any indexes.
func (md *MD) Release() (released bool) {
	md.mu.Lock()
	md.refcount--
	released = md.refcount == 0 && md.unlinked
	if released && md.EventQueue != nil {
		md.EventQueue.Notify(Event{
			Type:       EventUnlink,
			MDHandle:   md.Handle,
			MDSnapshot: md.snapshotLocked(),
		})
	}
	md.mu.Unlock()
	return released
}

// Unlink flags the MD so that it is released once refcount reaches
// zero; if refcount is already zero it fires the UNLINK event
// immediately. No new commits may occur after Unlink returns.
func (md *MD) Unlink() (releasedNow bool) {
	md.mu.Lock()
	defer md.mu.Unlock()
	if md.unlinked {
		return md.refcount == 0
	}
	md.unlinked = true
	if md.refcount == 0 {
		if md.EventQueue != nil {
			md.EventQueue.Notify(Event{
				Type:       EventUnlink,
				MDHandle:   md.Handle,
				MDSnapshot: md.snapshotLocked(),
			})
		}
		return true
	}
	return false
}

// ME is a match entry: a predicate bound to at most one MD.
type ME struct {
	NID         ids.NID
	PID         ids.PID
	MatchBits   uint64
	IgnoreBits  uint64
	OpMask      OpMask
	PortalIndex uint32
	Position    Position

	MD       *MD
	unlinked bool
}

// isWildcardShape reports whether the ME's identifying fields make it
// a wildcard-class ME (matches any source) rather than a unique-class
// one. This determines the portal's type on first insert.
func (me *ME) isWildcardShape() bool {
	return me.NID == ids.NIDAny && me.PID == ids.PIDAny
}

// matches tests the ME's predicate against an incoming request,
// excluding length/threshold checks (those are evaluated by the
// caller once a predicate match is found).
func (me *ME) matches(req IncomingRequest) bool {
	if !me.OpMask.Intersects(req.Op) {
		return false
	}
	if me.NID != ids.NIDAny && me.NID != req.SrcNID {
		return false
	}
	if me.PID != ids.PIDAny && me.PID != req.SrcPID {
		return false
	}
	if (me.MatchBits^req.MatchBits)&^me.IgnoreBits != 0 {
		return false
	}
	return true
}

// EventType enumerates the kinds of events the engine and message
// lifecycle emit (§4.5).
type EventType int

const (
	EventSend EventType = iota
	EventPut
	EventGet
	EventReply
	EventAck
	EventUnlink
)

func (t EventType) String() string {
	switch t {
	case EventSend:
		return "SEND"
	case EventPut:
		return "PUT"
	case EventGet:
		return "GET"
	case EventReply:
		return "REPLY"
	case EventAck:
		return "ACK"
	case EventUnlink:
		return "UNLINK"
	default:
		return "UNKNOWN"
	}
}

// Event is the unit of completion notification delivered to an MD's
// event queue.
type Event struct {
	Type        EventType
	Initiator   ids.ProcessID
	Target      ids.ProcessID
	SenderNID   ids.NID
	PortalIndex uint32
	MatchBits   uint64
	RLength     uint32
	MLength     uint32
	Offset      uint32
	HdrData     uint64 // PUT only
	MDHandle    ids.Handle
	MDSnapshot  MDSnapshot

	// Dropped marks a DROP-marked completion (§7 Overflow/NoMatch): the
	// MD an ME's predicate selected did not absorb the request (length
	// policy rejected it without TRUNCATE), so MLength is 0 and the MD's
	// threshold/offset are unchanged from MDSnapshot's perspective.
	Dropped bool
}

// EventSink receives events for a single MD's event queue. Multiple
// producers (multiple CPU partitions matching against the same MD)
// serialize through the MD's own mutex before calling Notify, so
// implementations need not be internally synchronized for that case,
// but a sink shared across MDs must be.
type EventSink interface {
	Notify(Event)
}

// EventSinkFunc adapts a plain function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Notify(e Event) { f(e) }
