// Package message implements the Message object (§3 "Message", §4.3): the
// active state of an in-flight send or receive, its state machine (NEW ->
// COMMITTED -> ON_WIRE -> FINALIZED), and the credit/MD bookkeeping that
// must be undone exactly once at finalize.
package message

import (
	"sync"

	"github.com/lustre-net/lnetgo/pkg/credit"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// State is a message's position in the §4.3 lifecycle.
type State int

const (
	StateNew State = iota
	StateCommitted
	StateOnWire
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateCommitted:
		return "COMMITTED"
	case StateOnWire:
		return "ON_WIRE"
	case StateFinalized:
		return "FINALIZED"
	default:
		return "UNKNOWN"
	}
}

// Kind mirrors wire.Type but is named independently so callers of this
// package don't need to import pkg/wire purely for the four-way switch.
type Kind = wire.Type

// CreditHold names one of the four credit types a message may hold at
// most one of at any time (§4.2 invariant "a message holds at most one
// of each credit type").
type CreditHold int

const (
	HoldPeerTx CreditHold = iota
	HoldNITx
	HoldPeerRtr
	HoldRtrBuffer
	numCreditHolds
)

// Message is the active state of an in-flight send or receive.
type Message struct {
	mu sync.Mutex

	Kind   Kind
	Header wire.Header

	MatchedMD *portal.MD
	Commit    portal.Commit // valid iff MatchedMD != nil

	RxPeer ids.NID
	TxPeer ids.NID

	Offset       uint32
	WantedLength uint32

	state State

	sending         bool
	receiving       bool
	routing         bool
	delayed         bool
	targetIsRouter  bool
	ackRequested    bool

	payload []byte // backing buffer for driver Send/Recv

	holds [numCreditHolds]*credit.Pool

	EventSink portal.EventSink // sink the finalize event is delivered to (usually MatchedMD.EventQueue)

	finalizeErr error
	finalized   bool
}

// New constructs a message in state NEW.
func New(kind Kind) *Message {
	return &Message{Kind: kind, state: StateNew}
}

// Payload implements ni.Message.
func (m *Message) Payload() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payload
}

// SetPayload implements ni.Message. It is called by the driver (for
// receives) or by the send path (to stage the outgoing buffer).
func (m *Message) SetPayload(buf []byte, offset, length uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = buf
	m.Offset = offset
	m.WantedLength = length
}

// State returns the message's current lifecycle state.
func (m *Message) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetSending/SetReceiving/SetRouting/SetDelayed/SetTargetIsRouter/
// SetAckRequested mirror the per-message flags of §3.

func (m *Message) SetSending(v bool)        { m.mu.Lock(); m.sending = v; m.mu.Unlock() }
func (m *Message) SetReceiving(v bool)       { m.mu.Lock(); m.receiving = v; m.mu.Unlock() }
func (m *Message) SetRouting(v bool)        { m.mu.Lock(); m.routing = v; m.mu.Unlock() }
func (m *Message) SetDelayed(v bool)        { m.mu.Lock(); m.delayed = v; m.mu.Unlock() }
func (m *Message) SetTargetIsRouter(v bool) { m.mu.Lock(); m.targetIsRouter = v; m.mu.Unlock() }
func (m *Message) SetAckRequested(v bool)   { m.mu.Lock(); m.ackRequested = v; m.mu.Unlock() }

func (m *Message) Routing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routing
}

func (m *Message) AckRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ackRequested
}

// Advance moves the message to the given lifecycle state. It does not
// validate the transition at all, not even that it moves forward;
// callers (pkg/transport) are the ones that know which transitions are
// legal for a given path.
func (m *Message) Advance(to State) {
	m.mu.Lock()
	m.state = to
	m.mu.Unlock()
}

// HoldCredit records that the message currently holds pool for the
// named credit type, so Finalize can release it exactly once.
func (m *Message) HoldCredit(which CreditHold, pool *credit.Pool) {
	m.mu.Lock()
	m.holds[which] = pool
	m.mu.Unlock()
}

// Holds reports whether the message currently holds a credit of the
// given type.
func (m *Message) Holds(which CreditHold) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holds[which] != nil
}

// ReleasedCredit is returned by Finalize for each credit type that was
// released, so the transport can drive queued sends back out.
type ReleasedCredit struct {
	Which CreditHold
	Pool  *credit.Pool
	Next  credit.Pending // non-nil if a queued message should now proceed
}

// Finalize implements §4.3's FINALIZE: release every credit the
// message holds exactly once, decrement the matched MD's refcount
// (releasing it if it was flagged unlinked), and emit the completion
// event to the sink. Only the first call does this; any later call is
// a no-op and returns nil.
//
// buildEvent is invoked (if non-nil and the message still has a sink)
// to construct the event to deliver; it receives the error Finalize
// was called with so callers can distinguish success/failure events.
func (m *Message) Finalize(finalErr error, buildEvent func(err error) (portal.Event, bool)) []ReleasedCredit {
	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return nil
	}
	m.finalized = true
	m.finalizeErr = finalErr
	m.state = StateFinalized

	var released []ReleasedCredit
	for which := CreditHold(0); which < numCreditHolds; which++ {
		pool := m.holds[which]
		if pool == nil {
			continue
		}
		m.holds[which] = nil
		next := pool.Release()
		released = append(released, ReleasedCredit{Which: which, Pool: pool, Next: next})
	}

	md := m.MatchedMD
	sink := m.EventSink
	m.mu.Unlock()

	if md != nil {
		md.Release()
	}

	if sink != nil && buildEvent != nil {
		if ev, ok := buildEvent(finalErr); ok {
			sink.Notify(ev)
		}
	}

	return released
}

// FinalizeErr returns the error Finalize was called with, if any.
func (m *Message) FinalizeErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalizeErr
}

// Finalized reports whether Finalize has already run.
func (m *Message) Finalized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized
}
