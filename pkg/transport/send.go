package transport

import (
	"github.com/lustre-net/lnetgo/pkg/credit"
	"github.com/lustre-net/lnetgo/pkg/ferrors"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/message"
	"github.com/lustre-net/lnetgo/pkg/ni"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// SendRequest describes an outgoing PUT or GET (§3 "Message", §4.2).
type SendRequest struct {
	Source    ids.ProcessID // NID, if set, constrains gateway selection to that local interface
	Target    ids.ProcessID
	Kind      wire.Type // TypePut or TypeGet
	MD        *portal.MD
	Offset    uint32
	Length    uint32 // PUT: bytes taken from MD.Buffer[Offset:]; GET: requested sink length
	PortalIdx uint32
	MatchBits uint64
	HdrData   uint64 // PUT only
	AckRequested bool // PUT only, subject to the matched remote MD's OptAckDisable
	Partition int
}

// Send implements the SEND path (§4.2, §4.3): resolve the destination,
// hold a reference on the caller's MD, then drive credit acquisition
// and eventual transmission. It returns immediately; the message may
// still be queued on a credit pool awaiting a future Release.
func (e *Engine) Send(req SendRequest) (*message.Message, error) {
	if req.Kind != wire.TypePut && req.Kind != wire.TypeGet {
		return nil, ferrors.NewInvalidArgument("Send only supports PUT and GET")
	}

	targetNI, nextHop, routed, err := e.resolveDestination(req.Target.NID, req.Source.NID)
	if err != nil {
		return nil, err
	}

	peer := e.PeerFor(nextHop, targetNI.NID, targetNI, false)

	msg := message.New(req.Kind)
	msg.TxPeer = nextHop
	msg.SetSending(true)
	msg.SetAckRequested(req.AckRequested && req.Kind == wire.TypePut)
	msg.MatchedMD = req.MD
	if req.MD != nil {
		req.MD.AddRef()
		msg.EventSink = req.MD.EventQueue
	}

	hdr := wire.Header{
		Type:    req.Kind,
		DestNID: req.Target.NID,
		DestPID: req.Target.PID,
		SrcNID:  targetNI.NID,
		SrcPID:  req.Source.PID,
	}

	var handle ids.Handle
	switch req.Kind {
	case wire.TypePut:
		hdr.PayloadLength = req.Length
		if msg.AckRequested() {
			handle = e.Cookies.Next()
			e.registerWaiter(handle, msg)
		}
		hdr.Put = wire.PutUnion{
			AckWMD:    handle,
			MatchBits: req.MatchBits,
			HdrData:   req.HdrData,
			PortalIdx: req.PortalIdx,
			Offset:    req.Offset,
		}
	case wire.TypeGet:
		handle = e.Cookies.Next()
		e.registerWaiter(handle, msg)
		hdr.Get = wire.GetUnion{
			ReturnWMD:  handle,
			MatchBits:  req.MatchBits,
			PortalIdx:  req.PortalIdx,
			SrcOffset:  req.Offset,
			SinkLength: req.Length,
		}
	}
	msg.Header = hdr

	var payload []byte
	if req.Kind == wire.TypePut && req.MD != nil {
		payload = req.MD.Buffer[req.Offset : req.Offset+req.Length]
	}

	a := &sendAttempt{
		e:        e,
		msg:      msg,
		req:      req,
		targetNI: targetNI,
		nextHop:  nextHop,
		routed:   routed,
		peerPool: peer.TxCredits,
		niPool:   targetNI.TxCredits(req.Partition),
		payload:  payload,
	}
	a.attempt()

	return msg, nil
}

// sendAttempt carries the state needed to (re-)try acquiring a
// message's two outbound credit holds (§4.2: "a message holds at most
// one of each credit type ... acquired in order: peer-tx, then NI-tx")
// and, once both are held, hand the message to the driver.
type sendAttempt struct {
	e        *Engine
	msg      *message.Message
	req      SendRequest
	targetNI *ni.NI
	nextHop  ids.NID
	routed   bool
	peerPool *credit.Pool
	niPool   *credit.Pool
	payload  []byte
}

func (a *sendAttempt) attempt() {
	e, msg := a.e, a.msg

	if !msg.Holds(message.HoldPeerTx) {
		queued := a.peerPool.Acquire(resumeFunc(a.resume))
		msg.HoldCredit(message.HoldPeerTx, a.peerPool)
		if queued {
			return
		}
	}
	if !msg.Holds(message.HoldNITx) {
		queued := a.niPool.Acquire(resumeFunc(a.resume))
		msg.HoldCredit(message.HoldNITx, a.niPool)
		if queued {
			return
		}
	}

	e.doSend(a)
}

func (a *sendAttempt) resume() { a.attempt() }

// resumeFunc adapts a zero-arg resume closure to credit.Pending, which
// is typed any; Release hands it back verbatim for the caller to invoke.
type resumeFunc func()

// doSend performs the actual driver handoff once all credits are held,
// and finalizes the message with its driver-reported outcome.
func (e *Engine) doSend(a *sendAttempt) {
	msg := a.msg
	msg.SetPayload(a.payload, 0, uint32(len(a.payload)))
	msg.Advance(message.StateOnWire)

	var err error
	if e.Faults.shouldDrop(a.req.Target.NID) {
		err = ferrors.NewSimulated(a.req.Target.NID.String())
	} else {
		err = a.targetNI.Driver.Send(a.targetNI, nil, msg)
	}

	if e.Metrics != nil {
		if err == nil {
			if a.routed {
				e.Metrics.RecordRoute(a.targetNI.Net, len(a.payload))
			} else {
				e.Metrics.RecordSend(a.targetNI.Net, len(a.payload))
			}
		} else {
			e.Metrics.RecordDrop(a.targetNI.Net, ferrors.KindOf(err).String(), len(a.payload))
		}
	}

	self := ids.ProcessID{NID: a.targetNI.NID, PID: a.req.Source.PID}
	released := msg.Finalize(err, func(ferr error) (portal.Event, bool) {
		if ferr != nil {
			return portal.Event{}, false
		}
		return msg.BuildSendEvent(self, a.req.Target), true
	})

	for _, r := range released {
		resumeReleasedCredit(r)
	}
}

// resumeReleasedCredit invokes the next queued sender for a pool that
// was just released, if any, off the caller's own stack so a long FIFO
// chain of deferred sends doesn't grow the call stack unbounded.
func resumeReleasedCredit(r message.ReleasedCredit) {
	if r.Next == nil {
		return
	}
	fn, ok := r.Next.(resumeFunc)
	if !ok {
		return
	}
	go fn()
}
