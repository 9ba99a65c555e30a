package transport

import (
	"time"

	"github.com/lustre-net/lnetgo/pkg/ferrors"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/message"
	"github.com/lustre-net/lnetgo/pkg/ni"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// HandleIncoming is the RECV path's entry point (§4.1, §4.3): a driver
// calls this once it has parsed a header off the wire. local is the NI
// the header arrived on; priv is opaque driver context threaded through
// to the eventual Recv/EagerRecv call.
func (e *Engine) HandleIncoming(local *ni.NI, partition int, hdr *wire.Header, priv any) error {
	if p, ok := e.Peers.Get(hdr.SrcNID); ok {
		p.NotifyLocked(time.Now())
	}

	if !e.IsLocal(hdr.DestNID) {
		return e.handleRouted(local, partition, hdr, priv)
	}

	switch hdr.Type {
	case wire.TypePut:
		return e.handlePut(local, partition, hdr, priv)
	case wire.TypeGet:
		return e.handleGet(local, partition, hdr, priv)
	case wire.TypeAck:
		return e.handleAck(hdr)
	case wire.TypeReply:
		return e.handleReply(local, hdr, priv)
	case wire.TypeHello:
		e.PeerFor(hdr.SrcNID, local.NID, local, false)
		return nil
	default:
		return nil
	}
}

func (e *Engine) handlePut(local *ni.NI, partition int, hdr *wire.Header, priv any) error {
	req := portal.IncomingRequest{
		SrcNID:    hdr.SrcNID,
		SrcPID:    hdr.SrcPID,
		Op:        portal.OpPut,
		RLength:   hdr.PayloadLength,
		ROffset:   hdr.Put.Offset,
		MatchBits: hdr.Put.MatchBits,
		HdrData:   hdr.Put.HdrData,
		Partition: partition,
		OnDelayedMatch: func(res portal.MatchResult) {
			e.completePut(local, hdr, priv, res)
		},
	}

	res, err := e.Portals.MatchIncoming(hdr.Put.PortalIdx, req)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case portal.OutcomeOK:
		e.completePut(local, hdr, priv, res)
	case portal.OutcomeDrop:
		e.dropIncoming(local, hdr, res, int(hdr.PayloadLength))
	case portal.OutcomeNone:
		// queued on the portal's delayed list; best-effort eager-receive
		// so the driver can land the bytes while we wait for a post.
		if _, err := local.Driver.EagerRecv(local, priv, message.New(wire.TypePut)); err != nil {
			e.logf("eager recv failed for delayed PUT from %s: %v", hdr.SrcNID, err)
		}
	}
	return nil
}

func (e *Engine) completePut(local *ni.NI, hdr *wire.Header, priv any, res portal.MatchResult) {
	md := res.Commit.MD
	msg := message.New(wire.TypePut)
	msg.MatchedMD = md
	msg.Commit = res.Commit
	msg.RxPeer = hdr.SrcNID
	msg.EventSink = md.EventQueue
	msg.SetReceiving(true)
	msg.Advance(message.StateCommitted)

	if md.Buffer != nil {
		msg.SetPayload(md.Buffer, res.Commit.MOffset, res.Commit.MLength)
	}

	err := local.Driver.Recv(local, priv, msg, false, res.Commit.MOffset, res.Commit.MLength, hdr.PayloadLength)

	initiator := ids.ProcessID{NID: ids.NIDAny, PID: hdr.SrcPID}
	target := ids.ProcessID{NID: hdr.DestNID, PID: hdr.DestPID}
	ev := message.BuildPutEvent(initiator, target, hdr.SrcNID, hdr.Put.PortalIdx, hdr.Put.MatchBits,
		hdr.PayloadLength, res.Commit.MLength, res.Commit.MOffset, hdr.Put.HdrData, md, res.Commit)

	msg.Finalize(err, func(ferr error) (portal.Event, bool) { return ev, ferr == nil })

	if e.Metrics != nil {
		if err == nil {
			e.Metrics.RecordRecv(local.Net, int(res.Commit.MLength))
		} else {
			e.Metrics.RecordDrop(local.Net, "recv_error", int(hdr.PayloadLength))
		}
	}

	if err == nil && !hdr.Put.AckWMD.IsNone() && md.Options&portal.OptAckDisable == 0 {
		e.sendAck(local, hdr, res.Commit.MLength)
	}
}

func (e *Engine) handleGet(local *ni.NI, partition int, hdr *wire.Header, priv any) error {
	req := portal.IncomingRequest{
		SrcNID:    hdr.SrcNID,
		SrcPID:    hdr.SrcPID,
		Op:        portal.OpGet,
		RLength:   hdr.Get.SinkLength,
		ROffset:   hdr.Get.SrcOffset,
		MatchBits: hdr.Get.MatchBits,
		Partition: partition,
	}

	res, err := e.Portals.MatchIncoming(hdr.Get.PortalIdx, req)
	if err != nil {
		return err
	}

	switch res.Outcome {
	case portal.OutcomeOK:
		e.completeGet(local, hdr, res)
	case portal.OutcomeDrop:
		e.dropIncoming(local, hdr, res, 0)
	}
	return nil
}

func (e *Engine) completeGet(local *ni.NI, hdr *wire.Header, res portal.MatchResult) {
	md := res.Commit.MD

	initiator := ids.ProcessID{NID: ids.NIDAny, PID: hdr.SrcPID}
	target := ids.ProcessID{NID: hdr.DestNID, PID: hdr.DestPID}
	ev := message.BuildGetEvent(initiator, target, hdr.SrcNID, hdr.Get.PortalIdx, hdr.Get.MatchBits,
		hdr.Get.SinkLength, res.Commit.MLength, res.Commit.MOffset, md, res.Commit)

	var payload []byte
	if md.Buffer != nil {
		payload = md.Buffer[res.Commit.MOffset : res.Commit.MOffset+res.Commit.MLength]
	}

	req := SendRequest{
		Source:    ids.ProcessID{NID: local.NID, PID: hdr.DestPID},
		Target:    ids.ProcessID{NID: hdr.SrcNID, PID: hdr.SrcPID},
		Kind:      wire.TypeReply,
		Partition: 0,
	}
	e.sendReply(req, hdr.Get.ReturnWMD, payload)

	if md.EventQueue != nil {
		md.EventQueue.Notify(ev)
	}
	md.Release()

	if e.Metrics != nil {
		e.Metrics.RecordRecv(local.Net, int(res.Commit.MLength))
	}
}

// dropIncoming records a DROP outcome (§7 Overflow/NoMatch) and, when
// the matcher selected an MD before rejecting the request (overflow
// without TRUNCATE), notifies that MD's event queue with a DROP-marked
// event via a negative Finalize — the same machinery completePut/
// completeGet drive for a successful commit, just with MatchedMD left
// unset so no refcount/threshold is touched (§8 S2: "DROP event at
// sender side via negative finalize; MD.threshold and MD.offset
// unchanged"). A NoMatch drop has no MD to notify and stays silent
// per §4.1's failure semantics.
func (e *Engine) dropIncoming(local *ni.NI, hdr *wire.Header, res portal.MatchResult, length int) {
	portalIdx := hdr.Put.PortalIdx
	if hdr.Type == wire.TypeGet {
		portalIdx = hdr.Get.PortalIdx
	}

	reason := "no_match"
	ferr := ferrors.NewNoMatch(portalIdx)
	if res.Reason == portal.DropReasonOverflow {
		reason = "overflow"
		ferr = ferrors.NewOverflow("payload exceeds matched MD capacity without TRUNCATE")
	}
	if e.Metrics != nil {
		e.Metrics.RecordDrop(local.Net, reason, length)
	}
	e.logf("dropped %s from %s: %v", hdr.Type, hdr.SrcNID, res.Reason)

	md := res.Commit.MD
	if md == nil || md.EventQueue == nil {
		return
	}

	initiator := ids.ProcessID{NID: ids.NIDAny, PID: hdr.SrcPID}
	target := ids.ProcessID{NID: hdr.DestNID, PID: hdr.DestPID}

	msg := message.New(hdr.Type)
	msg.EventSink = md.EventQueue
	msg.Finalize(ferr, func(error) (portal.Event, bool) {
		if hdr.Type == wire.TypeGet {
			return message.BuildDropEvent(portal.EventGet, initiator, target, hdr.SrcNID,
				hdr.Get.PortalIdx, hdr.Get.MatchBits, hdr.Get.SinkLength, 0, md), true
		}
		return message.BuildDropEvent(portal.EventPut, initiator, target, hdr.SrcNID,
			hdr.Put.PortalIdx, hdr.Put.MatchBits, uint32(length), hdr.Put.HdrData, md), true
	})
}

func (e *Engine) handleAck(hdr *wire.Header) error {
	waiter, ok := e.takeWaiter(hdr.Ack.DstWMD)
	if !ok {
		return nil
	}
	initiator := ids.ProcessID{NID: ids.NIDAny, PID: hdr.DestPID}
	target := ids.ProcessID{NID: hdr.SrcNID, PID: hdr.SrcPID}
	ev := message.BuildAckEvent(initiator, target, hdr.SrcNID, hdr.Ack.MatchBits, hdr.Ack.MLength, waiter.MatchedMD)
	if waiter.EventSink != nil {
		waiter.EventSink.Notify(ev)
	}
	if waiter.MatchedMD != nil {
		waiter.MatchedMD.Release()
	}
	return nil
}

func (e *Engine) handleReply(local *ni.NI, hdr *wire.Header, priv any) error {
	waiter, ok := e.takeWaiter(hdr.Reply.DstWMD)
	if !ok {
		return nil
	}

	recvMsg := message.New(wire.TypeReply)
	md := waiter.MatchedMD
	if md != nil && md.Buffer != nil {
		recvMsg.SetPayload(md.Buffer, 0, hdr.PayloadLength)
	}
	err := local.Driver.Recv(local, priv, recvMsg, false, 0, hdr.PayloadLength, hdr.PayloadLength)

	initiator := ids.ProcessID{NID: ids.NIDAny, PID: hdr.DestPID}
	target := ids.ProcessID{NID: hdr.SrcNID, PID: hdr.SrcPID}
	ev := message.BuildReplyEvent(initiator, target, hdr.SrcNID, hdr.PayloadLength, md)
	if waiter.EventSink != nil && err == nil {
		waiter.EventSink.Notify(ev)
	}
	if md != nil {
		md.Release()
	}

	if e.Metrics != nil {
		e.Metrics.RecordRecv(local.Net, int(hdr.PayloadLength))
	}
	return err
}
