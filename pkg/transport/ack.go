package transport

import (
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/message"
	"github.com/lustre-net/lnetgo/pkg/ni"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// rawSend drives a message that carries no caller-visible MD and
// expects no completion event of its own (an outgoing ACK or REPLY):
// resolve the destination, charge the usual two outbound credit types,
// and hand off to the driver. It is the SEND path minus the MD/waiter
// bookkeeping that only applies to a caller-initiated PUT or GET.
func (e *Engine) rawSend(dest ids.ProcessID, kind wire.Type, build func(targetNI *ni.NI) wire.Header, payload []byte, partition int) {
	targetNI, nextHop, routed, err := e.resolveDestination(dest.NID, ids.NIDAny)
	if err != nil {
		e.logf("cannot send %s to %s: %v", kind, dest.NID, err)
		return
	}

	peer := e.PeerFor(nextHop, targetNI.NID, targetNI, false)

	msg := message.New(kind)
	msg.Header = build(targetNI)
	msg.TxPeer = nextHop

	a := &sendAttempt{
		e:        e,
		msg:      msg,
		req:      SendRequest{Target: dest, Partition: partition},
		targetNI: targetNI,
		nextHop:  nextHop,
		routed:   routed,
		peerPool: peer.TxCredits,
		niPool:   targetNI.TxCredits(partition),
		payload:  payload,
	}
	a.attempt()
}

// sendAck transmits an ACK in response to a PUT that requested one
// (§4.1, §6.2). inHdr is the PUT header that triggered it.
func (e *Engine) sendAck(local *ni.NI, inHdr *wire.Header, mlength uint32) {
	dest := ids.ProcessID{NID: inHdr.SrcNID, PID: inHdr.SrcPID}
	e.rawSend(dest, wire.TypeAck, func(targetNI *ni.NI) wire.Header {
		return wire.Header{
			Type:    wire.TypeAck,
			DestNID: inHdr.SrcNID,
			DestPID: inHdr.SrcPID,
			SrcNID:  targetNI.NID,
			SrcPID:  inHdr.DestPID,
			Ack: wire.AckUnion{
				DstWMD:    inHdr.Put.AckWMD,
				MatchBits: inHdr.Put.MatchBits,
				MLength:   mlength,
			},
		}
	}, nil, 0)
}

// sendReply transmits the REPLY carrying the data a GET's matched MD
// supplied (§4.1). req.Target/req.Source address the requester; dstWMD
// is the handle the requester is waiting on.
func (e *Engine) sendReply(req SendRequest, dstWMD ids.Handle, payload []byte) {
	e.rawSend(req.Target, wire.TypeReply, func(targetNI *ni.NI) wire.Header {
		return wire.Header{
			Type:          wire.TypeReply,
			PayloadLength: uint32(len(payload)),
			DestNID:       req.Target.NID,
			DestPID:       req.Target.PID,
			SrcNID:        targetNI.NID,
			SrcPID:        req.Source.PID,
			Reply:         wire.ReplyUnion{DstWMD: dstWMD},
		}
	}, payload, req.Partition)
}
