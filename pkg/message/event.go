package message

import (
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/portal"
)

// BuildSendEvent constructs the SEND event emitted at the initiator on
// transmit completion (§4.5): "initiator NID on the wire is cleared to
// ANY".
func (m *Message) BuildSendEvent(self ids.ProcessID, target ids.ProcessID) portal.Event {
	return portal.Event{
		Type:      portal.EventSend,
		Initiator: ids.ProcessID{NID: ids.NIDAny, PID: self.PID},
		Target:    target,
	}
}

// BuildPutEvent constructs the PUT event emitted at the matching target
// once reception has committed into an MD.
func BuildPutEvent(initiator, target ids.ProcessID, senderNID ids.NID, portalIdx uint32, matchBits uint64, rlength, mlength, offset uint32, hdrData uint64, md *portal.MD, commit portal.Commit) portal.Event {
	return portal.Event{
		Type:        portal.EventPut,
		Initiator:   initiator,
		Target:      target,
		SenderNID:   senderNID,
		PortalIndex: portalIdx,
		MatchBits:   matchBits,
		RLength:     rlength,
		MLength:     mlength,
		Offset:      offset,
		HdrData:     hdrData,
		MDHandle:    mdHandle(md),
		MDSnapshot:  portal.MDSnapshot{Threshold: commit.ThresholdSnapshot},
	}
}

// BuildGetEvent constructs the GET event emitted at the matching target
// of a GET (the sender is the header's src-nid for the optimized GET
// path, per §4.5).
func BuildGetEvent(initiator, target ids.ProcessID, senderNID ids.NID, portalIdx uint32, matchBits uint64, rlength, mlength, offset uint32, md *portal.MD, commit portal.Commit) portal.Event {
	return portal.Event{
		Type:        portal.EventGet,
		Initiator:   initiator,
		Target:      target,
		SenderNID:   senderNID,
		PortalIndex: portalIdx,
		MatchBits:   matchBits,
		RLength:     rlength,
		MLength:     mlength,
		Offset:      offset,
		MDHandle:    mdHandle(md),
		MDSnapshot:  portal.MDSnapshot{Threshold: commit.ThresholdSnapshot},
	}
}

// BuildReplyEvent constructs the REPLY event emitted at the GET
// initiator on REPLY reception.
func BuildReplyEvent(initiator, target ids.ProcessID, senderNID ids.NID, mlength uint32, md *portal.MD) portal.Event {
	return portal.Event{
		Type:      portal.EventReply,
		Initiator: initiator,
		Target:    target,
		SenderNID: senderNID,
		MLength:   mlength,
		MDHandle:  mdHandle(md),
	}
}

// BuildAckEvent constructs the ACK event emitted at the original PUT
// initiator on ACK reception.
func BuildAckEvent(initiator, target ids.ProcessID, senderNID ids.NID, matchBits uint64, mlength uint32, md *portal.MD) portal.Event {
	return portal.Event{
		Type:      portal.EventAck,
		Initiator: initiator,
		Target:    target,
		SenderNID: senderNID,
		MatchBits: matchBits,
		MLength:   mlength,
		MDHandle:  mdHandle(md),
	}
}

// BuildDropEvent constructs a DROP-marked event for a PUT or GET whose
// predicate matched an ME but whose length policy rejected it without
// TRUNCATE (§4.1, §7 "Overflow": "MD not consumed, event with DROP
// marker emitted"). mlength is always 0: the MD absorbed nothing, and
// its MDSnapshot reflects the MD's unchanged threshold/offset rather
// than a commit-time snapshot.
func BuildDropEvent(kind portal.EventType, initiator, target ids.ProcessID, senderNID ids.NID, portalIdx uint32, matchBits uint64, rlength uint32, hdrData uint64, md *portal.MD) portal.Event {
	var snap portal.MDSnapshot
	if md != nil {
		snap = md.Snapshot()
	}
	return portal.Event{
		Type:        kind,
		Initiator:   initiator,
		Target:      target,
		SenderNID:   senderNID,
		PortalIndex: portalIdx,
		MatchBits:   matchBits,
		RLength:     rlength,
		HdrData:     hdrData,
		MDHandle:    mdHandle(md),
		MDSnapshot:  snap,
		Dropped:     true,
	}
}

func mdHandle(md *portal.MD) ids.Handle {
	if md == nil {
		return ids.HandleNone
	}
	return md.Handle
}
