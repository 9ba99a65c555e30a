package rpc

import (
	"github.com/lustre-net/lnetgo/pkg/bufpool"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/transport"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// replyState backs one difficult reply kept on active-replies until
// its ACK is observed or it is evicted (§4.6 "Reply state").
type replyState struct {
	xid    uint64
	target ids.ProcessID
	buf    []byte
}

// sendReply transmits a handler's Reply as a PUT to the client's reply
// portal, matching on the request's XID. Simple replies free their
// buffer as soon as the send completes; difficult replies are kept on
// active-replies until their ACK lands.
func (s *Service) sendReply(req *Request, reply *Reply) {
	body, err := reply.Envelope.Encode()
	if err != nil {
		s.dropped.Add(1)
		return
	}

	buf := bufpool.Get(s.cfg.MaxRepSize)
	n := copy(buf, body)
	buf = buf[:n]

	var sink portal.EventSink
	if reply.Difficult {
		rs := &replyState{xid: req.XID, target: req.Source, buf: buf}
		s.replyMu.Lock()
		s.active[req.XID] = rs
		s.replyMu.Unlock()
		sink = portal.EventSinkFunc(func(ev portal.Event) { s.onReplyAck(req.XID, ev) })
	} else {
		sink = portal.EventSinkFunc(func(ev portal.Event) {
			if ev.Type == portal.EventSend {
				bufpool.Put(buf)
			}
		})
	}

	handle := s.engine.Cookies.Next()
	md := portal.NewMD(handle, uint32(len(buf)), portal.OptPut, 1, 1, sink)
	md.Buffer = buf

	s.engine.Send(transport.SendRequest{
		Source:       ids.ProcessID{PID: s.cfg.LocalPID},
		Target:       req.Source,
		Kind:         wire.TypePut,
		MD:           md,
		Length:       uint32(len(buf)),
		PortalIdx:    s.cfg.RepPortal,
		MatchBits:    req.XID,
		AckRequested: reply.Difficult,
		Partition:    s.cfg.Partition,
	})
	s.repSent.Add(1)
}

// onReplyAck releases a difficult reply's resources once its ACK
// arrives.
func (s *Service) onReplyAck(xid uint64, ev portal.Event) {
	if ev.Type != portal.EventAck {
		return
	}
	s.replyMu.Lock()
	rs, ok := s.active[xid]
	if ok {
		delete(s.active, xid)
	}
	s.replyMu.Unlock()
	if ok {
		bufpool.Put(rs.buf)
	}
}

// EvictReplies drops every active difficult reply addressed to target,
// releasing their buffers without waiting for an ACK that will never
// arrive (§4.6: "kept on active-replies until the ACK is observed OR
// the export is evicted").
func (s *Service) EvictReplies(target ids.ProcessID) {
	s.replyMu.Lock()
	var evicted []*replyState
	for xid, rs := range s.active {
		if rs.target == target {
			evicted = append(evicted, rs)
			delete(s.active, xid)
		}
	}
	s.replyMu.Unlock()

	for _, rs := range evicted {
		bufpool.Put(rs.buf)
	}
}

// ActiveReplyCount returns the number of difficult replies still
// awaiting their ACK.
func (s *Service) ActiveReplyCount() int {
	s.replyMu.Lock()
	defer s.replyMu.Unlock()
	return len(s.active)
}
