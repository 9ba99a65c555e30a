package rpc

import (
	"github.com/lustre-net/lnetgo/pkg/bufpool"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/portal"
)

// rqbd is one posted request-buffer descriptor: a bufsize-byte region
// attached to the service's request portal as a lazy-portal MD with
// AUTO_UNLINK (§4.6 "Posting buffers"). Its threshold is the number of
// max_req_size-sized requests the buffer can still accept; each commit
// decrements it, and the MD auto-unlinks once it reaches zero.
type rqbd struct {
	md  *portal.MD
	buf []byte
}

// postOne allocates a fresh rqbd from the buffer pool and attaches it
// to the service's request portal. Called both at startup (postGroup)
// and whenever the previous generation's buffers run low.
func (s *Service) postOne() {
	buf := bufpool.Get(s.cfg.BufSize)

	perBuffer := s.cfg.BufSize / s.cfg.MaxReqSize
	if perBuffer < 1 {
		perBuffer = 1
	}

	handle := s.engine.Cookies.Next()
	md := portal.NewMD(handle, uint32(len(buf)), portal.OptPut|portal.OptAutoUnlink, perBuffer, 1,
		portal.EventSinkFunc(s.onRqbdEvent))
	md.Buffer = buf

	rb := &rqbd{md: md, buf: buf}

	s.bufMu.Lock()
	s.rqbds[md.Handle] = rb
	s.bufMu.Unlock()

	me := &portal.ME{
		NID:         ids.NIDAny,
		PID:         ids.PIDAny,
		IgnoreBits:  ^uint64(0),
		OpMask:      portal.OpPut,
		PortalIndex: s.cfg.ReqPortal,
	}
	if err := s.engine.Portals.AttachMD(s.cfg.ReqPortal, s.cfg.Partition, me, md, portal.PositionAfter); err != nil {
		s.bufMu.Lock()
		delete(s.rqbds, md.Handle)
		s.bufMu.Unlock()
		bufpool.Put(buf)
		return
	}
}

// postGroup posts NBufs fresh rqbds (8 if NBufs is unset). Called once
// at Start and again whenever fewer than half that many remain posted
// (§4.6).
func (s *Service) postGroup() {
	n := s.cfg.NBufs
	if n <= 0 {
		n = 8
	}
	for i := 0; i < n; i++ {
		s.postOne()
	}
}

// onRqbdEvent is the EventSink every posted rqbd MD notifies on PUT
// (a request landed) and UNLINK (the buffer is exhausted and has been
// released by the matching engine). On PUT it copies the landed bytes
// and calls enqueueIncoming, so the envelope is decoded here, on the
// event path, not on the service thread that later dequeues the
// resulting incoming request record.
func (s *Service) onRqbdEvent(ev portal.Event) {
	switch ev.Type {
	case portal.EventPut:
		s.bufMu.Lock()
		rb, ok := s.rqbds[ev.MDHandle]
		s.bufMu.Unlock()
		if !ok {
			return
		}
		data := append([]byte(nil), rb.buf[ev.Offset:ev.Offset+ev.MLength]...)
		s.enqueueIncoming(ev, data)
	case portal.EventUnlink:
		s.bufMu.Lock()
		delete(s.rqbds, ev.MDHandle)
		posted := len(s.rqbds)
		s.bufMu.Unlock()
		groupSize := s.cfg.NBufs
		if groupSize <= 0 {
			groupSize = 8
		}
		if posted < groupSize/2 && !s.stopping.Load() {
			go s.postGroup()
		}
	}
}

// unlinkAll flags every currently posted rqbd for release, the first
// step of shutdown (§4.6 "Shutdown").
func (s *Service) unlinkAll() {
	s.bufMu.Lock()
	rbs := make([]*rqbd, 0, len(s.rqbds))
	for _, rb := range s.rqbds {
		rbs = append(rbs, rb)
	}
	s.bufMu.Unlock()

	for _, rb := range rbs {
		rb.md.Unlink()
	}
}
