package rpc

import (
	"time"

	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/rpcwire"
)

// PingOpcode is always treated as a high-priority request (§4.6
// "Thread scheduling"), the same way original_source's ptlrpc reserves
// OBD_PING for the HP queue regardless of any service predicate.
const PingOpcode uint32 = 1

// atSupportFlag marks the client-advertised AT-support bit, carried in
// a reserved flags segment (segFlags) every Client request includes; a
// service never sends an early reply to a client that didn't set it
// (§4.6). rpcwire.Envelope has no dedicated flags field, so this rides
// in a segment the same way a bulk descriptor would.
const atSupportFlag uint32 = 1 << 0

// earlyReplyStatus marks a reply envelope as an early reply: the
// client (pkg/rpc/client.go) recognizes it and extends its wait
// instead of treating it as the request's final answer.
const earlyReplyStatus int32 = -1

// segFlags is the reserved Segment.Type carrying the 4-byte
// little-endian flags word a Client request always sends first.
// segBody is the conventional type for the request/reply payload
// itself.
const (
	segFlags uint32 = 0
	segBody  uint32 = 1
)

// flagsOf scans env's segments for the reserved flags segment and
// returns its value, or 0 if absent.
func flagsOf(env *rpcwire.Envelope) uint32 {
	for _, seg := range env.Segments {
		if seg.Type == segFlags && len(seg.Data) >= 4 {
			return uint32(seg.Data[0]) | uint32(seg.Data[1])<<8 | uint32(seg.Data[2])<<16 | uint32(seg.Data[3])<<24
		}
	}
	return 0
}

// bodyOf returns the request/reply payload segment's bytes, or nil if
// absent.
func bodyOf(env *rpcwire.Envelope) []byte {
	for _, seg := range env.Segments {
		if seg.Type == segBody {
			return seg.Data
		}
	}
	return nil
}

// Request is one incoming RPC handed to a HandlerFunc. It is valid
// only for the duration of the handler call: once a Reply has been
// sent, the backing rqbd slot may be reused.
type Request struct {
	XID      uint64
	Opcode   uint32
	Envelope *rpcwire.Envelope
	Source   ids.ProcessID

	Arrival   time.Time
	Deadline  time.Time
	atSupport bool
	hp        bool
}

// ATSupport reports whether the client advertised adaptive-timeout
// support, gating whether an early reply may be sent for this request.
func (r *Request) ATSupport() bool { return r.atSupport }

// HP reports whether this request was scheduled on the high-priority
// queue.
func (r *Request) HP() bool { return r.hp }

// Body returns the request payload segment, or nil if the caller sent
// none.
func (r *Request) Body() []byte { return bodyOf(r.Envelope) }

// Reply is the response a HandlerFunc produces. Difficult marks a
// reply that requires the client's ACK before its resources may be
// released (§4.6 "Reply state").
type Reply struct {
	Envelope  *rpcwire.Envelope
	Difficult bool
}

// HandlerFunc processes one Request and produces a Reply, or an error
// if the request cannot be satisfied (translated to a non-zero
// Envelope.Status reply by the caller).
type HandlerFunc func(req *Request) (*Reply, error)

// HPPredicate evaluates a decoded request at enqueue time to decide
// whether it belongs on the high-priority queue, beyond the built-in
// ping-opcode rule.
type HPPredicate func(opcode uint32, env *rpcwire.Envelope) bool
