package rpc

import (
	"context"
	"encoding/binary"

	"github.com/rs/xid"

	"github.com/lustre-net/lnetgo/pkg/bufpool"
	"github.com/lustre-net/lnetgo/pkg/ferrors"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/rpcwire"
	"github.com/lustre-net/lnetgo/pkg/transport"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// ClientConfig addresses a remote service for Client.Call.
type ClientConfig struct {
	ReqPortal  uint32
	RepPortal  uint32
	MaxRepSize int
	Partition  int
	LocalPID   ids.PID

	// ATSupport advertises adaptive-timeout support, enabling the
	// service to extend this request's deadline with early replies.
	ATSupport bool
}

// Client issues RPCs against services reachable through engine. It is
// the thin counterpart a test or a future in-process caller uses to
// exercise a Service end to end; it holds no state of its own beyond
// the engine reference.
type Client struct {
	engine *transport.Engine
}

// NewClient returns a Client bound to engine.
func NewClient(engine *transport.Engine) *Client {
	return &Client{engine: engine}
}

// Call sends body (opaque request bytes) to target and blocks for its
// reply, honoring ctx's deadline. It transparently absorbs any number
// of early replies before returning the final one (§4.6 "Adaptive
// timeouts").
func (c *Client) Call(ctx context.Context, target ids.ProcessID, cfg ClientConfig, opcode uint32, body []byte) (*rpcwire.Envelope, error) {
	x := xid.New()
	requestXID := xidToUint64(x)

	repSize := cfg.MaxRepSize
	if repSize <= 0 {
		repSize = bufpool.DefaultSmallSize
	}
	repBuf := bufpool.Get(repSize)
	defer bufpool.Put(repBuf)

	events := make(chan portal.Event, 4)
	sink := portal.EventSinkFunc(func(ev portal.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	handle := c.engine.Cookies.Next()
	// Threshold is infinite rather than auto-unlinking after a fixed
	// count: a service may send any number of early replies before the
	// final one (§4.6 "Adaptive timeouts"), so the loop below unlinks
	// the MD itself once it recognizes the non-early reply.
	md := portal.NewMD(handle, uint32(len(repBuf)), portal.OptPut, portal.ThresholdInfinite, 1, sink)
	md.Buffer = repBuf
	me := &portal.ME{NID: target.NID, PID: ids.PIDAny, MatchBits: requestXID, OpMask: portal.OpPut, PortalIndex: cfg.RepPortal}
	if err := c.engine.Portals.AttachMD(cfg.RepPortal, cfg.Partition, me, md, portal.PositionAfter); err != nil {
		return nil, err
	}

	env := &rpcwire.Envelope{
		Opcode: opcode,
		XID:    requestXID,
		Segments: []rpcwire.Segment{
			{Type: segFlags, Data: flagsBytes(cfg.ATSupport)},
			{Type: segBody, Data: body},
		},
	}
	reqBytes, err := env.Encode()
	if err != nil {
		md.Unlink()
		return nil, err
	}

	reqBuf := bufpool.Get(len(reqBytes))
	n := copy(reqBuf, reqBytes)
	reqBuf = reqBuf[:n]
	reqMD := portal.NewMD(c.engine.Cookies.Next(), uint32(len(reqBuf)), portal.OptPut, 1, 1,
		portal.EventSinkFunc(func(ev portal.Event) {
			if ev.Type == portal.EventSend {
				bufpool.Put(reqBuf)
			}
		}))
	reqMD.Buffer = reqBuf

	if _, err := c.engine.Send(transport.SendRequest{
		Source:    ids.ProcessID{PID: cfg.LocalPID},
		Target:    target,
		Kind:      wire.TypePut,
		MD:        reqMD,
		Length:    uint32(len(reqBuf)),
		PortalIdx: cfg.ReqPortal,
		MatchBits: requestXID,
		Partition: cfg.Partition,
	}); err != nil {
		md.Unlink()
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			md.Unlink()
			return nil, ferrors.NewTimeout("rpc call timed out")
		case ev := <-events:
			if ev.Type != portal.EventPut {
				continue
			}
			reply, err := rpcwire.Decode(repBuf[ev.Offset : ev.Offset+ev.MLength])
			if err != nil {
				md.Unlink()
				return nil, err
			}
			if reply.Status == earlyReplyStatus {
				continue
			}
			md.Unlink()
			return reply, nil
		}
	}
}

func flagsBytes(atSupport bool) []byte {
	var flags uint32
	if atSupport {
		flags |= atSupportFlag
	}
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, flags)
	return buf
}

// xidToUint64 folds an xid.ID's 12 bytes into a uint64 match-bits
// value; collisions are avoided by pairing with the reply portal's
// per-client MD, not by xid uniqueness alone.
func xidToUint64(x xid.ID) uint64 {
	b := x.Bytes()
	return binary.BigEndian.Uint64(b[4:])
}
