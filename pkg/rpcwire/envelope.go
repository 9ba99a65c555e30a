// Package rpcwire implements the RPC request/reply envelope (§6.3): a
// length-prefixed frame carrying magic, opcode, status, transno, xid,
// handle, timeout and service-time fields, plus one or more typed
// buffer segments. Byte-swap detection is by magic; per-segment swab
// is recorded as a bitmask on the decoded Envelope.
//
// The envelope reuses the big-endian XDR primitives already used
// elsewhere in this codebase rather than inventing a second codec; the
// fixed little-endian transport header in pkg/wire is unrelated and
// deliberately does not share this format (see §6.2 vs §6.3).
package rpcwire

import (
	"bytes"
	"fmt"

	"github.com/lustre-net/lnetgo/internal/protocol/xdr"
	"github.com/lustre-net/lnetgo/pkg/ferrors"
	"github.com/lustre-net/lnetgo/pkg/ids"
)

// Magic identifies the envelope's byte order. MagicSwabbed is the
// byte-reversed form of Magic; observing it on decode means every
// multi-byte field in the envelope must be reversed.
const (
	Magic        uint32 = 0x0BD00BD0
	MagicSwabbed uint32 = 0xD00BD00B
)

// Segment is one typed, variable-length buffer carried by the envelope
// (a request buffer, a reply buffer, a bulk descriptor, ...).
type Segment struct {
	Type uint32
	Data []byte
}

// Envelope is a decoded RPC request or reply frame.
type Envelope struct {
	Opcode      uint32
	Status      int32
	Transno     uint64
	XID         uint64
	Handle      ids.Handle
	Timeout     uint32 // seconds
	ServiceTime uint32 // seconds, reply only; 0 on requests
	SwabMask    uint64 // bit i set => Segments[i] required byte-swap on decode
	Segments    []Segment
}

// Encode serializes e into a length-prefixed frame: [total length:u32]
// [magic:u32][opcode][status][transno][xid][handle][timeout]
// [service_time][segment count:u32]{[type:u32][opaque data]}...
func (e *Envelope) Encode() ([]byte, error) {
	var body bytes.Buffer

	if err := xdr.WriteUint32(&body, Magic); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&body, e.Opcode); err != nil {
		return nil, err
	}
	if err := xdr.WriteInt32(&body, e.Status); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint64(&body, e.Transno); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint64(&body, e.XID); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint64(&body, e.Handle.Interface); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint64(&body, e.Handle.Object); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&body, e.Timeout); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&body, e.ServiceTime); err != nil {
		return nil, err
	}
	if err := xdr.WriteUint32(&body, uint32(len(e.Segments))); err != nil {
		return nil, err
	}
	for _, seg := range e.Segments {
		if err := xdr.WriteUint32(&body, seg.Type); err != nil {
			return nil, err
		}
		if err := xdr.WriteXDROpaque(&body, seg.Data); err != nil {
			return nil, err
		}
	}

	var frame bytes.Buffer
	if err := xdr.WriteUint32(&frame, uint32(body.Len())); err != nil {
		return nil, err
	}
	frame.Write(body.Bytes())
	return frame.Bytes(), nil
}

// Decode parses a length-prefixed frame previously produced by Encode.
// It detects byte order from the magic and, when the frame was written
// with the opposite order, swabs every segment's length-prefixed
// opaque field inline so Segments is always returned host-ordered; the
// per-segment bit in SwabMask is retained for callers that need to
// prove the frame actually required swabbing (tests, diagnostics).
func Decode(buf []byte) (*Envelope, error) {
	if len(buf) < 4 {
		return nil, ferrors.NewProtocolError("short frame: missing length prefix")
	}
	r := bytes.NewReader(buf)

	length, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	if int(length) > r.Len() {
		return nil, ferrors.NewProtocolError(fmt.Sprintf("frame length %d exceeds available %d bytes", length, r.Len()))
	}

	magic, err := xdr.DecodeUint32(r)
	if err != nil {
		return nil, err
	}
	if magic != Magic && magic != MagicSwabbed {
		return nil, ferrors.NewProtocolError(fmt.Sprintf("bad envelope magic 0x%x", magic))
	}
	swabbed := magic == MagicSwabbed

	e := &Envelope{}
	var opcode, timeout, svcTime, segCount uint32
	var status int32
	var transno, xid, ifaceCookie, objCookie uint64

	if opcode, err = xdr.DecodeUint32(r); err != nil {
		return nil, err
	}
	if status, err = xdr.DecodeInt32(r); err != nil {
		return nil, err
	}
	if transno, err = xdr.DecodeUint64(r); err != nil {
		return nil, err
	}
	if xid, err = xdr.DecodeUint64(r); err != nil {
		return nil, err
	}
	if ifaceCookie, err = xdr.DecodeUint64(r); err != nil {
		return nil, err
	}
	if objCookie, err = xdr.DecodeUint64(r); err != nil {
		return nil, err
	}
	if timeout, err = xdr.DecodeUint32(r); err != nil {
		return nil, err
	}
	if svcTime, err = xdr.DecodeUint32(r); err != nil {
		return nil, err
	}
	if segCount, err = xdr.DecodeUint32(r); err != nil {
		return nil, err
	}

	e.Opcode = swab32(opcode, swabbed)
	e.Status = int32(swab32(uint32(status), swabbed))
	e.Transno = swab64(transno, swabbed)
	e.XID = swab64(xid, swabbed)
	e.Handle = ids.Handle{
		Interface: swab64(ifaceCookie, swabbed),
		Object:    swab64(objCookie, swabbed),
	}
	e.Timeout = swab32(timeout, swabbed)
	e.ServiceTime = swab32(svcTime, swabbed)

	n := swab32(segCount, swabbed)
	e.Segments = make([]Segment, 0, n)
	for i := uint32(0); i < n; i++ {
		segType, err := xdr.DecodeUint32(r)
		if err != nil {
			return nil, err
		}
		data, err := xdr.DecodeOpaque(r)
		if err != nil {
			return nil, err
		}
		if swabbed {
			e.SwabMask |= 1 << uint(i)
		}
		e.Segments = append(e.Segments, Segment{Type: swab32(segType, swabbed), Data: data})
	}

	return e, nil
}

func swab32(v uint32, swab bool) uint32 {
	if !swab {
		return v
	}
	return (v&0x000000ff)<<24 | (v&0x0000ff00)<<8 | (v&0x00ff0000)>>8 | (v&0xff000000)>>24
}

func swab64(v uint64, swab bool) uint64 {
	if !swab {
		return v
	}
	return uint64(swab32(uint32(v), true))<<32 | uint64(swab32(uint32(v>>32), true))
}
