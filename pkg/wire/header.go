// Package wire implements the fixed 72-byte little-endian message
// header defined for the transport core, plus its four op-specific
// unions (PUT, GET, REPLY, ACK) and HELLO's opaque payload.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/lustre-net/lnetgo/pkg/ferrors"
	"github.com/lustre-net/lnetgo/pkg/ids"
)

// Type identifies the message kind carried by a header.
type Type uint32

const (
	TypePut   Type = 1
	TypeGet   Type = 2
	TypeReply Type = 3
	TypeAck   Type = 4
	TypeHello Type = 5
)

func (t Type) String() string {
	switch t {
	case TypePut:
		return "PUT"
	case TypeGet:
		return "GET"
	case TypeReply:
		return "REPLY"
	case TypeAck:
		return "ACK"
	case TypeHello:
		return "HELLO"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
	}
}

// HeaderSize is the fixed on-wire size of a Header, in bytes.
const HeaderSize = 72

// opUnionSize is the fixed size of the op_union field.
const opUnionSize = 40

// Header is the fixed 72-byte message header shared by all message
// types. All multi-byte fields are little-endian on the wire.
type Header struct {
	Type          Type
	PayloadLength uint32
	DestNID       ids.NID
	SrcNID        ids.NID
	DestPID       ids.PID
	SrcPID        ids.PID

	Put   PutUnion
	Get   GetUnion
	Reply ReplyUnion
	Ack   AckUnion
	Hello []byte // opaque, driver-negotiated, truncated/padded to opUnionSize
}

// PutUnion is the op_union layout for a PUT header.
type PutUnion struct {
	AckWMD     ids.Handle
	MatchBits  uint64
	HdrData    uint64
	PortalIdx  uint32
	Offset     uint32
}

// GetUnion is the op_union layout for a GET header.
type GetUnion struct {
	ReturnWMD  ids.Handle
	MatchBits  uint64
	PortalIdx  uint32
	SrcOffset  uint32
	SinkLength uint32
}

// ReplyUnion is the op_union layout for a REPLY header.
type ReplyUnion struct {
	DstWMD ids.Handle
}

// AckUnion is the op_union layout for an ACK header.
type AckUnion struct {
	DstWMD    ids.Handle
	MatchBits uint64
	MLength   uint32
}

// Encode serializes h into its 72-byte wire representation.
func (h *Header) Encode() ([]byte, error) {
	if err := h.validatePayloadLength(); err != nil {
		return nil, err
	}

	buf := make([]byte, HeaderSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:4], uint32(h.Type))
	le.PutUint32(buf[4:8], h.PayloadLength)
	le.PutUint64(buf[8:16], uint64(h.DestNID))
	le.PutUint64(buf[16:24], uint64(h.SrcNID))
	le.PutUint32(buf[24:28], uint32(h.DestPID))
	le.PutUint32(buf[28:32], uint32(h.SrcPID))

	op := buf[32 : 32+opUnionSize]
	switch h.Type {
	case TypePut:
		le.PutUint64(op[0:8], h.Put.AckWMD.Interface)
		le.PutUint64(op[8:16], h.Put.AckWMD.Object)
		le.PutUint64(op[16:24], h.Put.MatchBits)
		le.PutUint64(op[24:32], h.Put.HdrData)
		le.PutUint32(op[32:36], h.Put.PortalIdx)
		le.PutUint32(op[36:40], h.Put.Offset)
	case TypeGet:
		le.PutUint64(op[0:8], h.Get.ReturnWMD.Interface)
		le.PutUint64(op[8:16], h.Get.ReturnWMD.Object)
		le.PutUint64(op[16:24], h.Get.MatchBits)
		le.PutUint32(op[24:28], h.Get.PortalIdx)
		le.PutUint32(op[28:32], h.Get.SrcOffset)
		le.PutUint32(op[32:36], h.Get.SinkLength)
	case TypeReply:
		le.PutUint64(op[0:8], h.Reply.DstWMD.Interface)
		le.PutUint64(op[8:16], h.Reply.DstWMD.Object)
	case TypeAck:
		le.PutUint64(op[0:8], h.Ack.DstWMD.Interface)
		le.PutUint64(op[8:16], h.Ack.DstWMD.Object)
		le.PutUint64(op[16:24], h.Ack.MatchBits)
		le.PutUint32(op[24:28], h.Ack.MLength)
	case TypeHello:
		copy(op, h.Hello)
	default:
		return nil, ferrors.NewProtocolError(fmt.Sprintf("unknown message type %d", uint32(h.Type)))
	}

	return buf, nil
}

// Decode parses a 72-byte wire header from buf.
func Decode(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, ferrors.NewProtocolError(fmt.Sprintf("short header: got %d bytes, want %d", len(buf), HeaderSize))
	}

	le := binary.LittleEndian
	h := &Header{
		Type:          Type(le.Uint32(buf[0:4])),
		PayloadLength: le.Uint32(buf[4:8]),
		DestNID:       ids.NID(le.Uint64(buf[8:16])),
		SrcNID:        ids.NID(le.Uint64(buf[16:24])),
		DestPID:       ids.PID(le.Uint32(buf[24:28])),
		SrcPID:        ids.PID(le.Uint32(buf[28:32])),
	}

	op := buf[32 : 32+opUnionSize]
	switch h.Type {
	case TypePut:
		h.Put = PutUnion{
			AckWMD:    ids.Handle{Interface: le.Uint64(op[0:8]), Object: le.Uint64(op[8:16])},
			MatchBits: le.Uint64(op[16:24]),
			HdrData:   le.Uint64(op[24:32]),
			PortalIdx: le.Uint32(op[32:36]),
			Offset:    le.Uint32(op[36:40]),
		}
	case TypeGet:
		h.Get = GetUnion{
			ReturnWMD:  ids.Handle{Interface: le.Uint64(op[0:8]), Object: le.Uint64(op[8:16])},
			MatchBits:  le.Uint64(op[16:24]),
			PortalIdx:  le.Uint32(op[24:28]),
			SrcOffset:  le.Uint32(op[28:32]),
			SinkLength: le.Uint32(op[32:36]),
		}
	case TypeReply:
		h.Reply = ReplyUnion{DstWMD: ids.Handle{Interface: le.Uint64(op[0:8]), Object: le.Uint64(op[8:16])}}
	case TypeAck:
		h.Ack = AckUnion{
			DstWMD:    ids.Handle{Interface: le.Uint64(op[0:8]), Object: le.Uint64(op[8:16])},
			MatchBits: le.Uint64(op[16:24]),
			MLength:   le.Uint32(op[24:28]),
		}
	case TypeHello:
		h.Hello = append([]byte(nil), op...)
	default:
		return nil, ferrors.NewProtocolError(fmt.Sprintf("unknown message type %d", uint32(h.Type)))
	}

	if err := h.validatePayloadLength(); err != nil {
		return nil, err
	}
	return h, nil
}

// validatePayloadLength enforces the §6.2 rule that ACK and GET carry
// no payload.
func (h *Header) validatePayloadLength() error {
	if (h.Type == TypeAck || h.Type == TypeGet) && h.PayloadLength != 0 {
		return ferrors.NewProtocolError(fmt.Sprintf("%s must carry zero-length payload, got %d", h.Type, h.PayloadLength))
	}
	return nil
}
