package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// TestTransport_PutWithAck_RoundTrip drives a PUT across two node
// engines wired directly to each other (no routing): the sender posts
// a PUT requesting an ACK, the receiver matches it against a posted
// MD and lands the payload, and the ACK it sends back resolves the
// sender's waiter and notifies the MD's event sink.
func TestTransport_PutWithAck_RoundTrip(t *testing.T) {
	src := newTestNode(t, ids.NewNID(1, 1))
	dst := newTestNode(t, ids.NewNID(1, 2))

	recvBuf := make([]byte, 64)
	var events []portal.Event
	sink := portal.EventSinkFunc(func(e portal.Event) { events = append(events, e) })
	attachRecvMD(t, dst.engine, 0, portal.OptPut, recvBuf, sink)

	sendBuf := []byte("hello fabric")
	sendMD := portal.NewMD(ids.Handle{}, uint32(len(sendBuf)), portal.OptPut, portal.ThresholdInfinite, 1, sink)
	sendMD.Buffer = sendBuf

	msg, err := src.engine.Send(SendRequest{
		Source:       ids.ProcessID{NID: src.ni0.NID, PID: 7},
		Target:       ids.ProcessID{NID: dst.ni0.NID, PID: 9},
		Kind:         wire.TypePut,
		MD:           sendMD,
		Offset:       0,
		Length:       uint32(len(sendBuf)),
		PortalIdx:    0,
		AckRequested: true,
	})
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, 1, src.drv0.sentCount())

	hdr := msg.Header
	require.Equal(t, wire.TypePut, hdr.Type)
	require.False(t, hdr.Put.AckWMD.IsNone())

	// Deliver the wire header to the destination as its driver would.
	require.NoError(t, dst.engine.HandleIncoming(dst.ni0, 0, &hdr, nil))
	require.Len(t, dst.drv0.recv, 1)
	require.Equal(t, uint32(len(sendBuf)), dst.drv0.recv[0].mlen)

	// The destination's single outgoing send is its ACK back to src.
	require.Equal(t, 1, dst.drv0.sentCount())

	// Feed the ACK header back into the source engine.
	ackHdr := wire.Header{
		Type:    wire.TypeAck,
		DestNID: src.ni0.NID,
		SrcNID:  dst.ni0.NID,
		DestPID: 7,
		SrcPID:  9,
		Ack: wire.AckUnion{
			DstWMD:    hdr.Put.AckWMD,
			MatchBits: hdr.Put.MatchBits,
			MLength:   uint32(len(sendBuf)),
		},
	}
	require.NoError(t, src.engine.HandleIncoming(src.ni0, 0, &ackHdr, nil))

	// Both sides should have emitted exactly one completion event: PUT
	// on the receiver, ACK on the sender.
	require.Len(t, events, 2)
	kinds := map[portal.EventType]int{}
	for _, e := range events {
		kinds[e.Type]++
	}
	require.Equal(t, 1, kinds[portal.EventPut])
	require.Equal(t, 1, kinds[portal.EventAck])

	// The sender's waiter must have been consumed; a second ACK for the
	// same handle is a no-op rather than a duplicate notify.
	require.NoError(t, src.engine.HandleIncoming(src.ni0, 0, &ackHdr, nil))
	require.Len(t, events, 2)
}

func TestTransport_Put_AckDisabledSuppressesAck(t *testing.T) {
	src := newTestNode(t, ids.NewNID(1, 1))
	dst := newTestNode(t, ids.NewNID(1, 2))

	attachRecvMD(t, dst.engine, 0, portal.OptPut|portal.OptAckDisable, make([]byte, 32), nil)

	sendBuf := []byte("no ack please")
	sendMD := portal.NewMD(ids.Handle{}, uint32(len(sendBuf)), portal.OptPut, portal.ThresholdInfinite, 1, nil)
	sendMD.Buffer = sendBuf

	msg, err := src.engine.Send(SendRequest{
		Source:       ids.ProcessID{NID: src.ni0.NID, PID: 1},
		Target:       ids.ProcessID{NID: dst.ni0.NID, PID: 2},
		Kind:         wire.TypePut,
		MD:           sendMD,
		Length:       uint32(len(sendBuf)),
		AckRequested: true,
	})
	require.NoError(t, err)
	hdr := msg.Header

	require.NoError(t, dst.engine.HandleIncoming(dst.ni0, 0, &hdr, nil))
	require.Equal(t, 0, dst.drv0.sentCount())
}

// TestTransport_Put_OverflowDropsWithEvent covers the overflow seed
// scenario (§7 Overflow, §8 S2): a PUT whose predicate matches a
// posted MD but whose length exceeds that MD's capacity, with
// TRUNCATE not set, must not land any bytes and must not send an ACK
// — but the matched MD's event queue still sees a DROP-marked PUT
// event with MLength 0, and the MD itself is left untouched (no
// refcount/threshold/offset change, so a later, smaller PUT can still
// match it).
func TestTransport_Put_OverflowDropsWithEvent(t *testing.T) {
	src := newTestNode(t, ids.NewNID(1, 1))
	dst := newTestNode(t, ids.NewNID(1, 2))

	var events []portal.Event
	sink := portal.EventSinkFunc(func(e portal.Event) { events = append(events, e) })
	recvMD := attachRecvMD(t, dst.engine, 0, portal.OptPut, make([]byte, 4), sink)

	sendBuf := []byte("too big for the MD")
	sendMD := portal.NewMD(ids.Handle{}, uint32(len(sendBuf)), portal.OptPut, portal.ThresholdInfinite, 1, nil)
	sendMD.Buffer = sendBuf

	msg, err := src.engine.Send(SendRequest{
		Source:       ids.ProcessID{NID: src.ni0.NID, PID: 1},
		Target:       ids.ProcessID{NID: dst.ni0.NID, PID: 2},
		Kind:         wire.TypePut,
		MD:           sendMD,
		Length:       uint32(len(sendBuf)),
		AckRequested: true,
	})
	require.NoError(t, err)
	hdr := msg.Header

	require.NoError(t, dst.engine.HandleIncoming(dst.ni0, 0, &hdr, nil))

	require.Equal(t, 0, len(dst.drv0.recv))
	require.Equal(t, 0, dst.drv0.sentCount())

	require.Len(t, events, 1)
	ev := events[0]
	require.Equal(t, portal.EventPut, ev.Type)
	require.True(t, ev.Dropped)
	require.Equal(t, uint32(0), ev.MLength)
	require.Equal(t, uint32(len(sendBuf)), ev.RLength)

	require.Equal(t, uint32(0), recvMD.Offset)
	require.Equal(t, portal.ThresholdInfinite, recvMD.Threshold)
	require.Equal(t, 0, recvMD.Refcount())
}

func TestTransport_Put_NoMatchDrops(t *testing.T) {
	src := newTestNode(t, ids.NewNID(1, 1))
	dst := newTestNode(t, ids.NewNID(1, 2))

	sendBuf := []byte("orphan")
	sendMD := portal.NewMD(ids.Handle{}, uint32(len(sendBuf)), portal.OptPut, portal.ThresholdInfinite, 1, nil)
	sendMD.Buffer = sendBuf

	msg, err := src.engine.Send(SendRequest{
		Source: ids.ProcessID{NID: src.ni0.NID, PID: 1},
		Target: ids.ProcessID{NID: dst.ni0.NID, PID: 2},
		Kind:   wire.TypePut,
		MD:     sendMD,
		Length: uint32(len(sendBuf)),
	})
	require.NoError(t, err)
	hdr := msg.Header

	// No MD has been posted on dst's portal 0, so the PUT must drop
	// cleanly rather than error.
	require.NoError(t, dst.engine.HandleIncoming(dst.ni0, 0, &hdr, nil))
	require.Equal(t, 0, dst.drv0.sentCount())
}
