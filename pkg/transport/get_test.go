package transport

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// TestTransport_Get_RoundTrip drives a GET against a remote MD: the
// requester sends a GET, the responder matches it and sources a REPLY
// from its own MD's buffer, and the requester's REPLY handler lands
// the bytes into its waiter's sink MD.
func TestTransport_Get_RoundTrip(t *testing.T) {
	requester := newTestNode(t, ids.NewNID(1, 1))
	responder := newTestNode(t, ids.NewNID(1, 2))

	sourceData := []byte("served over GET")
	var responderEvents []portal.Event
	responderSink := portal.EventSinkFunc(func(e portal.Event) { responderEvents = append(responderEvents, e) })
	attachRecvMD(t, responder.engine, 0, portal.OptGet, sourceData, responderSink)

	sinkBuf := make([]byte, len(sourceData))
	var requesterEvents []portal.Event
	requesterSink := portal.EventSinkFunc(func(e portal.Event) { requesterEvents = append(requesterEvents, e) })
	sinkMD := portal.NewMD(ids.Handle{}, uint32(len(sinkBuf)), portal.OptGet, portal.ThresholdInfinite, 1, requesterSink)
	sinkMD.Buffer = sinkBuf

	msg, err := requester.engine.Send(SendRequest{
		Source:    ids.ProcessID{NID: requester.ni0.NID, PID: 1},
		Target:    ids.ProcessID{NID: responder.ni0.NID, PID: 2},
		Kind:      wire.TypeGet,
		MD:        sinkMD,
		Length:    uint32(len(sourceData)),
		PortalIdx: 0,
	})
	require.NoError(t, err)
	hdr := msg.Header
	require.False(t, hdr.Get.ReturnWMD.IsNone())

	require.NoError(t, responder.engine.HandleIncoming(responder.ni0, 0, &hdr, nil))
	require.Equal(t, 1, responder.drv0.sentCount())
	require.Len(t, responderEvents, 1)
	require.Equal(t, portal.EventGet, responderEvents[0].Type)

	replyHdr := wire.Header{
		Type:          wire.TypeReply,
		PayloadLength: uint32(len(sourceData)),
		DestNID:       requester.ni0.NID,
		SrcNID:        responder.ni0.NID,
		DestPID:       1,
		SrcPID:        2,
		Reply:         wire.ReplyUnion{DstWMD: hdr.Get.ReturnWMD},
	}
	require.NoError(t, requester.engine.HandleIncoming(requester.ni0, 0, &replyHdr, nil))
	require.Len(t, requesterEvents, 1)
	require.Equal(t, portal.EventReply, requesterEvents[0].Type)
}
