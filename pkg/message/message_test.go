package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lustre-net/lnetgo/pkg/credit"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/portal"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

func TestMessage_LifecycleAdvance(t *testing.T) {
	m := New(wire.TypePut)
	assert.Equal(t, StateNew, m.State())

	m.Advance(StateCommitted)
	m.Advance(StateOnWire)
	m.Advance(StateFinalized)
	assert.Equal(t, StateFinalized, m.State())
}

func TestMessage_FinalizeReleasesEveryHeldCreditExactlyOnce(t *testing.T) {
	m := New(wire.TypePut)

	txPool := credit.New("peer-tx", 1)
	niPool := credit.New("ni-tx", 1)
	require.False(t, txPool.Acquire(m))
	require.False(t, niPool.Acquire(m))

	m.HoldCredit(HoldPeerTx, txPool)
	m.HoldCredit(HoldNITx, niPool)

	released := m.Finalize(nil, nil)
	assert.Len(t, released, 2)
	assert.Equal(t, 1, txPool.Value())
	assert.Equal(t, 1, niPool.Value())

	// Second Finalize call is a no-op (P3: finalize exactly once).
	released2 := m.Finalize(nil, nil)
	assert.Nil(t, released2)
	assert.Equal(t, 1, txPool.Value())
}

func TestMessage_FinalizeReleasesMDAndEmitsEvent(t *testing.T) {
	var got []portal.Event
	sink := portal.EventSinkFunc(func(e portal.Event) { got = append(got, e) })

	md := portal.NewMD(ids.Handle{Interface: 1, Object: 2}, 1024, portal.OptPut, portal.ThresholdInfinite, 1, sink)
	md.AddRef()

	m := New(wire.TypePut)
	m.MatchedMD = md
	m.EventSink = sink

	m.Finalize(nil, func(err error) (portal.Event, bool) {
		return portal.Event{Type: portal.EventPut, MDHandle: md.Handle}, true
	})

	require.Len(t, got, 1)
	assert.Equal(t, portal.EventPut, got[0].Type)
	assert.Equal(t, 0, md.Refcount())
}

func TestMessage_PayloadRoundTrip(t *testing.T) {
	m := New(wire.TypePut)
	buf := []byte("hello")
	m.SetPayload(buf, 3, 5)
	assert.Equal(t, buf, m.Payload())
	assert.Equal(t, uint32(3), m.Offset)
	assert.Equal(t, uint32(5), m.WantedLength)
}

func TestMessage_FlagsRoundTrip(t *testing.T) {
	m := New(wire.TypeGet)
	m.SetRouting(true)
	m.SetAckRequested(true)
	assert.True(t, m.Routing())
	assert.True(t, m.AckRequested())
}
