package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lustre-net/lnetgo/pkg/credit"
	"github.com/lustre-net/lnetgo/pkg/ids"
	"github.com/lustre-net/lnetgo/pkg/message"
	"github.com/lustre-net/lnetgo/pkg/ni"
	"github.com/lustre-net/lnetgo/pkg/wire"
)

// TestSendAttempt_QueuesOnExhaustedPeerCredit exercises the SEND path's
// credit-acquisition/deferred-retry machinery directly: a peer pool
// already at its allowance floor must queue the attempt rather than
// hand off to the driver, and a later Release must resume it exactly
// once credits are available again.
func TestSendAttempt_QueuesOnExhaustedPeerCredit(t *testing.T) {
	e := NewEngine(Config{MaxPortals: 1, PeerTimeout: time.Minute}, nil)
	drv := &fakeDriver{}
	targetNI := ni.New(ids.NewNID(1, 2), "tcp0", drv, 5, 5, 5, 1)
	e.RegisterNI(targetNI)

	peerPool := credit.New("peer-tx", 0) // already exhausted: next Acquire queues
	niPool := credit.New("ni-tx", 5)

	msg := message.New(wire.TypePut)
	payload := []byte("queued payload")
	a := &sendAttempt{
		e:        e,
		msg:      msg,
		req:      SendRequest{Source: ids.ProcessID{NID: ids.NewNID(1, 1), PID: 1}},
		targetNI: targetNI,
		nextHop:  targetNI.NID,
		peerPool: peerPool,
		niPool:   niPool,
		payload:  payload,
	}

	a.attempt()

	require.Equal(t, 0, drv.sentCount())
	require.Equal(t, 1, peerPool.QueueDepth())
	require.True(t, msg.Holds(message.HoldPeerTx))
	require.False(t, msg.Holds(message.HoldNITx))

	// A peer of this message's (e.g. a concurrent send finishing)
	// releases a credit; it must dequeue and resume our attempt.
	pending := peerPool.Release()
	resume, ok := pending.(resumeFunc)
	require.True(t, ok)
	resume()

	require.Equal(t, 1, drv.sentCount())
	require.Equal(t, payload, drv.lastSent().payload)
	require.True(t, msg.Finalized())
	require.Equal(t, 0, peerPool.QueueDepth())
}

// TestSendAttempt_QueuesOnExhaustedNICreditAndResumesOnRelease holds a
// first message's NI-tx credit open (as it would be while its driver
// Send is still in flight) and checks that a second attempt against
// the same NI pool queues on the NI credit specifically, then resumes
// once the first message's credit is returned.
func TestSendAttempt_QueuesOnExhaustedNICreditAndResumesOnRelease(t *testing.T) {
	e := NewEngine(Config{MaxPortals: 1, PeerTimeout: time.Minute}, nil)
	drv := &fakeDriver{}
	targetNI := ni.New(ids.NewNID(1, 2), "tcp0", drv, 1, 5, 5, 1) // NI allowance of 1
	e.RegisterNI(targetNI)

	peerPool := credit.New("peer-tx", 5)
	niPool := targetNI.TxCredits(0)

	// Hold the first message's NI credit without finalizing, modelling
	// a send still in flight on the driver.
	firstMsg := message.New(wire.TypePut)
	require.False(t, niPool.Acquire(firstMsg))
	firstMsg.HoldCredit(message.HoldNITx, niPool)
	firstMsg.HoldCredit(message.HoldPeerTx, peerPool)
	require.False(t, peerPool.Acquire(firstMsg))

	secondMsg := message.New(wire.TypePut)
	second := &sendAttempt{
		e: e, msg: secondMsg,
		req:      SendRequest{Source: ids.ProcessID{NID: ids.NewNID(1, 1), PID: 1}},
		targetNI: targetNI, nextHop: targetNI.NID,
		peerPool: peerPool, niPool: niPool,
		payload: []byte("second"),
	}

	second.attempt()
	require.Equal(t, 0, drv.sentCount(), "NI credit is exhausted by the first message until it is released")
	require.True(t, secondMsg.Holds(message.HoldPeerTx))
	require.True(t, secondMsg.Holds(message.HoldNITx), "a queued acquisition still registers the hold; Finalize releases it once the send eventually completes")
	require.Equal(t, 1, niPool.QueueDepth())

	// The first message finishes and releases both its credits.
	released := firstMsg.Finalize(nil, nil)
	require.Len(t, released, 2)
	for _, r := range released {
		resumeReleasedCredit(r)
	}

	require.Eventually(t, func() bool { return drv.sentCount() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "second", string(drv.lastSent().payload))
	require.True(t, secondMsg.Finalized())
}
