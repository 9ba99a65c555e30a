package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lustre-net/lnetgo/pkg/ids"
)

func TestAttachMD_ThenMatch_SimplePut(t *testing.T) {
	e := NewEngine(64, 4)

	md := NewMD(ids.Handle{Interface: 1, Object: 1}, 256, OptPut, 1, 1, nil)
	me := &ME{NID: ids.NIDAny, PID: ids.PIDAny, MatchBits: 0x42, OpMask: OpPut}
	require.NoError(t, e.AttachMD(4, 0, me, md, PositionAfter))

	res, err := e.MatchIncoming(4, IncomingRequest{
		SrcNID: 1, SrcPID: 1, Op: OpPut, RLength: 128, MatchBits: 0x42, Partition: 0,
	})
	require.NoError(t, err)

	require.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, uint32(128), res.Commit.MLength)
	assert.Equal(t, uint32(0), res.Commit.MOffset)
	assert.Equal(t, 0, res.Commit.ThresholdSnapshot)
	assert.Equal(t, 1, md.Refcount())
}

func TestMatchIncoming_OverflowWithoutTruncateDrops(t *testing.T) {
	e := NewEngine(64, 1)
	md := NewMD(ids.Handle{Object: 1}, 1024, OptPut, ThresholdInfinite, 1, nil)
	me := &ME{NID: ids.NIDAny, PID: ids.PIDAny, MatchBits: 0x1, OpMask: OpPut}
	require.NoError(t, e.AttachMD(0, 0, me, md, PositionAfter))

	res, err := e.MatchIncoming(0, IncomingRequest{SrcNID: 1, Op: OpPut, RLength: 4096, MatchBits: 0x1})
	require.NoError(t, err)

	assert.Equal(t, OutcomeDrop, res.Outcome)
	assert.Equal(t, DropReasonOverflow, res.Reason)
	assert.Equal(t, uint32(0), md.Offset)
	assert.Equal(t, ThresholdInfinite, md.Threshold)
}

func TestMatchIncoming_NoMatchNonLazyDrops(t *testing.T) {
	e := NewEngine(64, 1)
	_, err := e.Portal(3)
	require.NoError(t, err)

	res, err := e.MatchIncoming(3, IncomingRequest{SrcNID: 1, Op: OpPut, RLength: 10})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDrop, res.Outcome)
}

func TestMatchIncoming_LazyPortalQueuesThenMatches(t *testing.T) {
	e := NewEngine(64, 1)
	p, err := e.Portal(5)
	require.NoError(t, err)
	p.SetLazy(true, nil)

	var gotResult MatchResult
	resolved := make(chan struct{})
	res, err := e.MatchIncoming(5, IncomingRequest{
		SrcNID: 1, Op: OpPut, RLength: 64, MatchBits: 0x7,
		OnDelayedMatch: func(r MatchResult) {
			gotResult = r
			close(resolved)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, res.Outcome)

	md := NewMD(ids.Handle{Object: 1}, 128, OptPut, ThresholdInfinite, 1, nil)
	me := &ME{NID: ids.NIDAny, PID: ids.PIDAny, MatchBits: 0x7, OpMask: OpPut}
	require.NoError(t, e.AttachMD(5, 0, me, md, PositionAfter))

	<-resolved
	assert.Equal(t, OutcomeOK, gotResult.Outcome)
	assert.Equal(t, uint32(64), gotResult.Commit.MLength)
}

func TestPortal_ClearLazyDropsDelayed(t *testing.T) {
	e := NewEngine(64, 1)
	p, err := e.Portal(1)
	require.NoError(t, err)
	p.SetLazy(true, nil)

	dropped := 0
	_, err = e.MatchIncoming(1, IncomingRequest{SrcNID: 1, Op: OpPut, RLength: 1})
	require.NoError(t, err)

	p.SetLazy(false, func(IncomingRequest) { dropped++ })
	assert.Equal(t, 1, dropped)
}

func TestAttachMD_UnlinkWithoutMatchReturnsToFreeState(t *testing.T) {
	e := NewEngine(64, 1)
	md := NewMD(ids.Handle{Object: 9}, 64, OptPut, ThresholdInfinite, 1, nil)
	me := &ME{NID: ids.NIDAny, PID: ids.PIDAny, MatchBits: 0x55, OpMask: OpPut}
	require.NoError(t, e.AttachMD(2, 0, me, md, PositionAfter))

	released := md.Unlink()
	assert.True(t, released)
	assert.True(t, md.Unlinked())
	assert.Equal(t, 0, md.Refcount())
}

func TestMD_AutoUnlinkOnExhaustion(t *testing.T) {
	e := NewEngine(64, 1)
	md := NewMD(ids.Handle{Object: 4}, 64, OptPut|OptAutoUnlink, 1, 1, nil)
	me := &ME{NID: ids.NIDAny, PID: ids.PIDAny, MatchBits: 0x9, OpMask: OpPut}
	require.NoError(t, e.AttachMD(6, 0, me, md, PositionAfter))

	res, err := e.MatchIncoming(6, IncomingRequest{SrcNID: 1, Op: OpPut, RLength: 8, MatchBits: 0x9})
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, res.Outcome)
	assert.True(t, res.Commit.AutoUnlinked)
	assert.True(t, md.Unlinked())
}

func TestEngine_InvalidPortalIndexRejected(t *testing.T) {
	e := NewEngine(8, 1)
	_, err := e.Portal(8)
	assert.Error(t, err)
	_, err = e.Portal(7)
	assert.NoError(t, err)
}
