package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lustre-net/lnetgo/pkg/ids"
)

func TestPeer_AliveWithinTimeout(t *testing.T) {
	p := New(ids.NID(1), ids.NID(100), 8, false, 0)
	assert.True(t, p.Alive(time.Now(), 180*time.Second))
}

func TestPeer_NotAliveAfterTimeout(t *testing.T) {
	p := New(ids.NID(1), ids.NID(100), 8, false, 0)
	p.MarkDead()
	future := time.Now().Add(10 * time.Minute)
	assert.False(t, p.Alive(future, 180*time.Second))
}

func TestPeer_NotifyLockedRevivesPeer(t *testing.T) {
	p := New(ids.NID(1), ids.NID(100), 8, false, 0)
	p.MarkDead()

	now := time.Now()
	p.NotifyLocked(now)
	assert.True(t, p.Alive(now, 180*time.Second))
	assert.Equal(t, 1, p.AliveCount())
}

func TestPeer_ShouldQueryRateLimited(t *testing.T) {
	p := New(ids.NID(1), ids.NID(100), 8, false, 0)
	now := time.Now()
	assert.True(t, p.ShouldQuery(now))
	assert.False(t, p.ShouldQuery(now.Add(100*time.Millisecond)))
	assert.True(t, p.ShouldQuery(now.Add(2*time.Second)))
}

func TestPeer_IsRouter(t *testing.T) {
	gw := New(ids.NID(2), ids.NID(100), 8, true, 16)
	client := New(ids.NID(3), ids.NID(100), 8, false, 0)
	assert.True(t, gw.IsRouter())
	assert.False(t, client.IsRouter())
}

func TestTable_GetOrCreateIsIdempotent(t *testing.T) {
	tbl := NewTable()
	calls := 0
	newFn := func() *Peer {
		calls++
		return New(ids.NID(5), ids.NID(100), 8, false, 0)
	}

	p1 := tbl.GetOrCreate(ids.NID(5), newFn)
	p2 := tbl.GetOrCreate(ids.NID(5), newFn)

	require.Same(t, p1, p2)
	assert.Equal(t, 1, calls)
}
