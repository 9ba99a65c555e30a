package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPID_IsUser(t *testing.T) {
	u := PID(UserFlag | 7)
	assert.True(t, u.IsUser())
	assert.Equal(t, uint32(7), u.Number())

	k := PID(7)
	assert.False(t, k.IsUser())
	assert.Equal(t, uint32(7), k.Number())
}

func TestProcessID_Matches(t *testing.T) {
	p := ProcessID{NID: 10, PID: 20}

	assert.True(t, p.Matches(NIDAny, PIDAny))
	assert.True(t, p.Matches(10, PIDAny))
	assert.True(t, p.Matches(NIDAny, 20))
	assert.True(t, p.Matches(10, 20))
	assert.False(t, p.Matches(11, PIDAny))
	assert.False(t, p.Matches(NIDAny, 21))
}

func TestHandle_IsNone(t *testing.T) {
	assert.True(t, HandleNone.IsNone())
	assert.True(t, Handle{}.IsNone())
	assert.False(t, Handle{Interface: 1}.IsNone())
}

func TestCookieGenerator_Next(t *testing.T) {
	g := NewCookieGenerator(42)

	h1 := g.Next()
	h2 := g.Next()

	require.NotEqual(t, h1.Object, h2.Object)
	assert.Equal(t, uint64(42), h1.Interface)
	assert.Equal(t, uint64(42), h2.Interface)
	assert.False(t, h1.IsNone())
}

func TestCookieGenerator_ZeroInterfaceCookieCoerced(t *testing.T) {
	g := NewCookieGenerator(CookieNone)
	h := g.Next()
	assert.NotEqual(t, CookieNone, h.Interface)
}

func TestCookieGenerator_ConcurrentNextNeverCollides(t *testing.T) {
	g := NewCookieGenerator(1)
	seen := make(chan uint64, 1000)
	done := make(chan struct{})

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				seen <- g.Next().Object
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	close(seen)

	unique := make(map[uint64]bool)
	for v := range seen {
		require.False(t, unique[v], "duplicate cookie %d", v)
		unique[v] = true
	}
	assert.Len(t, unique, 1000)
}

func TestNID_NetAddrRoundTrip(t *testing.T) {
	nid := NewNID(0x1234, 0xabcd)
	assert.Equal(t, uint32(0x1234), nid.Net())
	assert.Equal(t, uint32(0xabcd), nid.Addr())
}
