package at

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClampsInvalidConfig(t *testing.T) {
	e := New(Config{})
	assert.Equal(t, time.Second, e.Min())
	assert.Equal(t, 600*time.Second, e.Max())
	assert.Equal(t, time.Second, e.Estimate())
}

func TestObserveClampedToMax(t *testing.T) {
	e := New(Config{Min: time.Second, Max: 5 * time.Second, History: time.Minute})
	for i := 0; i < 20; i++ {
		e.Observe(30 * time.Second)
	}
	assert.Equal(t, 5*time.Second, e.Estimate())
}

func TestObserveClampedToMin(t *testing.T) {
	e := New(Config{Min: 2 * time.Second, Max: 30 * time.Second, History: time.Minute})
	for i := 0; i < 20; i++ {
		e.Observe(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, e.Estimate(), 2*time.Second)
}

func TestObserveTracksRisingLatency(t *testing.T) {
	e := New(Config{Min: time.Second, Max: 30 * time.Second, History: time.Minute})
	before := e.Estimate()
	for i := 0; i < 10; i++ {
		e.Observe(10 * time.Second)
	}
	require.Greater(t, e.Estimate(), before)
}

func TestEarlyMarginAndExtra(t *testing.T) {
	e := New(Config{Min: time.Second, Max: 30 * time.Second, EarlyMargin: 2 * time.Second, Extra: 5 * time.Second})
	assert.Equal(t, 2*time.Second, e.EarlyMargin())
	assert.Equal(t, 5*time.Second, e.Extra())
}
