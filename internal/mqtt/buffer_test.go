package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacklogEmptyDrain(t *testing.T) {
	b := newBacklog(10)
	got, dropped := b.drain()
	assert.Nil(t, got)
	assert.Zero(t, dropped)
}

func TestBacklogPushAndDrain(t *testing.T) {
	b := newBacklog(10)
	for i := 0; i < 5; i++ {
		b.push(pendingMsg{topic: "t", payload: []byte{byte(i)}})
	}
	assert.Equal(t, 5, b.len())

	got, dropped := b.drain()
	require.Len(t, got, 5)
	assert.Zero(t, dropped)
	for i, m := range got {
		assert.Equal(t, byte(i), m.payload[0])
	}

	again, _ := b.drain()
	assert.Nil(t, again)
	assert.Zero(t, b.len())
}

func TestBacklogOverflowKeepsNewest(t *testing.T) {
	b := newBacklog(5)
	for i := 0; i < 8; i++ {
		b.push(pendingMsg{topic: "t", payload: []byte{byte(i)}})
	}
	assert.Equal(t, 5, b.len())

	got, dropped := b.drain()
	require.Len(t, got, 5)
	assert.Equal(t, 3, dropped)
	for i, m := range got {
		assert.Equal(t, byte(i+3), m.payload[0], "item %d", i)
	}
}

func TestBacklogReuseAfterDrain(t *testing.T) {
	b := newBacklog(3)
	for i := 0; i < 4; i++ {
		b.push(pendingMsg{payload: []byte{byte(i)}})
	}
	b.drain()

	b.push(pendingMsg{payload: []byte{9}})
	got, dropped := b.drain()
	require.Len(t, got, 1)
	assert.Equal(t, byte(9), got[0].payload[0])
	assert.Zero(t, dropped)
}

func TestBacklogMinimumCapacity(t *testing.T) {
	b := newBacklog(0)
	b.push(pendingMsg{payload: []byte{1}})
	b.push(pendingMsg{payload: []byte{2}})
	got, dropped := b.drain()
	require.Len(t, got, 1)
	assert.Equal(t, byte(2), got[0].payload[0])
	assert.Equal(t, 1, dropped)
}
