package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairMapPairAndPeerOf(t *testing.T) {
	m := newPairMap()
	now := time.Now()
	m.pair(1, 2, now)

	p, ok := m.peerOf(1)
	require.True(t, ok)
	assert.Equal(t, 2, p)

	p, ok = m.peerOf(2)
	require.True(t, ok)
	assert.Equal(t, 1, p)

	assert.Equal(t, 1, m.count())
}

func TestPairMapUnpairClearsBothDirections(t *testing.T) {
	m := newPairMap()
	m.pair(1, 2, time.Now())

	peer, ok := m.unpair(1)
	require.True(t, ok)
	assert.Equal(t, 2, peer)

	_, ok = m.peerOf(1)
	assert.False(t, ok)
	_, ok = m.peerOf(2)
	assert.False(t, ok)
	assert.Equal(t, 0, m.count())
}

func TestPairMapIdleSinceReportsOnlyOneFDPerPair(t *testing.T) {
	m := newPairMap()
	old := time.Now().Add(-time.Hour)
	m.pair(1, 2, old)
	m.pair(3, 4, time.Now())

	idle := m.idleSince(time.Now().Add(-time.Minute))
	require.Len(t, idle, 1)
	assert.True(t, idle[0] == 1 || idle[0] == 2)
}

func TestPairMapTouchUpdatesBothSides(t *testing.T) {
	m := newPairMap()
	old := time.Now().Add(-time.Hour)
	m.pair(1, 2, old)

	m.touch(1, time.Now())

	idle := m.idleSince(time.Now().Add(-time.Minute))
	assert.Empty(t, idle)
}
