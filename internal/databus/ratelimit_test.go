package databus

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientLimiterAllowsUpToBurst(t *testing.T) {
	cl := newClientLimiter(1, 2)
	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 5555}

	assert.True(t, cl.allow(addr))
	assert.True(t, cl.allow(addr))
	assert.False(t, cl.allow(addr), "third immediate request should exceed burst of 2")
}

func TestClientLimiterTracksDistinctClientsSeparately(t *testing.T) {
	cl := newClientLimiter(1, 1)
	a := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1}
	b := &net.TCPAddr{IP: net.ParseIP("10.0.0.2"), Port: 1}

	assert.True(t, cl.allow(a))
	assert.True(t, cl.allow(b))
}

func TestClientLimiterSweepDropsStaleEntries(t *testing.T) {
	cl := newClientLimiter(1, 1)
	addr := &net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 1}
	cl.allow(addr)

	time.Sleep(5 * time.Millisecond)
	cl.sweep(time.Millisecond)

	cl.mu.Lock()
	defer cl.mu.Unlock()
	assert.Empty(t, cl.limiters)
}
