package databus

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	wp := NewWorkerPool(1, 1, Deps{}, Oneshot)

	c1, s1 := net.Pipe()
	defer c1.Close()
	defer s1.Close()
	c2, s2 := net.Pipe()
	defer c2.Close()
	defer s2.Close()
	c3, s3 := net.Pipe()
	defer c3.Close()
	defer s3.Close()

	assert.True(t, wp.Submit(s1))
	assert.False(t, wp.Submit(s2), "second submit should be dropped: queue capacity is 1 and no worker was started to drain it")
	assert.False(t, wp.Submit(s3), "third submit should be dropped as well")
}

func TestWorkerSlotTouchClearsStaleness(t *testing.T) {
	s := &workerSlot{lastActive: time.Now().Add(-time.Hour)}
	assert.True(t, s.staleSince(time.Now().Add(-time.Minute)))

	s.touch()
	assert.False(t, s.staleSince(time.Now().Add(-time.Minute)))
}

func TestWatchdogRespawnsStaleWorker(t *testing.T) {
	wp := NewWorkerPool(1, 1, Deps{}, Oneshot)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	wp.roster[0].mu.Lock()
	wp.roster[0].lastActive = time.Now().Add(-time.Hour)
	wp.roster[0].mu.Unlock()

	cutoff := time.Now().Add(-workerStaleAfter)
	assert.Eventually(t, func() bool {
		return !wp.roster[0].staleSince(cutoff)
	}, 5*time.Second, 10*time.Millisecond, "watchdog should have respawned slot 0 and refreshed lastActive")
}
