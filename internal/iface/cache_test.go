package iface

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAuthCacheMissThenHit(t *testing.T) {
	c := NewAuthCache(time.Minute)

	_, ok := c.Get("alice", "orders")
	assert.False(t, ok)

	c.Put("alice", "orders", true)
	allowed, ok := c.Get("alice", "orders")
	assert.True(t, ok)
	assert.True(t, allowed)
}

func TestAuthCacheExpires(t *testing.T) {
	c := NewAuthCache(time.Millisecond)
	c.Put("bob", "orders", false)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("bob", "orders")
	assert.False(t, ok)
}

func TestAuthCacheDisabledWhenTTLZero(t *testing.T) {
	c := NewAuthCache(0)
	c.Put("carol", "orders", true)

	_, ok := c.Get("carol", "orders")
	assert.False(t, ok)
}

func TestAuthCacheSweepRemovesExpired(t *testing.T) {
	c := NewAuthCache(time.Millisecond)
	c.Put("dave", "orders", true)
	time.Sleep(5 * time.Millisecond)

	c.Sweep()

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Empty(t, c.entries)
}
