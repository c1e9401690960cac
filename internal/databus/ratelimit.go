package databus

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter is a per-remote-IP token bucket. Adapted from
// server/rate_limiter.go's hand-rolled TokenBucket, reimplemented on
// golang.org/x/time/rate (already in the platform's dependency stack)
// rather than re-deriving refill arithmetic by hand.
type limiterEntry struct {
	limiter *rate.Limiter
	lastHit time.Time
}

type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	r        rate.Limit
	burst    int
}

func newClientLimiter(requestsPerSecond float64, burst int) *clientLimiter {
	return &clientLimiter{
		limiters: make(map[string]*limiterEntry),
		r:        rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (cl *clientLimiter) allow(addr net.Addr) bool {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	now := time.Now()
	cl.mu.Lock()
	e, ok := cl.limiters[host]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(cl.r, cl.burst)}
		cl.limiters[host] = e
	}
	e.lastHit = now
	cl.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// sweep drops limiter entries not touched within maxAge, bounding map
// growth for a server that sees many distinct clients over its lifetime.
func (cl *clientLimiter) sweep(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for host, e := range cl.limiters {
		if e.lastHit.Before(cutoff) {
			delete(cl.limiters, host)
		}
	}
}
