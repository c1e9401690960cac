package proxy

import (
	"sync"
	"time"
)

// pairMap tracks fd -> peer fd plus fd -> last-activity, the proxy pair
// slot from spec §3: "if peer(a)=b then peer(b)=a; closing either side
// clears both entries atomically with respect to the event loop." The
// event loop is single-threaded so the mutex here exists only so tests can
// inspect state from outside that loop; production code never contends on
// it.
type pairMap struct {
	mu       sync.Mutex
	peer     map[int]int
	lastSeen map[int]time.Time
}

func newPairMap() *pairMap {
	return &pairMap{peer: make(map[int]int), lastSeen: make(map[int]time.Time)}
}

func (m *pairMap) pair(a, b int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peer[a] = b
	m.peer[b] = a
	m.lastSeen[a] = now
	m.lastSeen[b] = now
}

func (m *pairMap) touch(fd int, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSeen[fd] = now
	if p, ok := m.peer[fd]; ok {
		m.lastSeen[p] = now
	}
}

func (m *pairMap) peerOf(fd int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peer[fd]
	return p, ok
}

// unpair removes both directions of fd's pairing and returns the peer fd,
// if any — the "closing either side clears both entries" invariant.
func (m *pairMap) unpair(fd int) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.peer[fd]
	delete(m.peer, fd)
	delete(m.lastSeen, fd)
	if ok {
		delete(m.peer, p)
		delete(m.lastSeen, p)
	}
	return p, ok
}

// idleSince returns every fd whose last activity is older than cutoff,
// one entry per pair (only one fd of each pair is reported, whichever the
// map iteration reaches first, so callers don't close a pair twice).
func (m *pairMap) idleSince(cutoff time.Time) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int]bool)
	var out []int
	for fd, t := range m.lastSeen {
		if seen[fd] {
			continue
		}
		if peer, ok := m.peer[fd]; ok {
			seen[peer] = true
		}
		if t.Before(cutoff) {
			out = append(out, fd)
		}
	}
	return out
}

func (m *pairMap) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peer) / 2
}
