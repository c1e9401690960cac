package dbpool

import (
	"context"
	"time"
)

const sweepInterval = 30 * time.Second
const probeTimeout = 2 * time.Second

// sweepLoop is the idle-sweeper thread from §4.6: every 30 seconds it
// trylocks each slot in turn, skipping any currently in use, disconnecting
// slots that have sat idle past IdleTimeout, and liveness-probing the rest.
func (p *Pool) sweepLoop() {
	defer close(p.done)
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-t.C:
			p.sweepOnce()
		}
	}
}

func (p *Pool) sweepOnce() {
	now := time.Now()
	for i, s := range p.slots {
		if !s.mu.TryLock() {
			continue
		}
		p.sweepSlot(i, s, now)
		s.mu.Unlock()
	}
}

func (p *Pool) sweepSlot(idx int, s *slot, now time.Time) {
	if s.lastUsed.IsZero() {
		return
	}
	if now.Sub(s.lastUsed) > p.cfg.IdleTimeout {
		s.conn.Close()
		s.conn = nil
		s.lastUsed = time.Time{}
		if p.log != nil {
			p.log.Printf("dbpool: slot %d disconnected (idle)", idx)
		}
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	var one int
	if err := s.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		s.conn.Close()
		s.conn = nil
		s.lastUsed = time.Time{}
		if p.log != nil {
			p.log.Printf("dbpool: slot %d disconnected (probe failed: %v)", idx, err)
		}
	}
}
