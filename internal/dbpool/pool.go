// Package dbpool implements the fixed-size, per-slot-mutex database
// connection pool (C7): a small array of slots, each independently
// trylock-able, holding at most one live *sql.Conn plus the epoch it was
// last handed out. Unlike a conventional pool that blocks callers on
// exhaustion, Get fails immediately with errkind.PoolExhausted rather than
// letting callers pile up waiting for a slot; the C8 data bus answers such a
// request with an internal-error response and does not retry it.
//
// Grounded on other_examples' db-bouncer TenantPool for the general shape
// of a per-backend connection pool with an idle reaper, adapted to the
// scan-and-trylock acquire algorithm the platform's connection pool
// actually uses (db-bouncer blocks waiters on a sync.Cond; this pool never
// blocks — see DESIGN.md).
package dbpool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/datacenterhub/idcbus/internal/errkind"
	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/obsmetrics"
)

// Config describes one pool's backing database and sizing.
type Config struct {
	Name        string // metrics label; defaults to Driver if empty
	Driver      string // "mysql" unless overridden
	ConnStr     string
	Capacity    int
	IdleTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = "mysql"
	}
	if c.Name == "" {
		c.Name = c.Driver
	}
	if c.Capacity <= 0 {
		c.Capacity = 10
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	return c
}

type slot struct {
	mu       sync.Mutex
	conn     *sql.Conn
	lastUsed time.Time // zero value means "not yet dialed"
}

// Conn is a handle returned by Get. Callers must pass it to Release exactly
// once, and must not retain DB() past that call.
type Conn struct {
	idx  int
	conn *sql.Conn
}

// DB returns the underlying *sql.Conn for running queries.
func (c *Conn) DB() *sql.Conn { return c.conn }

// Pool is the fixed-size slot array described by C7.
type Pool struct {
	cfg   Config
	db    *sql.DB // dialer only; Open sets SetMaxIdleConns(0) so closing a slot's *sql.Conn closes the driver connection
	log   *obslog.Logger
	slots []*slot

	stop chan struct{}
	done chan struct{}
}

// Open creates the backing *sql.DB (used only to dial fresh *sql.Conn
// values, never for its own pooling) and the slot array, and starts the
// idle-sweeper goroutine.
func Open(cfg Config, log *obslog.Logger) (*Pool, error) {
	cfg = cfg.withDefaults()
	db, err := sql.Open(cfg.Driver, cfg.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("dbpool.Open: %w", err)
	}
	db.SetMaxIdleConns(0)
	p := &Pool{
		cfg:   cfg,
		db:    db,
		log:   log,
		slots: make([]*slot, cfg.Capacity),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for i := range p.slots {
		p.slots[i] = &slot{}
	}
	go p.sweepLoop()
	return p, nil
}

// Close stops the sweeper and closes every live slot plus the dialer.
func (p *Pool) Close() error {
	close(p.stop)
	<-p.done
	for _, s := range p.slots {
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
			s.conn = nil
		}
		s.mu.Unlock()
	}
	return p.db.Close()
}

// Get implements the five-step scan-and-trylock acquire algorithm from
// §4.6: a live slot always wins over dialing a fresh one, and the pool
// never blocks — exhaustion is reported immediately.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	fallback := -1

	for i, s := range p.slots {
		if !s.mu.TryLock() {
			continue
		}
		if !s.lastUsed.IsZero() {
			s.lastUsed = time.Now()
			conn := s.conn
			if fallback != -1 {
				p.slots[fallback].mu.Unlock()
			}
			obsmetrics.PoolInUse.WithLabelValues(p.cfg.Name).Inc()
			return &Conn{idx: i, conn: conn}, nil
		}
		if fallback == -1 {
			fallback = i
			continue
		}
		s.mu.Unlock()
	}

	if fallback == -1 {
		obsmetrics.PoolExhaustedTotal.WithLabelValues(p.cfg.Name).Inc()
		return nil, errkind.New(errkind.PoolExhausted, "dbpool.Get", nil)
	}

	s := p.slots[fallback]
	conn, err := p.db.Conn(ctx)
	if err != nil {
		s.mu.Unlock()
		obsmetrics.PoolExhaustedTotal.WithLabelValues(p.cfg.Name).Inc()
		return nil, errkind.New(errkind.PoolExhausted, "dbpool.Get", err)
	}
	s.conn = conn
	s.lastUsed = time.Now()
	obsmetrics.PoolInUse.WithLabelValues(p.cfg.Name).Inc()
	return &Conn{idx: fallback, conn: conn}, nil
}

// Release returns c to the pool, stamping last_used and unlocking its slot.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	obsmetrics.PoolInUse.WithLabelValues(p.cfg.Name).Dec()
	s := p.slots[c.idx]
	s.lastUsed = time.Now()
	s.mu.Unlock()
}
