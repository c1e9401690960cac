package databus

import (
	"context"
	"net"
	"time"

	"github.com/datacenterhub/idcbus/internal/dbpool"
	"github.com/datacenterhub/idcbus/internal/iface"
	"github.com/datacenterhub/idcbus/internal/obslog"
)

// Server is the C8 accept loop: it owns the listener, the worker pool, and
// the per-client rate limiter, and wires them to a shared C7 pool plus C9
// registry dependencies.
type Server struct {
	Addr        string
	Pool        *dbpool.Pool
	AuthCache   *iface.AuthCache
	Validator   *iface.Validator
	Log         *obslog.Logger
	WorkerCount int
	QueueSize   int
	Mode        ServeMode

	RateLimit float64 // requests/sec per client IP, 0 disables limiting
	RateBurst int

	limiter *clientLimiter
	pool    *WorkerPool
}

// ListenAndServe opens Addr, starts the worker pool and watchdog, and
// accepts connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	deps := Deps{Pool: s.Pool, AuthCache: s.AuthCache, Validator: s.Validator, Log: s.Log}
	s.pool = NewWorkerPool(s.WorkerCount, s.QueueSize, deps, s.Mode)
	s.pool.Start(ctx)

	if s.RateLimit > 0 {
		s.limiter = newClientLimiter(s.RateLimit, s.RateBurst)
		go s.sweepLimiter(ctx)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				if s.Log != nil {
					s.Log.Printf("accept: %v", err)
				}
				continue
			}
		}
		if s.limiter != nil && !s.limiter.allow(conn.RemoteAddr()) {
			conn.Close()
			continue
		}
		s.pool.Submit(conn)
	}
}

func (s *Server) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(5 * time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.limiter.sweep(5 * time.Minute)
		}
	}
}
