// Package reaper implements the heartbeat registry scanner (spec §4.2/C3):
// every 10 seconds, zero-signal every occupied slot to detect dead
// processes, and escalate SIGTERM -> 5x1s poll -> SIGKILL against any
// process whose last beat has exceeded its declared timeout.
//
// Grounded 1:1 on original_source/project/tools/c/checkproc.cpp.
package reaper

import (
	"context"
	"syscall"
	"time"

	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/registry"
)

// Interval is the reaper's scan period, matching checkproc.cpp's documented
// 10-second launch cycle under procctl.
const Interval = 10 * time.Second

// killPollInterval and killPollCount implement checkproc.cpp's "check if the
// process exists every 1 second, up to 5 seconds" escalation window.
const (
	killPollInterval = time.Second
	killPollCount    = 5
)

// Signaler abstracts process signaling so tests can observe reaper
// decisions without touching real pids.
type Signaler interface {
	// Probe sends a zero-signal: return nil if the process exists, an
	// error otherwise.
	Probe(pid int) error
	Terminate(pid int) error
	Kill(pid int) error
}

// OSSignaler sends real signals via syscall.Kill.
type OSSignaler struct{}

func (OSSignaler) Probe(pid int) error     { return syscall.Kill(pid, 0) }
func (OSSignaler) Terminate(pid int) error { return syscall.Kill(pid, syscall.SIGTERM) }
func (OSSignaler) Kill(pid int) error      { return syscall.Kill(pid, syscall.SIGKILL) }

// Reaper scans a registry.Store on a fixed interval and terminates
// timed-out or dead processes.
type Reaper struct {
	store registry.Store
	sig   Signaler
	log   *obslog.Logger
	sleep func(time.Duration)
}

// New builds a Reaper over store using sig to deliver signals. log may be
// nil to suppress logging (used in tests).
func New(store registry.Store, sig Signaler, log *obslog.Logger) *Reaper {
	return &Reaper{store: store, sig: sig, log: log, sleep: time.Sleep}
}

func (r *Reaper) logf(format string, args ...interface{}) {
	if r.log != nil {
		r.log.Printf(format, args...)
	}
}

// Run scans every Interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.ScanOnce()
		}
	}
}

// ScanOnce performs one pass over every slot, per spec §4.2's reaper loop.
func (r *Reaper) ScanOnce() {
	if err := r.store.Lock(); err != nil {
		r.logf("lock failed: %v", err)
		return
	}
	defer r.store.Unlock()

	now := time.Now().Unix()

	for i := 0; i < registry.Capacity; i++ {
		rec, err := r.store.Read(i)
		if err != nil || rec.PID == 0 {
			continue
		}

		if err := r.sig.Probe(int(rec.PID)); err != nil {
			r.logf("process pid=%d(%s) no longer exists", rec.PID, rec.Name)
			r.store.Write(i, registry.Record{})
			continue
		}

		if now-rec.LastBeat < int64(rec.Timeout) {
			continue
		}

		r.logf("process pid=%d(%s) has timed out", rec.PID, rec.Name)
		r.sig.Terminate(int(rec.PID))

		exited := false
		for j := 0; j < killPollCount; j++ {
			r.sleep(killPollInterval)
			if err := r.sig.Probe(int(rec.PID)); err != nil {
				exited = true
				break
			}
		}

		if exited {
			r.logf("process pid=%d(%s) exited normally", rec.PID, rec.Name)
		} else {
			r.sig.Kill(int(rec.PID))
			r.logf("process pid=%d(%s) forcibly terminated", rec.PID, rec.Name)
		}

		r.store.Write(i, registry.Record{})
	}
}
