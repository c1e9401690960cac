package databus

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/datacenterhub/idcbus/internal/obsmetrics"
)

// workerSlot is one numbered position in the worker roster. The watchdog
// compares lastActive against now; a worker refreshes its own lastActive
// whenever its condition-wait (here: channel receive) times out, which
// keeps a healthy idle worker off the watchdog's radar — mirroring
// webserver.cpp's vthid[ii].atime bookkeeping exactly.
type workerSlot struct {
	mu         sync.Mutex
	cancel     context.CancelFunc
	lastActive time.Time
}

func (s *workerSlot) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *workerSlot) staleSince(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive.Before(cutoff)
}

// WorkerPool is the fixed-size roster plus bounded queue from spec §4.7.
// The queue is a buffered channel standing in for the original's
// mutex+condvar socket FIFO — a channel receive is exactly a condvar wait
// that is already spurious-wakeup-safe.
type WorkerPool struct {
	queue  chan net.Conn
	roster []*workerSlot
	deps   Deps
	mode   ServeMode

	mu      sync.Mutex
	started bool
}

// NewWorkerPool builds a pool with workerCount slots and a queue buffered
// to queueSize. Call Start to spawn the workers and watchdog.
func NewWorkerPool(workerCount, queueSize int, deps Deps, mode ServeMode) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 10
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	wp := &WorkerPool{
		queue:  make(chan net.Conn, queueSize),
		roster: make([]*workerSlot, workerCount),
		deps:   deps,
		mode:   mode,
	}
	for i := range wp.roster {
		wp.roster[i] = &workerSlot{lastActive: time.Now()}
	}
	return wp
}

// Start spawns every worker and the watchdog goroutine, all bound to ctx.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started {
		return
	}
	wp.started = true

	for i := range wp.roster {
		wp.spawn(ctx, i)
	}
	go wp.watchdog(ctx)
}

// spawn starts the worker goroutine occupying roster slot i, recording a
// per-worker cancel func so the watchdog can tear it down independently of
// the pool's own shutdown.
func (wp *WorkerPool) spawn(parent context.Context, i int) {
	workerCtx, cancel := context.WithCancel(parent)
	wp.roster[i].mu.Lock()
	wp.roster[i].cancel = cancel
	wp.roster[i].lastActive = time.Now()
	wp.roster[i].mu.Unlock()
	go wp.worker(workerCtx, i)
}

// Submit enqueues an accepted connection. Matching the teacher's
// SubmitTask, a full queue does not block the accept loop — the
// connection is closed and the drop logged.
func (wp *WorkerPool) Submit(conn net.Conn) bool {
	select {
	case wp.queue <- conn:
		obsmetrics.WorkerQueueDepth.WithLabelValues(wp.deps.metricsName()).Set(float64(len(wp.queue)))
		return true
	default:
		if wp.deps.Log != nil {
			wp.deps.Log.Printf("worker pool queue full, dropping connection from %s", conn.RemoteAddr())
		}
		conn.Close()
		return false
	}
}

func (wp *WorkerPool) worker(ctx context.Context, slot int) {
	defer func() {
		if r := recover(); r != nil && wp.deps.Log != nil {
			wp.deps.Log.Printf("databus worker %d panic recovered: %v", slot, r)
		}
	}()

	timer := time.NewTimer(condWaitTimeout)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(condWaitTimeout)

		select {
		case <-ctx.Done():
			return
		case conn := <-wp.queue:
			obsmetrics.WorkerQueueDepth.WithLabelValues(wp.deps.metricsName()).Set(float64(len(wp.queue)))
			wp.roster[slot].touch()
			handleConn(ctx, conn, wp.deps, wp.mode)
			wp.roster[slot].touch()
		case <-timer.C:
			wp.roster[slot].touch()
		}
	}
}

// watchdog scans the roster every 3 seconds; any slot stale past
// workerStaleAfter is cancelled and respawned under the same slot number,
// exactly as webserver.cpp's checkthmain does.
func (wp *WorkerPool) watchdog(ctx context.Context) {
	t := time.NewTicker(watchdogInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := time.Now().Add(-workerStaleAfter)
			for i, s := range wp.roster {
				if s.staleSince(cutoff) {
					s.mu.Lock()
					if s.cancel != nil {
						s.cancel()
					}
					s.mu.Unlock()
					if wp.deps.Log != nil {
						wp.deps.Log.Printf("databus worker %d stale, respawning", i)
					}
					wp.spawn(ctx, i)
				}
			}
		}
	}
}
