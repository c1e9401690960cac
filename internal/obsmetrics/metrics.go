// Package obsmetrics exposes the platform's runtime gauges and counters via
// github.com/prometheus/client_golang, already part of the teacher's
// dependency stack though unused by the teacher's own AMQP bridge. Every
// long-running worker that owns a C7 pool, a C8 worker queue, or a C6 pair
// table registers its metrics here against the default registry; a single
// process may expose more than one of these (e.g. the data-bus server
// registers both PoolInUse and WorkerQueueDepth).
package obsmetrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PoolInUse reports the number of C7 slots currently holding a live,
	// checked-out connection, labeled by the pool's logical name.
	PoolInUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "idcbus",
		Subsystem: "dbpool",
		Name:      "slots_in_use",
		Help:      "Number of connection-pool slots currently checked out.",
	}, []string{"pool"})

	// PoolExhaustedTotal counts Get() calls that returned PoolExhausted.
	PoolExhaustedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idcbus",
		Subsystem: "dbpool",
		Name:      "exhausted_total",
		Help:      "Total Get() calls that found no live or fallback slot.",
	}, []string{"pool"})

	// WorkerQueueDepth reports the number of connections currently
	// buffered in a C8 worker pool's queue.
	WorkerQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "idcbus",
		Subsystem: "databus",
		Name:      "queue_depth",
		Help:      "Number of accepted connections waiting for a worker.",
	}, []string{"server"})

	// RequestDuration observes per-request latency for the data bus, from
	// a parsed request line to the end of its response.
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "idcbus",
		Subsystem: "databus",
		Name:      "request_duration_seconds",
		Help:      "Time to service one HTTP data-bus request.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"server", "outcome"})

	// ProxyPairCount reports the number of live fd pairs a C6 Relay or
	// Dialer is currently forwarding.
	ProxyPairCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "idcbus",
		Subsystem: "proxy",
		Name:      "pair_count",
		Help:      "Number of file-descriptor pairs currently forwarded.",
	}, []string{"role"})

	// SyncRowsTotal counts rows moved by a C10 sync worker or a
	// migratetable/deletetable chunked mover, labeled by the table rows
	// were moved into (sync worker) or out of (chunked mover) — the metrics-based re-expression of original_source's
	// dminingmysql6.cpp operational-counter polling.
	SyncRowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idcbus",
		Subsystem: "sync",
		Name:      "rows_total",
		Help:      "Total rows moved into or out of a table by a sync or migration worker.",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(PoolInUse, PoolExhaustedTotal, WorkerQueueDepth, RequestDuration, ProxyPairCount, SyncRowsTotal)
}
