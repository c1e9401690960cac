// Package databus implements the HTTP data-bus server (C8): one accept
// loop, a bounded queue of accepted connections, a fixed worker pool that
// authenticates, authorizes, and executes a registered interface's SQL per
// request, and a watchdog that replaces workers that stop making progress.
//
// Grounded on server/worker_pool.go (WorkerPool/MessageTask/panic recovery,
// generalized from AMQP deliveries to raw accepted net.Conns) and
// original_source/project/tools/c/webserver.cpp (the request pipeline
// itself: Login/CheckPerm/ExecSQL, and checkthmain's stale-worker
// cancel-and-respawn roster, which the teacher has no equivalent of).
package databus

import (
	"time"

	"github.com/datacenterhub/idcbus/internal/dbpool"
	"github.com/datacenterhub/idcbus/internal/iface"
	"github.com/datacenterhub/idcbus/internal/obslog"
)

// ServeMode selects between a request-then-close worker loop and a
// keepalive loop that serves multiple requests off one connection.
type ServeMode int

const (
	Oneshot ServeMode = iota
	Keepalive
)

// Deps bundles everything a worker needs to service one request. Name
// labels the obsmetrics series for this server instance; it defaults to
// "databus" when empty.
type Deps struct {
	Pool      *dbpool.Pool
	AuthCache *iface.AuthCache
	Validator *iface.Validator
	Log       *obslog.Logger
	Name      string
}

func (d Deps) metricsName() string {
	if d.Name == "" {
		return "databus"
	}
	return d.Name
}

const (
	requestReadLimit   = 1024
	requestReadTimeout = 3 * time.Second
	keepaliveTimeout   = 20 * time.Second
	watchdogInterval   = 3 * time.Second
	workerStaleAfter   = 25 * time.Second
	condWaitTimeout    = 20 * time.Second
)
