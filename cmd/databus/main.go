// Command databus runs the HTTP data-bus server (spec §4.9/C8): a fixed
// worker pool that authenticates each request against T_USERINFO, checks
// T_USERANDINTER authorization, loads the named interface's SQL from
// T_INTERCFG, and streams its result set back over one accepted connection.
//
// Usage: databus <listen-addr> <logfile> <xmlconfig>
//
// xmlconfig recognizes:
//
//	<connstr>       driver,dsn for the C7 pool's backing database
//	<poolcap>       pool slot count, default 10
//	<idletimeout>   seconds a slot may sit idle before the reaper closes it
//	<workers>       worker pool size, default 8
//	<queuesize>     accepted-connection queue depth, default 64
//	<keepalive>     "true" to serve multiple requests per connection
//	<authttl>       seconds an authorization decision is cached, default 60
//	<maxsql>        maximum characters an interface's SQL may contain
//	<ratelimit>     requests/sec per client IP, 0 disables limiting
//	<rateburst>     burst size for ratelimit
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/datacenterhub/idcbus/internal/databus"
	"github.com/datacenterhub/idcbus/internal/dbpool"
	"github.com/datacenterhub/idcbus/internal/iface"
	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/xmlcfg"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: databus <listen-addr> <logfile> <xmlconfig>")
		os.Exit(1)
	}
	addr, logfile, cfgStr := os.Args[1], os.Args[2], os.Args[3]

	logger, err := obslog.Open(logfile, "databus")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg := xmlcfg.Parse(cfgStr)

	driver, dsn, err := splitConnstr(cfg.String("connstr", ""))
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}

	pool, err := dbpool.Open(dbpool.Config{
		Name:        "databus",
		Driver:      driver,
		ConnStr:     dsn,
		Capacity:    cfg.Int("poolcap", 10),
		IdleTimeout: cfg.Seconds("idletimeout", 5*time.Minute),
	}, logger)
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	mode := databus.Oneshot
	if cfg.Bool("keepalive", false) {
		mode = databus.Keepalive
	}

	srv := &databus.Server{
		Addr:        addr,
		Pool:        pool,
		AuthCache:   iface.NewAuthCache(cfg.Seconds("authttl", 60*time.Second)),
		Validator:   iface.NewValidator(cfg.Int("maxsql", 4096)),
		Log:         logger,
		WorkerCount: cfg.Int("workers", 8),
		QueueSize:   cfg.Int("queuesize", 64),
		Mode:        mode,
		RateLimit:   cfg.Float("ratelimit", 0),
		RateBurst:   cfg.Int("rateburst", 10),
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func splitConnstr(connstr string) (driver, dsn string, err error) {
	if connstr == "" {
		return "", "", fmt.Errorf("connstr is required")
	}
	if i := strings.Index(connstr, ","); i >= 0 {
		return connstr[:i], connstr[i+1:], nil
	}
	return "mysql", connstr, nil
}
