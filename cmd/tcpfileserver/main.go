// Command tcpfileserver runs the file-transfer endpoint (spec §4.4/C5): it
// accepts both push and pull sessions on one listening address, branching
// per-connection on the client's declared direction.
//
// Usage: tcpfileserver <listen-addr> <logfile> <xmlconfig>
//
// xmlconfig recognizes:
//
//	<logintimeout>   seconds to wait for a session's initial login frame (default 30)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datacenterhub/idcbus/internal/filexfer"
	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/xmlcfg"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: tcpfileserver <listen-addr> <logfile> <xmlconfig>")
		os.Exit(1)
	}
	addr, logfile, cfgStr := os.Args[1], os.Args[2], os.Args[3]

	logger, err := obslog.Open(logfile, "tcpfileserver")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg := xmlcfg.Parse(cfgStr)

	srv := &filexfer.Server{
		Addr:         addr,
		Log:          logger,
		LoginTimeout: cfg.Seconds("logintimeout", 30*time.Second),
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
