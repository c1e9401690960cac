// Command rinetd runs the reverse-proxy Relay: the outer-zone half that
// accepts external clients and multiplexes demand to an inner-zone Dialer
// over a persistent control channel (spec §4.5/C6).
//
// Usage: rinetd <logfile> <routefile> <cmd-port>
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/proxy"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: rinetd <logfile> <routefile> <cmd-port>")
		os.Exit(1)
	}
	logfile, routefile := os.Args[1], os.Args[2]
	cmdPort, err := strconv.Atoi(os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad cmd-port: %v\n", err)
		os.Exit(1)
	}

	logger, err := obslog.Open(logfile, "rinetd")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	routes, err := proxy.NewRouteTable(routefile, logger)
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	go routes.Watch(ctx)

	relay := &proxy.Relay{CommandPort: cmdPort, Routes: routes, Log: logger}
	if err := relay.Run(ctx); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}
