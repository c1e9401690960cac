// Command rinetdin runs the reverse-proxy Dialer: the inner-zone half that
// connects once to a Relay's command-listen port and opens matching
// outbound pairs on demand (spec §4.5/C6).
//
// Usage: rinetdin <logfile> <relay-host> <cmd-port>
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
		fmt.Fprintln(os.Stderr, "usage: rinetdin <logfile> <relay-host> <cmd-port>")
		os.Exit(1)
	}
	logfile, relayHost := os.Args[1], os.Args[2]
	cmdPort, err := strconv.Atoi(os.Args[3])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad cmd-port: %v\n", err)
		os.Exit(1)
	}

	logger, err := obslog.Open(logfile, "rinetdin")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	dialer := &proxy.Dialer{RelayAddr: relayHost, CommandPort: cmdPort, Log: logger}
	if err := dialer.Run(ctx); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}
