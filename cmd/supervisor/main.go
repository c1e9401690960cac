// Command supervisor detaches from its controlling terminal and keeps one
// child command running forever, respawning it after every exit (spec
// §4.1/C1).
//
// Usage: supervisor <interval-seconds> <logfile> <command> [args...]
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/supervisor"
)

const sentinelEnv = "IDCBUS_SUPERVISOR_DETACHED"

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: supervisor <interval-seconds> <logfile> <command> [args...]")
		os.Exit(1)
	}

	secs, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad interval: %v\n", err)
		os.Exit(1)
	}
	logfile := os.Args[2]
	name := os.Args[3]
	args := os.Args[4:]

	if err := supervisor.Detach(sentinelEnv); err != nil {
		fmt.Fprintf(os.Stderr, "detach: %v\n", err)
		os.Exit(1)
	}

	logger, err := obslog.Open(logfile, "supervisor")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	s := supervisor.New(time.Duration(secs)*time.Second, name, args, logger)
	s.Run(context.Background())
}
