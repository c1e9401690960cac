// Command checkproc performs a single heartbeat-registry sweep: any slot
// whose owning pid is gone is cleared, and any slot whose owner has gone
// silent past its declared timeout is signalled to terminate (SIGTERM, then
// SIGKILL after a 5-second poll window) before its slot is cleared (spec
// §4.3/C3).
//
// checkproc does one sweep and exits; it is meant to be launched by
// supervisor on a 10-second interval, exactly as checkproc.cpp was meant to
// be launched by procctl, rather than looping internally.
//
// Usage: checkproc <logfile> [registry-dir]
package main

import (
	"fmt"
	"os"

	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/reaper"
	"github.com/datacenterhub/idcbus/internal/registry"
)

const defaultRegistryDir = "/var/run/idcbus"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: checkproc <logfile> [registry-dir]")
		os.Exit(1)
	}
	logfile := os.Args[1]
	dir := defaultRegistryDir
	if len(os.Args) >= 3 {
		dir = os.Args[2]
	}

	logger, err := obslog.Open(logfile, "checkproc")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	store, err := registry.OpenShm(dir, "heartbeat")
	if err != nil {
		logger.Printf("fatal: open registry: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	r := reaper.New(store, reaper.OSSignaler{}, logger)
	r.ScanOnce()
}
