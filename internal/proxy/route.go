// Package proxy implements the reverse-proxy pair (spec §4.5/C6): an
// outer-zone Relay that accepts external clients and multiplexes demand
// over a persistent control channel to an inner-zone Dialer, which opens
// matching outbound pairs and splices them.
//
// Grounded on original_source/project/tools/c/rinetd.cpp (Relay) and
// rinetdin.cpp (Dialer): both are single-threaded `select`-loop proxies
// over raw non-blocking sockets. This port keeps that shape — a
// single-threaded epoll readiness loop over raw file descriptors via
// golang.org/x/sys/unix — rather than one goroutine per connection, since
// the spec is explicit that scheduling is cooperative and single-threaded
// (§4.5, §9 design note on "manual socket readiness multiplexing").
package proxy

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/datacenterhub/idcbus/internal/obslog"
)

// Route is one entry of the proxy route table (spec §3): accepting a
// connection on ListenPort relays it to DstIP:DstPort.
type Route struct {
	ListenPort int
	DstIP      string
	DstPort    int
}

// LoadRoutes parses the plain-text route file: one route per line,
// whitespace-separated "listen_port dst_ip dst_port", a trailing '#'
// introduces a comment, blank lines are ignored (spec §6).
func LoadRoutes(path string) ([]Route, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("proxy.LoadRoutes: %w", err)
	}
	defer f.Close()

	var routes []Route
	seen := make(map[int]bool)

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("proxy.LoadRoutes: %s:%d: expected 3 fields, got %d", path, lineNo, len(fields))
		}
		listenPort, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("proxy.LoadRoutes: %s:%d: bad listen_port: %w", path, lineNo, err)
		}
		dstPort, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("proxy.LoadRoutes: %s:%d: bad dst_port: %w", path, lineNo, err)
		}
		if seen[listenPort] {
			return nil, fmt.Errorf("proxy.LoadRoutes: %s:%d: duplicate listen_port %d", path, lineNo, listenPort)
		}
		seen[listenPort] = true
		routes = append(routes, Route{ListenPort: listenPort, DstIP: fields[1], DstPort: dstPort})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("proxy.LoadRoutes: %w", err)
	}
	return routes, nil
}

// RouteTable holds a live, hot-reloadable route set, keyed by listen_port.
type RouteTable struct {
	mu     sync.RWMutex
	byPort map[int]Route
	path   string
	log    *obslog.Logger
}

// NewRouteTable loads path once and returns a RouteTable ready for lookups
// and, optionally, Watch.
func NewRouteTable(path string, log *obslog.Logger) (*RouteTable, error) {
	rt := &RouteTable{path: path, log: log}
	if err := rt.reload(); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *RouteTable) reload() error {
	routes, err := LoadRoutes(rt.path)
	if err != nil {
		return err
	}
	m := make(map[int]Route, len(routes))
	for _, r := range routes {
		m[r.ListenPort] = r
	}
	rt.mu.Lock()
	rt.byPort = m
	rt.mu.Unlock()
	return nil
}

// Lookup returns the route for listenPort, if any.
func (rt *RouteTable) Lookup(listenPort int) (Route, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	r, ok := rt.byPort[listenPort]
	return r, ok
}

// Ports returns every currently configured listen_port.
func (rt *RouteTable) Ports() []int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	out := make([]int, 0, len(rt.byPort))
	for p := range rt.byPort {
		out = append(out, p)
	}
	return out
}

// Watch reloads the route table whenever path changes on disk, enriching
// rinetd.cpp's startup-only route load with fsnotify-driven hot reload. A
// reload changes the destination looked up for connections accepted
// afterwards on an already-open listen_port; Relay opens its listeners
// once at startup, so a listen_port added by a reload gets no listener
// until the Relay restarts. Removing a route only stops new connections
// (they are closed on accept); existing pairs on it are left alone.
func (rt *RouteTable) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("proxy.RouteTable.Watch: %w", err)
	}
	defer w.Close()

	if err := w.Add(rt.path); err != nil {
		return fmt.Errorf("proxy.RouteTable.Watch: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := rt.reload(); err != nil {
					rt.logf("route reload failed: %v", err)
				} else {
					rt.logf("route table reloaded (%d routes)", len(rt.byPort))
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			rt.logf("route watch error: %v", err)
		}
	}
}

func (rt *RouteTable) logf(format string, args ...interface{}) {
	if rt.log != nil {
		rt.log.Printf(format, args...)
	}
}
