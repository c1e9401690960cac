package databus

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/datacenterhub/idcbus/internal/dbpool"
	"github.com/datacenterhub/idcbus/internal/iface"
	"github.com/datacenterhub/idcbus/internal/obsmetrics"
)

// handleConn runs the per-request pipeline from spec §4.7 steps 1-11 on
// conn, looping for additional requests when mode is Keepalive. It always
// closes conn before returning.
func handleConn(ctx context.Context, conn net.Conn, deps Deps, mode ServeMode) {
	defer conn.Close()

	readTimeout := requestReadTimeout
	for {
		if mode == Keepalive {
			readTimeout = keepaliveTimeout
		}

		query, ok := readOneRequest(conn, readTimeout)
		if !ok {
			return
		}

		start := time.Now()
		cont := serveOne(ctx, conn, deps, query)
		outcome := "error"
		if cont {
			outcome = "ok"
		}
		obsmetrics.RequestDuration.WithLabelValues(deps.metricsName(), outcome).Observe(time.Since(start).Seconds())
		if !cont || mode == Oneshot {
			return
		}
	}
}

// readOneRequest reads up to 1KiB within timeout and extracts the
// query-string of a GET request line. Returns ok=false on timeout, peer
// close, or a non-GET start — all of which end the session.
func readOneRequest(conn net.Conn, timeout time.Duration) (url.Values, bool) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	buf := make([]byte, requestReadLimit)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return nil, false
	}
	req := string(buf[:n])
	if !strings.HasPrefix(req, "GET") {
		return nil, false
	}
	line := req
	if i := strings.IndexAny(req, "\r\n"); i >= 0 {
		line = req[:i]
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil, false
	}
	target := fields[1]
	q := ""
	if i := strings.IndexByte(target, '?'); i >= 0 {
		q = target[i+1:]
	}
	values, err := url.ParseQuery(q)
	if err != nil {
		return nil, false
	}
	return values, true
}

// serveOne runs steps 3-11 of the pipeline for one already-parsed request.
// It returns whether the connection may stay open for another request
// (Keepalive mode only ever continues past a clean "ok" response).
func serveOne(ctx context.Context, conn net.Conn, deps Deps, query url.Values) bool {
	c, err := deps.Pool.Get(ctx)
	if err != nil {
		writeCanned(conn, -1, "Internal error.")
		return false
	}
	defer deps.Pool.Release(c)

	username := query.Get("username")
	passwd := query.Get("passwd")
	ok, err := iface.CheckCredentials(ctx, c.DB(), username, passwd)
	if err != nil || !ok {
		writeCanned(conn, -1, "Username or password is invalid")
		return false
	}

	intername := query.Get("intername")
	if !authorized(ctx, deps, c, username, intername) {
		writeCanned(conn, -1, "Permission denied")
		return false
	}

	def, err := iface.LoadDefinition(ctx, c.DB(), intername)
	if err != nil {
		writeCanned(conn, -1, fmt.Sprintf("Unknown interface %q", intername))
		return false
	}
	if deps.Validator != nil {
		if err := deps.Validator.Validate(def.SelectSQL); err != nil {
			writeCanned(conn, -1, "Interface definition rejected")
			if deps.Log != nil {
				deps.Log.Printf("interface %q failed validation: %v", intername, err)
			}
			return false
		}
	}

	writeHeader(conn)
	if err := execAndStream(ctx, conn, c, def, query); err != nil {
		if deps.Log != nil {
			deps.Log.Printf("intername=%s exec failed: %v", intername, err)
		}
		return false
	}
	return true
}

// authorized consults the short-TTL cache before falling back to a
// database round-trip, per spec §9's explicitly-permitted extension.
func authorized(ctx context.Context, deps Deps, c *dbpool.Conn, username, intername string) bool {
	if deps.AuthCache != nil {
		if allowed, hit := deps.AuthCache.Get(username, intername); hit {
			return allowed
		}
	}
	ok, err := iface.CheckAuthorization(ctx, c.DB(), username, intername)
	allowed := err == nil && ok
	if deps.AuthCache != nil {
		deps.AuthCache.Put(username, intername, allowed)
	}
	return allowed
}

