package proxy

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/obsmetrics"
)

// Dialer is the inner-zone half of the reverse-proxy pair (spec §4.5): it
// initiates one persistent control connection to the Relay and, on each
// route request, opens a matching pair of outbound connections — one back
// to the Relay's command-listen port, one to the requested internal
// destination — and splices them.
type Dialer struct {
	RelayAddr   string
	CommandPort int
	Log         *obslog.Logger

	poll      *poller
	pair      *pairMap
	controlFd int
	reader    controlReader
}

func (d *Dialer) logf(format string, args ...interface{}) {
	if d.Log != nil {
		d.Log.Printf(format, args...)
	}
}

// Run connects to the Relay once, then drives the single-threaded
// readiness loop until ctx is cancelled or the control channel fails.
func (d *Dialer) Run(ctx context.Context) error {
	p, err := newPoller()
	if err != nil {
		return err
	}
	d.poll = p
	defer p.close()
	d.pair = newPairMap()

	if err := d.connectControl(ctx); err != nil {
		return err
	}
	d.logf("connected to relay %s:%d", d.RelayAddr, d.CommandPort)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err := d.poll.wait(pollTickMs)
		if err != nil {
			return err
		}

		now := time.Now()
		for _, ev := range events {
			fd := int(ev.Fd)
			if fd == d.controlFd {
				if err := d.handleControlReadable(); err != nil {
					return fmt.Errorf("proxy.Dialer: control channel: %w", err)
				}
				continue
			}
			relayOnce(d.poll, d.pair, fd, now)
		}

		for _, fd := range d.pair.idleSince(now.Add(-idleTimeout)) {
			d.logf("closing idle pair on fd %d", fd)
			closePair(d.poll, d.pair, fd)
		}
		obsmetrics.ProxyPairCount.WithLabelValues("dialer").Set(float64(d.pair.count()))
	}
}

func (d *Dialer) connectControl(ctx context.Context) error {
	fd, err := dialNonblockTCP(d.RelayAddr, d.CommandPort)
	if err != nil {
		return err
	}
	if err := d.poll.add(fd, true); err != nil {
		unix.Close(fd)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			d.poll.remove(fd)
			unix.Close(fd)
			return ctx.Err()
		default:
		}
		events, err := d.poll.wait(pollTickMs)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if int(ev.Fd) != fd {
				continue
			}
			if err := sockError(fd); err != nil {
				d.poll.remove(fd)
				unix.Close(fd)
				return fmt.Errorf("proxy.Dialer: connect: %w", err)
			}
			if err := d.poll.modify(fd, false); err != nil {
				return err
			}
			d.controlFd = fd
			return nil
		}
	}
}

// handleControlReadable assembles one or more framed route requests off
// the control channel and, for each, opens the matching outbound pair.
func (d *Dialer) handleControlReadable() error {
	for {
		payload, ok, err := d.reader.poll(d.controlFd)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if IsActiveTest(payload) {
			continue
		}
		d.handleRouteRequest(payload)
	}
}

// IsActiveTest reports whether a control-channel payload is the Relay's
// 20-second liveness ping rather than a route request.
func IsActiveTest(payload []byte) bool {
	return string(payload) == string(activeTestFrame)
}

func (d *Dialer) handleRouteRequest(payload []byte) {
	tags := parseControlTags(string(payload))
	dstIP := tags["dst_ip"]
	dstPort, _ := strconv.Atoi(tags["dst_port"])
	if dstIP == "" || dstPort == 0 {
		d.logf("malformed route request: %s", payload)
		return
	}

	toRelay, err := dialNonblockTCP(d.RelayAddr, d.CommandPort)
	if err != nil {
		d.logf("dial back to relay failed: %v", err)
		return
	}

	toDst, err := dialNonblockTCP(dstIP, dstPort)
	if err != nil {
		// Per spec §4.5 failure semantics: a dst connect failure closes
		// only this side's outbound, leaving the control channel up.
		d.logf("dial dst %s:%d failed: %v", dstIP, dstPort, err)
		unix.Close(toRelay)
		return
	}

	now := time.Now()
	d.pair.pair(toRelay, toDst, now)
	if err := d.poll.add(toRelay, false); err != nil {
		d.logf("poll add toRelay: %v", err)
	}
	if err := d.poll.add(toDst, false); err != nil {
		d.logf("poll add toDst: %v", err)
	}
}
