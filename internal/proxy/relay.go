package proxy

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/obsmetrics"
)

const (
	activeTestInterval = 20 * time.Second
	idleTimeout        = 80 * time.Second
	defaultMaxFDs      = 1024
	pollTickMs         = 1000
)

var activeTestFrame = []byte("<activetest>ok</activetest>")

// Relay is the outer-zone half of the reverse-proxy pair (spec §4.5): it
// accepts external clients on every route's listen_port and, for each one,
// requests a matching outbound from the Dialer over a persistent control
// channel.
type Relay struct {
	CommandPort int
	Routes      *RouteTable
	MaxFDs      int
	Log         *obslog.Logger

	poll      *poller
	pair      *pairMap
	listenFds map[int]int // fd -> listen_port
	commandFd int
	controlFd int
	pending   []int // srcsock fds awaiting pairing via the next command-listen accept
}

func (r *Relay) logf(format string, args ...interface{}) {
	if r.Log != nil {
		r.Log.Printf(format, args...)
	}
}

func (r *Relay) maxFDs() int {
	if r.MaxFDs > 0 {
		return r.MaxFDs
	}
	return defaultMaxFDs
}

// Run blocks until the Dialer connects once, opens every route's listener,
// then drives the single-threaded readiness loop until ctx is cancelled or
// a fatal error occurs (any control-channel write failure, per spec §4.5).
func (r *Relay) Run(ctx context.Context) error {
	p, err := newPoller()
	if err != nil {
		return err
	}
	r.poll = p
	defer p.close()
	r.pair = newPairMap()
	r.listenFds = make(map[int]int)

	r.commandFd, err = listenTCP(r.CommandPort)
	if err != nil {
		return err
	}
	if err := r.poll.add(r.commandFd, false); err != nil {
		return err
	}

	r.logf("waiting for dialer on :%d", r.CommandPort)
	if err := r.awaitDialerHandshake(ctx); err != nil {
		return err
	}
	r.logf("dialer connected, opening %d route(s)", len(r.Routes.Ports()))

	for _, port := range r.Routes.Ports() {
		fd, err := listenTCP(port)
		if err != nil {
			return err
		}
		if err := r.poll.add(fd, false); err != nil {
			return err
		}
		r.listenFds[fd] = port
	}

	lastActiveTest := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err := r.poll.wait(pollTickMs)
		if err != nil {
			return err
		}

		now := time.Now()
		for _, ev := range events {
			fd := int(ev.Fd)
			switch {
			case fd == r.commandFd:
				r.acceptDialerOutbound()
			case fd == r.controlFd:
				if err := r.drainControlChannel(); err != nil {
					return fmt.Errorf("proxy.Relay: control channel: %w", err)
				}
			default:
				if _, isRoute := r.listenFds[fd]; isRoute {
					if err := r.acceptExternalClient(fd); err != nil {
						return fmt.Errorf("proxy.Relay: control channel: %w", err)
					}
				} else {
					relayOnce(r.poll, r.pair, fd, now)
				}
			}
		}

		if now.Sub(lastActiveTest) >= activeTestInterval {
			if err := sendControlFrame(r.controlFd, activeTestFrame); err != nil {
				return fmt.Errorf("proxy.Relay: activetest: %w", err)
			}
			lastActiveTest = now
		}

		for _, fd := range r.pair.idleSince(now.Add(-idleTimeout)) {
			r.logf("closing idle pair on fd %d", fd)
			closePair(r.poll, r.pair, fd)
		}
		obsmetrics.ProxyPairCount.WithLabelValues("relay").Set(float64(r.pair.count()))
	}
}

// awaitDialerHandshake blocks (cooperatively, via the poller) until the
// Dialer's first connection on the command-listen socket arrives, which
// becomes the persistent control channel.
func (r *Relay) awaitDialerHandshake(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		events, err := r.poll.wait(pollTickMs)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if int(ev.Fd) != r.commandFd {
				continue
			}
			fd, err := acceptNonblock(r.commandFd)
			if err != nil {
				return err
			}
			if fd == -1 {
				continue
			}
			r.controlFd = fd
			if err := r.poll.add(r.controlFd, false); err != nil {
				return err
			}
			return nil
		}
	}
}

func (r *Relay) acceptExternalClient(listenFd int) error {
	port := r.listenFds[listenFd]
	for {
		fd, err := acceptNonblock(listenFd)
		if err != nil {
			r.logf("accept on :%d: %v", port, err)
			return nil
		}
		if fd == -1 {
			return nil
		}

		if r.pair.count()*2+len(r.pending)+2 > r.maxFDs() {
			r.logf("fd cap reached, dropping new connection on :%d", port)
			unix.Close(fd)
			continue
		}

		route, ok := r.Routes.Lookup(port)
		if !ok {
			unix.Close(fd)
			continue
		}

		payload := []byte(fmt.Sprintf("<dst_ip>%s</dst_ip><dst_port>%d</dst_port>", route.DstIP, route.DstPort))
		if err := sendControlFrame(r.controlFd, payload); err != nil {
			r.logf("control channel write failed: %v", err)
			unix.Close(fd)
			return err
		}
		r.pending = append(r.pending, fd)
	}
}

func (r *Relay) acceptDialerOutbound() {
	for {
		fd, err := acceptNonblock(r.commandFd)
		if err != nil {
			r.logf("accept dialer outbound: %v", err)
			return
		}
		if fd == -1 {
			return
		}
		if len(r.pending) == 0 {
			r.logf("unexpected dialer outbound with no pending request")
			unix.Close(fd)
			continue
		}
		src := r.pending[0]
		r.pending = r.pending[1:]

		now := time.Now()
		r.pair.pair(src, fd, now)
		if err := r.poll.add(src, false); err != nil {
			r.logf("poll add srcsock: %v", err)
		}
		if err := r.poll.add(fd, false); err != nil {
			r.logf("poll add dstsock: %v", err)
		}
	}
}

// drainControlChannel only ever expects the Dialer to close the channel;
// any bytes read are discarded, and EOF/error is fatal (the supervisor
// will respawn, and the Dialer will reconnect).
func (r *Relay) drainControlChannel() error {
	buf := make([]byte, 256)
	n, err := unix.Read(r.controlFd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return nil
		}
		return err
	}
	if n == 0 {
		return errPeerClosed
	}
	return nil
}
