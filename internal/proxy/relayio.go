package proxy

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"
)

// relayBufSize is the per-read chunk size for paired-connection splicing,
// spec §4.5 step 6: "read up to 5 KiB, write all bytes to the peer".
const relayBufSize = 5 * 1024

// writeAllNonblock writes buf to fd in full, retrying on EAGAIN after a
// 1 ms sleep. Control and data payloads here are small enough (a handful of
// KiB at most) that this retry loop stands in for a blocking write, without
// pulling the fd's writability into the epoll interest set for what is
// normally a single successful syscall. The retry has no limit: a peer that
// stops reading stalls the calling event loop until it reads again or the
// write fails.
func writeAllNonblock(fd int, buf []byte) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				time.Sleep(time.Millisecond)
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// sendControlFrame writes a 4-byte big-endian length prefix followed by
// payload down the control channel, the same framing internal/frame uses
// for every other channel in the platform.
func sendControlFrame(fd int, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if err := writeAllNonblock(fd, hdr[:]); err != nil {
		return err
	}
	return writeAllNonblock(fd, payload)
}

// controlReader incrementally assembles length-prefixed frames off a
// non-blocking fd across however many EPOLLIN notifications it takes,
// since a non-blocking read may return any number of bytes at a time.
type controlReader struct {
	hdr     [4]byte
	hdrN    int
	body    []byte
	bodyN   int
	wantLen int
	inBody  bool
	rest    []byte // bytes read past the end of the last returned frame
}

// poll reads whatever is currently available from fd and returns a
// complete frame payload when one has finished assembling. ok is false
// (with a nil error) when more data is still needed. Bytes left over from
// a previous read are consumed before fd is read again, so frames that
// arrive back to back in one read are each returned by successive calls.
func (r *controlReader) poll(fd int) (payload []byte, ok bool, err error) {
	data := r.rest
	r.rest = nil
	if len(data) == 0 {
		buf := make([]byte, 4096)
		n, rerr := unix.Read(fd, buf)
		if rerr != nil {
			if rerr == unix.EAGAIN {
				return nil, false, nil
			}
			return nil, false, rerr
		}
		if n == 0 {
			return nil, false, errPeerClosed
		}
		data = buf[:n]
	}

	for len(data) > 0 {
		if !r.inBody {
			need := 4 - r.hdrN
			take := min(need, len(data))
			copy(r.hdr[r.hdrN:], data[:take])
			r.hdrN += take
			data = data[take:]
			if r.hdrN == 4 {
				r.wantLen = int(binary.BigEndian.Uint32(r.hdr[:]))
				r.body = make([]byte, r.wantLen)
				r.bodyN = 0
				r.inBody = true
			}
			continue
		}
		need := r.wantLen - r.bodyN
		take := min(need, len(data))
		copy(r.body[r.bodyN:], data[:take])
		r.bodyN += take
		data = data[take:]
		if r.bodyN == r.wantLen {
			out := r.body
			r.rest = data
			r.hdrN, r.bodyN, r.wantLen, r.inBody, r.body = 0, 0, 0, false, nil
			return out, true, nil
		}
	}
	return nil, false, nil
}

// relayOnce handles one readable paired fd: read up to relayBufSize bytes
// and forward them to its peer, or tear down the pair on EOF/error (spec
// §4.5 step 6 and the idle-close invariant in §3).
func relayOnce(poll *poller, pair *pairMap, fd int, now time.Time) {
	peer, ok := pair.peerOf(fd)
	if !ok {
		return
	}

	buf := make([]byte, relayBufSize)
	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		closePair(poll, pair, fd)
		return
	}
	if n == 0 {
		closePair(poll, pair, fd)
		return
	}

	if werr := writeAllNonblock(peer, buf[:n]); werr != nil {
		closePair(poll, pair, fd)
		return
	}
	pair.touch(fd, now)
}

func closePair(poll *poller, pair *pairMap, fd int) {
	peer, ok := pair.unpair(fd)
	poll.remove(fd)
	unix.Close(fd)
	if ok {
		poll.remove(peer)
		unix.Close(peer)
	}
}
