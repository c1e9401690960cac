// Package frame implements the 4-byte-length-prefixed message framing used
// for handshake and heartbeat messages in both the file-transfer service and
// the reverse proxy's control channel. File content bytes are never framed —
// they are streamed raw, out of band, after an announce frame.
package frame

import (
	"encoding/binary"
	"io"
	"net"
	"time"

	"github.com/datacenterhub/idcbus/internal/errkind"
)

// MaxPayload bounds a single frame's payload to guard against a corrupt or
// hostile length prefix causing an unbounded allocation.
const MaxPayload = 16 << 20 // 16 MiB

// pollWindow is the read deadline Recv sets for timeout < 0. A net.Conn
// read whose deadline has already passed fails without consulting data
// that is already buffered, so polling needs a deadline just ahead of now.
const pollWindow = time.Millisecond

// Recv reads one length-prefixed frame from conn.
//
// timeout semantics follow spec §4.3:
//   - timeout > 0: a read deadline of timeout is set before reading.
//   - timeout == 0: blocks indefinitely (no deadline).
//   - timeout < 0: a read deadline of pollWindow is set, so the read
//     either completes at once (a frame is already arriving) or times out —
//     "poll once, non-blocking". Once the length prefix has arrived the
//     deadline is cleared, so the rest of that frame is read in full.
func Recv(conn net.Conn, timeout time.Duration) ([]byte, error) {
	if err := setDeadline(conn, timeout); err != nil {
		return nil, errkind.New(errkind.Fatal, "frame.Recv", err)
	}

	var lenBuf [4]byte
	if err := readFull(conn, lenBuf[:]); err != nil {
		return nil, classify("frame.Recv", err)
	}
	if timeout < 0 {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, errkind.New(errkind.Fatal, "frame.Recv", err)
		}
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxPayload {
		return nil, errkind.New(errkind.Malformed, "frame.Recv", io.ErrShortBuffer)
	}
	if n == 0 {
		return []byte{}, nil
	}
	payload := make([]byte, n)
	if err := readFull(conn, payload); err != nil {
		return nil, classify("frame.Recv", err)
	}
	return payload, nil
}

// Send writes one length-prefixed frame to conn: a 4-byte big-endian length
// followed by payload, via a loop that writes exactly len(payload) bytes or
// fails.
func Send(conn net.Conn, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if err := writeFull(conn, hdr[:]); err != nil {
		return classify("frame.Send", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if err := writeFull(conn, payload); err != nil {
		return classify("frame.Send", err)
	}
	return nil
}

func setDeadline(conn net.Conn, timeout time.Duration) error {
	switch {
	case timeout > 0:
		return conn.SetReadDeadline(time.Now().Add(timeout))
	case timeout < 0:
		return conn.SetReadDeadline(time.Now().Add(pollWindow))
	default:
		return conn.SetReadDeadline(time.Time{})
	}
}

func readFull(conn net.Conn, buf []byte) error {
	_, err := io.ReadFull(conn, buf)
	return err
}

func writeFull(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errkind.New(errkind.Timeout, op, err)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errkind.New(errkind.PeerClosed, op, err)
	}
	return errkind.New(errkind.Malformed, op, err)
}
