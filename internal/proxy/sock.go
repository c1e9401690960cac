package proxy

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// listenTCP opens a non-blocking, listening IPv4 socket on port, mirroring
// rinetd.cpp's per-route listening socket setup.
func listenTCP(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("proxy: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("proxy: setsockopt SO_REUSEADDR: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("proxy: bind :%d: %w", port, err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("proxy: listen :%d: %w", port, err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("proxy: set nonblock: %w", err)
	}
	return fd, nil
}

// acceptNonblock accepts a pending connection on a listening fd, returning
// a fresh non-blocking fd. A nil error with fd == -1 means "no connection
// pending right now" (EAGAIN) rather than a real failure.
func acceptNonblock(listenFd int) (int, error) {
	connFd, _, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN {
			return -1, nil
		}
		return -1, fmt.Errorf("proxy: accept: %w", err)
	}
	return connFd, nil
}

// dialNonblockTCP initiates a non-blocking connect to ip:port. Because the
// socket is non-blocking, Connect typically returns EINPROGRESS; the
// caller must wait for the fd to become writable (EPOLLOUT) before
// treating the connection as established.
func dialNonblockTCP(ip string, port int) (int, error) {
	addr4, err := ipv4Bytes(ip)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("proxy: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("proxy: set nonblock: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: addr4}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, fmt.Errorf("proxy: connect %s:%d: %w", ip, port, err)
	}
	return fd, nil
}

func ipv4Bytes(ip string) ([4]byte, error) {
	var out [4]byte
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return out, fmt.Errorf("proxy: invalid ip %q", ip)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return out, fmt.Errorf("proxy: not an ipv4 address: %q", ip)
	}
	copy(out[:], v4)
	return out, nil
}

// sockError reports whether a connecting socket failed, via SO_ERROR.
func sockError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}
