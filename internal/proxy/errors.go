package proxy

import "errors"

// errPeerClosed signals an orderly fd close (a zero-length non-blocking
// read), distinct from a real I/O error.
var errPeerClosed = errors.New("proxy: peer closed")
