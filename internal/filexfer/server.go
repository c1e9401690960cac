package filexfer

import (
	"context"
	"net"
	"time"

	"github.com/datacenterhub/idcbus/internal/errkind"
	"github.com/datacenterhub/idcbus/internal/frame"
	"github.com/datacenterhub/idcbus/internal/obslog"
)

// Server accepts file-transfer sessions: each connection starts with a
// Login, after which the server becomes either the receiver (the client is
// Push) or the sender (the client is Pull) for the rest of the session —
// fileserver.cpp's single accept loop branching on st_login.clienttype.
type Server struct {
	Addr string
	Log  *obslog.Logger

	// LoginTimeout bounds how long the server waits for the initial Login
	// frame before dropping a connection.
	LoginTimeout time.Duration
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.Log != nil {
		s.Log.Printf(format, args...)
	}
}

// ListenAndServe runs the accept loop until the listener is closed or ctx
// is cancelled, spawning one goroutine per session — the goroutine-per-
// session idiom standing in for fileserver.cpp's fork-per-session, with
// panics recovered the same way the worker pool recovers a panicking task
// so one bad session can never take the listener down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errkind.New(errkind.Fatal, "filexfer.Server.Listen", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logf("listening on %s", s.Addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errkind.New(errkind.Fatal, "filexfer.Server.Accept", err)
			}
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	defer func() {
		if r := recover(); r != nil {
			s.logf("session panic recovered: %v", r)
		}
	}()

	buf, err := frame.Recv(conn, s.LoginTimeout)
	if err != nil {
		s.logf("login read: %v", err)
		return
	}
	login, err := DecodeLogin(buf)
	if err != nil {
		frame.Send(conn, FailedReply())
		s.logf("bad login: %v", err)
		return
	}
	if err := frame.Send(conn, OKReply()); err != nil {
		return
	}

	switch login.ClientType {
	case Push:
		// Client pushes files to us; we receive.
		err = RecvLoop(conn, RecvConfig{
			WriteRoot:  login.SrvPath,
			ClientPath: login.ClientPath,
			SrvPath:    login.SrvPath,
			Timeout:    login.TimeTvl + 10*time.Second,
			Log:        s.Log,
		})
	case Pull:
		// Client pulls files from us; we send, serving from SrvPath and
		// applying the server-side post-success policy against SrvPathBak.
		err = SendLoop(conn, SendConfig{
			WatchRoot:  login.SrvPath,
			MatchName:  login.MatchName,
			AndChild:   login.AndChild,
			RemotePath: login.SrvPath,
			TimeTvl:    login.TimeTvl,
			AckTimeout: login.Timeout,
			Policy:     login.PType,
			BackupRoot: login.SrvPathBak,
			SrcPrefix:  login.SrvPath,
			Log:        s.Log,
		})
	default:
		s.logf("unknown clienttype %d", login.ClientType)
		return
	}
	if err != nil {
		s.logf("session ended: %v", err)
	}
}
