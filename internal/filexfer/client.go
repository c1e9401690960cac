package filexfer

import (
	"net"
	"time"

	"github.com/datacenterhub/idcbus/internal/errkind"
	"github.com/datacenterhub/idcbus/internal/frame"
	"github.com/datacenterhub/idcbus/internal/obslog"
)

// ClientConfig gathers the dial target and login parameters shared by Push
// and Pull, mirroring the starg struct tcpputfiles.cpp/tcpgetfiles.cpp
// populate from their command-line arguments.
type ClientConfig struct {
	Addr          string
	DialTimeout   time.Duration
	Login         Login
	Log           *obslog.Logger
}

func dialAndLogin(cfg ClientConfig) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", cfg.Addr, cfg.DialTimeout)
	if err != nil {
		return nil, errkind.New(errkind.PeerClosed, "filexfer.dial", err)
	}

	if err := frame.Send(conn, EncodeLogin(cfg.Login)); err != nil {
		conn.Close()
		return nil, err
	}
	reply, err := frame.Recv(conn, cfg.Login.Timeout)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if string(reply) != "ok" {
		conn.Close()
		return nil, errkind.New(errkind.Forbidden, "filexfer.login", nil)
	}
	return conn, nil
}

// PushFiles connects to addr, logs in as a Push client, and runs SendLoop
// against localRoot — the Go equivalent of tcpputfiles.cpp's main(): scan
// localRoot forever, pushing matching files to the server and applying
// cfg.Login.PType's post-success policy to each one that acks "ok".
func PushFiles(cfg ClientConfig, localRoot string) error {
	cfg.Login.ClientType = Push
	conn, err := dialAndLogin(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	return SendLoop(conn, SendConfig{
		WatchRoot:  localRoot,
		MatchName:  cfg.Login.MatchName,
		AndChild:   cfg.Login.AndChild,
		RemotePath: cfg.Login.ClientPath,
		TimeTvl:    cfg.Login.TimeTvl,
		AckTimeout: cfg.Login.Timeout,
		Policy:     cfg.Login.PType,
		BackupRoot: cfg.Login.ClientPathBak,
		SrcPrefix:  localRoot,
		Log:        cfg.Log,
	})
}

// PullFiles connects to addr, logs in as a Pull client, and runs RecvLoop
// against localRoot — the Go equivalent of tcpgetfiles.cpp's main(): the
// server scans its own tree and streams matching files to us.
func PullFiles(cfg ClientConfig, localRoot string) error {
	cfg.Login.ClientType = Pull
	conn, err := dialAndLogin(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	return RecvLoop(conn, RecvConfig{
		WriteRoot:  localRoot,
		ClientPath: cfg.Login.SrvPath,
		SrvPath:    localRoot,
		Timeout:    cfg.Login.Timeout,
		Log:        cfg.Log,
	})
}
