package filexfer

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/datacenterhub/idcbus/internal/errkind"
	"github.com/datacenterhub/idcbus/internal/frame"
	"github.com/datacenterhub/idcbus/internal/obslog"
)

// copyChunk is a buffer size for streaming a file body.
// tcpputfiles.cpp/fileserver.cpp both move files in fixed 1000-byte reads.
// sendFile and recvFile copy with io.CopyN and its own buffer, so nothing
// in this package reads copyChunk.
const copyChunk = 32 * 1024

// sendFile streams exactly size bytes of body onto conn (raw, unframed,
// following the file's Announce frame), per spec §6.
func sendFile(conn net.Conn, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return errkind.New(errkind.PeerClosed, "filexfer.sendFile.open", err)
	}
	defer f.Close()

	_, err = io.CopyN(conn, f, size)
	return err
}

// recvFile reads exactly size raw bytes from conn into a freshly created
// ".tmp" sibling of dst, then renames it into place and sets dst's mtime —
// fileserver.cpp's "write to a visible partial name, then atomically
// rename" pattern, so a reader never observes a half-written file at its
// final path.
func recvFile(conn net.Conn, dst string, size int64, mtime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errkind.New(errkind.Fatal, "filexfer.recvFile.mkdir", err)
	}

	tmp := dst + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return errkind.New(errkind.Fatal, "filexfer.recvFile.create", err)
	}

	if _, err := io.CopyN(f, conn, size); err != nil {
		f.Close()
		os.Remove(tmp)
		return errkind.New(errkind.PeerClosed, "filexfer.recvFile.copy", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errkind.New(errkind.Fatal, "filexfer.recvFile.close", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		return errkind.New(errkind.Fatal, "filexfer.recvFile.rename", err)
	}
	return os.Chtimes(dst, mtime, mtime)
}

// translatePath swaps a leading srcPrefix for dstPrefix in rel, matching
// fileserver.cpp's UpdateStr(serverfilename, clientpath, srvpath, false)
// call, used by RecvLoop to map an incoming announce's path onto the local
// tree.
func translatePath(rel, srcPrefix, dstPrefix string) string {
	clean := filepath.ToSlash(rel)
	clean = strings.TrimPrefix(clean, filepath.ToSlash(srcPrefix))
	clean = strings.TrimPrefix(clean, "/")
	return filepath.Join(dstPrefix, filepath.FromSlash(clean))
}

// RecvConfig parameterizes RecvLoop, the half of a session that receives
// pushed files: a server receiving from a Push client, or a pull Client
// receiving from the server's SendLoop.
type RecvConfig struct {
	WriteRoot     string     // not read by RecvLoop; files land under SrvPath
	ClientPath    string     // remote path prefix to strip
	SrvPath       string     // local path prefix to substitute (== WriteRoot normally)
	Timeout       time.Duration
	Log           *obslog.Logger
}

// RecvLoop reads Announce/body pairs off conn until the peer closes or an
// idle heartbeat-only exchange times out, acking each file as it lands.
// Grounded on fileserver.cpp's RecvFilesMain: loop { recv header; if
// heartbeat, continue; else recv body, rename into place, send ack }.
func RecvLoop(conn net.Conn, cfg RecvConfig) error {
	for {
		buf, err := frame.Recv(conn, cfg.Timeout)
		if err != nil {
			if k, ok := errkind.Of(err); ok && (k == errkind.PeerClosed || k == errkind.Timeout) {
				return nil
			}
			return err
		}

		if IsHeartbeat(buf) {
			cfg.logf("heartbeat")
			if err := frame.Send(conn, OKReply()); err != nil {
				return err
			}
			continue
		}
		if !IsAnnounce(buf) {
			cfg.logf("ignoring unrecognized frame")
			continue
		}

		ann, err := DecodeAnnounce(buf)
		if err != nil {
			cfg.logf("bad announce: %v", err)
			continue
		}

		localRel := translatePath(ann.Filename, cfg.ClientPath, "")
		dst := filepath.Join(cfg.SrvPath, localRel)

		ok := true
		if err := recvFile(conn, dst, ann.Size, ann.MTime); err != nil {
			cfg.logf("recv %s: %v", ann.Filename, err)
			ok = false
		}

		if err := frame.Send(conn, EncodeAck(Ack{Filename: ann.Filename, OK: ok})); err != nil {
			return err
		}
	}
}

func (c RecvConfig) logf(format string, args ...interface{}) {
	if c.Log != nil {
		c.Log.Printf(format, args...)
	}
}

// SendConfig parameterizes SendLoop, the half of a session that scans a
// local directory and pushes files out: a Push client pushing to the
// server, or the server's own loop serving a Pull client.
type SendConfig struct {
	WatchRoot  string
	MatchName  string
	AndChild   bool
	RemotePath string // path prefix the peer should apply on receipt (SrvPath/ClientPath)
	TimeTvl    time.Duration
	AckTimeout time.Duration
	Policy     PostPolicy
	BackupRoot string // valid when Policy == MoveToBackup
	SrcPrefix  string // the WatchRoot's logical prefix; SendLoop does not read it
	Log        *obslog.Logger
	// Sleep is overridable for tests.
	Sleep     func(time.Duration)
	StopAfter int // 0 = run forever; >0 = stop after this many idle cycles (tests)
}

// SendLoop scans WatchRoot for files matching MatchName, announces and
// streams each one, pipelining ack reads between files, then — if no file
// was found this pass — sleeps TimeTvl and emits a heartbeat before
// scanning again. Grounded on tcpputfiles.cpp's _tcpputfiles: the
// `delayed` outstanding-ack counter and AckMessage's non-blocking drain.
func SendLoop(conn net.Conn, cfg SendConfig) error {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	cycles := 0
	for {
		entries, err := Walk(cfg.WatchRoot, cfg.MatchName, cfg.AndChild)
		if err != nil {
			return errkind.New(errkind.Fatal, "filexfer.SendLoop.walk", err)
		}

		delayed := 0
		sentAny := false

		for _, e := range entries {
			remoteName := filepath.ToSlash(filepath.Join(cfg.RemotePath, e.RelPath))

			if err := frame.Send(conn, EncodeAnnounce(Announce{
				Filename: remoteName,
				MTime:    time.Unix(e.MTime, 0),
				Size:     e.Size,
			})); err != nil {
				return err
			}
			if err := sendFile(conn, e.AbsPath, e.Size); err != nil {
				return err
			}
			sentAny = true
			delayed++

			// Drain any acks that have already arrived without blocking,
			// the same non-blocking poll tcpputfiles.cpp performs between
			// files via TcpRead(..., -1).
			for delayed > 0 {
				buf, err := frame.Recv(conn, -1)
				if err != nil {
					if k, ok := errkind.Of(err); ok && k == errkind.Timeout {
						break
					}
					return err
				}
				if err := cfg.handleAck(buf); err != nil {
					cfg.logf("%v", err)
				}
				delayed--
			}
		}

		// Drain whatever remains with a real timeout once the scan is done.
		for delayed > 0 {
			buf, err := frame.Recv(conn, cfg.AckTimeout)
			if err != nil {
				cfg.logf("ack drain: %v", err)
				break
			}
			if err := cfg.handleAck(buf); err != nil {
				cfg.logf("%v", err)
			}
			delayed--
		}

		if !sentAny {
			cycles++
			if cfg.StopAfter > 0 && cycles >= cfg.StopAfter {
				return nil
			}
			sleep(cfg.TimeTvl)
			if err := frame.Send(conn, HeartbeatFrame()); err != nil {
				return err
			}
			reply, err := frame.Recv(conn, cfg.AckTimeout)
			if err != nil {
				return errkind.New(errkind.PeerClosed, "filexfer.SendLoop.activetest", err)
			}
			if string(reply) != string(OKReply()) {
				return errkind.New(errkind.PeerClosed, "filexfer.SendLoop.activetest",
					fmt.Errorf("unexpected activetest reply %q", reply))
			}
		} else {
			cycles = 0
		}
	}
}

func (cfg SendConfig) handleAck(buf []byte) error {
	ack, err := DecodeAck(buf)
	if err != nil {
		return err
	}
	return cfg.applyPolicy(ack)
}

// applyPolicy implements tcpputfiles.cpp's AckMessage post-success
// behavior: leave a failed file in place; delete or relocate-to-backup a
// successfully transferred one.
func (cfg SendConfig) applyPolicy(ack Ack) error {
	if !ack.OK {
		cfg.logf("peer reported failure for %s", ack.Filename)
		return nil
	}

	local := filepath.Join(cfg.WatchRoot, strings.TrimPrefix(filepath.ToSlash(ack.Filename), filepath.ToSlash(cfg.RemotePath)+"/"))

	switch cfg.Policy {
	case DeleteOnSuccess:
		return os.Remove(local)
	case MoveToBackup:
		rel := strings.TrimPrefix(filepath.ToSlash(ack.Filename), filepath.ToSlash(cfg.RemotePath)+"/")
		bak := filepath.Join(cfg.BackupRoot, rel)
		if err := os.MkdirAll(filepath.Dir(bak), 0o755); err != nil {
			return err
		}
		return os.Rename(local, bak)
	default:
		return fmt.Errorf("filexfer: unknown post policy %d", cfg.Policy)
	}
}

func (cfg SendConfig) logf(format string, args ...interface{}) {
	if cfg.Log != nil {
		cfg.Log.Printf(format, args...)
	}
}
