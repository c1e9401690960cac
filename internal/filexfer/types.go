// Package filexfer implements the file-transfer endpoints (spec §4.4/C5):
// a login handshake, a per-file announce/ack protocol pipelined over one
// framed TCP session, and the walker + post-success policy that drives the
// sending side.
//
// Grounded on original_source/project/tools/c/fileserver.cpp (server recv
// side), tcpputfiles.cpp (push client send side) and tcpgetfiles.cpp (pull
// client recv side) — the server's own send side (serving a pull client) is
// the same SendLoop used by tcpputfiles, mirrored.
package filexfer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ClientType distinguishes which side is pushing files.
type ClientType int

const (
	Push ClientType = 1 // client pushes files to the server
	Pull ClientType = 2 // client pulls files from the server
)

// PostPolicy governs what happens to a source file after a successful
// transfer.
type PostPolicy int

const (
	DeleteOnSuccess  PostPolicy = 1
	MoveToBackup     PostPolicy = 2
)

// Login is the first message of a session, client -> server (spec §3).
type Login struct {
	ClientType    ClientType
	PType         PostPolicy
	ClientPath    string
	SrvPath       string
	ClientPathBak string // valid when PType == MoveToBackup and ClientType == Push
	SrvPathBak    string // valid when PType == MoveToBackup and ClientType == Pull
	AndChild      bool
	MatchName     string // comma-separated glob list
	TimeTvl       time.Duration
	Timeout       time.Duration
	PName         string
}

// Announce precedes a file's raw body on the wire (spec §3).
type Announce struct {
	Filename string
	MTime    time.Time
	Size     int64
}

// Ack reports per-file outcome, positionally matched to its Announce (spec §8).
type Ack struct {
	Filename string
	OK       bool
}

const mtimeLayout = "2006-01-02 15:04:05"
const heartbeatPayload = "<activetest>ok</activetest>"

var tagRe = regexp.MustCompile(`<([A-Za-z]+)>(.*?)</([A-Za-z]+)>`)

func tags(buf string) map[string]string {
	out := make(map[string]string)
	for _, m := range tagRe.FindAllStringSubmatch(buf, -1) {
		if m[1] == m[3] {
			out[m[1]] = m[2]
		}
	}
	return out
}

// EncodeLogin renders a Login as the tagged-attribute wire form (spec §6).
func EncodeLogin(l Login) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "<clienttype>%d</clienttype>", l.ClientType)
	fmt.Fprintf(&b, "<ptype>%d</ptype>", l.PType)
	fmt.Fprintf(&b, "<clientpath>%s</clientpath>", l.ClientPath)
	fmt.Fprintf(&b, "<srvpath>%s</srvpath>", l.SrvPath)
	if l.ClientPathBak != "" {
		fmt.Fprintf(&b, "<clientpathbak>%s</clientpathbak>", l.ClientPathBak)
	}
	if l.SrvPathBak != "" {
		fmt.Fprintf(&b, "<srvpathbak>%s</srvpathbak>", l.SrvPathBak)
	}
	fmt.Fprintf(&b, "<andchild>%t</andchild>", l.AndChild)
	fmt.Fprintf(&b, "<matchname>%s</matchname>", l.MatchName)
	fmt.Fprintf(&b, "<timetvl>%d</timetvl>", int(l.TimeTvl/time.Second))
	fmt.Fprintf(&b, "<timeout>%d</timeout>", int(l.Timeout/time.Second))
	fmt.Fprintf(&b, "<pname>%s</pname>", l.PName)
	return []byte(b.String())
}

// DecodeLogin parses the tagged-attribute wire form of a Login.
func DecodeLogin(buf []byte) (Login, error) {
	t := tags(string(buf))
	var l Login

	ct, err := strconv.Atoi(t["clienttype"])
	if err != nil || (ct != int(Push) && ct != int(Pull)) {
		return l, fmt.Errorf("filexfer: invalid clienttype %q", t["clienttype"])
	}
	l.ClientType = ClientType(ct)

	pt, _ := strconv.Atoi(t["ptype"])
	l.PType = PostPolicy(pt)

	l.ClientPath = t["clientpath"]
	l.SrvPath = t["srvpath"]
	l.ClientPathBak = t["clientpathbak"]
	l.SrvPathBak = t["srvpathbak"]
	l.AndChild = t["andchild"] == "true" || t["andchild"] == "1"
	l.MatchName = t["matchname"]

	tv, _ := strconv.Atoi(t["timetvl"])
	l.TimeTvl = time.Duration(tv) * time.Second

	to, _ := strconv.Atoi(t["timeout"])
	l.Timeout = time.Duration(to) * time.Second

	l.PName = t["pname"]

	return l, nil
}

// EncodeAnnounce renders an Announce as the wire form from spec §6.
func EncodeAnnounce(a Announce) []byte {
	return []byte(fmt.Sprintf("<filename>%s</filename><mtime>%s</mtime><size>%d</size>",
		a.Filename, a.MTime.Format(mtimeLayout), a.Size))
}

// IsAnnounce reports whether buf looks like an announce frame (vs a
// heartbeat), mirroring fileserver.cpp's strncmp(buf, "<filename>", 10).
func IsAnnounce(buf []byte) bool {
	return strings.HasPrefix(string(buf), "<filename>")
}

// IsHeartbeat reports whether buf is the literal heartbeat payload.
func IsHeartbeat(buf []byte) bool {
	return string(buf) == heartbeatPayload
}

// DecodeAnnounce parses an announce frame.
func DecodeAnnounce(buf []byte) (Announce, error) {
	t := tags(string(buf))
	var a Announce
	a.Filename = t["filename"]
	if a.Filename == "" {
		return a, fmt.Errorf("filexfer: announce missing filename")
	}
	mt, err := time.Parse(mtimeLayout, t["mtime"])
	if err != nil {
		return a, fmt.Errorf("filexfer: announce invalid mtime: %w", err)
	}
	a.MTime = mt
	size, err := strconv.ParseInt(t["size"], 10, 64)
	if err != nil {
		return a, fmt.Errorf("filexfer: announce invalid size: %w", err)
	}
	a.Size = size
	return a, nil
}

// EncodeAck renders an Ack as the wire form from spec §6.
func EncodeAck(a Ack) []byte {
	result := "failed"
	if a.OK {
		result = "ok"
	}
	return []byte(fmt.Sprintf("<filename>%s</filename><result>%s</result>", a.Filename, result))
}

// DecodeAck parses an ack frame.
func DecodeAck(buf []byte) (Ack, error) {
	t := tags(string(buf))
	var a Ack
	a.Filename = t["filename"]
	a.OK = t["result"] == "ok"
	return a, nil
}

// HeartbeatFrame is the literal heartbeat payload, spec §6.
func HeartbeatFrame() []byte { return []byte(heartbeatPayload) }

// OKReply / FailedReply are the login acknowledgement payloads.
func OKReply() []byte     { return []byte("ok") }
func FailedReply() []byte { return []byte("failed") }
