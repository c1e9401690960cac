// Command tcpputfiles pushes files from a local directory to a
// tcpfileserver endpoint, forever, per spec §4.4 scenario 2.
//
// Usage: tcpputfiles <server-addr> <logfile> <xmlconfig>
//
// xmlconfig recognizes:
//
//	<clientpath>     logical path prefix applied to announced filenames
//	<srvpath>        local directory scanned for outgoing files
//	<ptype>           1 = delete source on success, 2 = move to <clientpathbak>
//	<clientpathbak>  backup root when ptype == 2
//	<andchild>       "true" to recurse into subdirectories
//	<matchname>      comma-separated glob list, default "*"
//	<timetvl>        idle poll interval in seconds
//	<timeout>        read/ack timeout in seconds
//	<pname>          process name sent to the server in the login record
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/datacenterhub/idcbus/internal/filexfer"
	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/xmlcfg"
)

func main() {
	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "usage: tcpputfiles <server-addr> <logfile> <xmlconfig>")
		os.Exit(1)
	}
	addr, logfile, cfgStr := os.Args[1], os.Args[2], os.Args[3]

	logger, err := obslog.Open(logfile, "tcpputfiles")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	c := xmlcfg.Parse(cfgStr)
	localRoot := c.String("srvpath", ".")

	login := filexfer.Login{
		PType:         filexfer.PostPolicy(c.Int("ptype", int(filexfer.DeleteOnSuccess))),
		ClientPath:    c.String("clientpath", ""),
		SrvPath:       c.String("clientpath", ""),
		ClientPathBak: c.String("clientpathbak", ""),
		AndChild:      c.Bool("andchild", false),
		MatchName:     c.String("matchname", "*"),
		TimeTvl:       c.Seconds("timetvl", 5*time.Second),
		Timeout:       c.Seconds("timeout", 30*time.Second),
		PName:         c.String("pname", "tcpputfiles"),
	}

	cfg := filexfer.ClientConfig{
		Addr:        addr,
		DialTimeout: c.Seconds("dialtimeout", 10*time.Second),
		Login:       login,
		Log:         logger,
	}

	if err := filexfer.PushFiles(cfg, localRoot); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}
