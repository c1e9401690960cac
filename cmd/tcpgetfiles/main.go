// Command tcpgetfiles pulls files pushed by a tcpfileserver endpoint's own
// scan loop into a local directory, forever, per spec §4.4 scenario 3.
//
// Usage: tcpgetfiles <server-addr> <logfile> <xmlconfig>
//
// xmlconfig recognizes:
//
//	<srvpath>        remote directory the server should scan
//	<clientpath>     local directory files are written into
//	<ptype>           1 = delete remote source on success, 2 = move to <srvpathbak>
//	<srvpathbak>     remote backup root when ptype == 2, applied server-side
//	<andchild>       "true" to recurse into subdirectories
//	<matchname>      comma-separated glob list, default "*"
//	<timetvl>        server idle poll interval in seconds
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
		fmt.Fprintln(os.Stderr, "usage: tcpgetfiles <server-addr> <logfile> <xmlconfig>")
		os.Exit(1)
	}
	addr, logfile, cfgStr := os.Args[1], os.Args[2], os.Args[3]

	logger, err := obslog.Open(logfile, "tcpgetfiles")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	c := xmlcfg.Parse(cfgStr)
	localRoot := c.String("clientpath", ".")

	login := filexfer.Login{
		PType:      filexfer.PostPolicy(c.Int("ptype", int(filexfer.DeleteOnSuccess))),
		ClientPath: c.String("clientpath", ""),
		SrvPath:    c.String("srvpath", ""),
		SrvPathBak: c.String("srvpathbak", ""),
		AndChild:   c.Bool("andchild", false),
		MatchName:  c.String("matchname", "*"),
		TimeTvl:    c.Seconds("timetvl", 5*time.Second),
		Timeout:    c.Seconds("timeout", 30*time.Second),
		PName:      c.String("pname", "tcpgetfiles"),
	}

	cfg := filexfer.ClientConfig{
		Addr:        addr,
		DialTimeout: c.Seconds("dialtimeout", 10*time.Second),
		Login:       login,
		Log:         logger,
	}

	if err := filexfer.PullFiles(cfg, localRoot); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}
