// Command idcbus is a multi-call wrapper bundling every standalone worker
// binary in this module behind one cobra command tree, so a single binary
// can be deployed and each worker launched as a subcommand instead of its
// own executable. Each subcommand's positional arguments and xmlconfig tags
// match its standalone counterpart exactly (cmd/rinetd, cmd/databus, ...);
// this file only adds the cobra glue, not new behavior.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"

	"github.com/datacenterhub/idcbus/internal/databus"
	"github.com/datacenterhub/idcbus/internal/dbpool"
	"github.com/datacenterhub/idcbus/internal/filexfer"
	"github.com/datacenterhub/idcbus/internal/iface"
	"github.com/datacenterhub/idcbus/internal/obslog"
	"github.com/datacenterhub/idcbus/internal/proxy"
	"github.com/datacenterhub/idcbus/internal/reaper"
	"github.com/datacenterhub/idcbus/internal/registry"
	"github.com/datacenterhub/idcbus/internal/supervisor"
	syncworker "github.com/datacenterhub/idcbus/internal/sync"
	"github.com/datacenterhub/idcbus/internal/xmlcfg"
)

func main() {
	root := &cobra.Command{
		Use:   "idcbus",
		Short: "Data-center integration platform: one binary, every worker as a subcommand",
	}
	root.AddCommand(
		rinetdCmd(), rinetdinCmd(), tcpfileserverCmd(), tcpputfilesCmd(), tcpgetfilesCmd(),
		supervisorCmd(), checkprocCmd(), databusCmd(), syncincrementCmd(), migratetableCmd(), deletetableCmd(),
	)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func cancelOnSignal() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}

func splitConnstr(connstr string) (driver, dsn string, err error) {
	if connstr == "" {
		return "", "", fmt.Errorf("connstr is required")
	}
	for i := 0; i < len(connstr); i++ {
		if connstr[i] == ',' {
			return connstr[:i], connstr[i+1:], nil
		}
	}
	return "mysql", connstr, nil
}

func inStartHours(starttime string) bool {
	if starttime == "" {
		return true
	}
	hh := fmt.Sprintf("%02d", time.Now().Hour())
	for _, h := range strings.Split(starttime, ",") {
		if strings.TrimSpace(h) == hh {
			return true
		}
	}
	return false
}

func rinetdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rinetd <logfile> <routefile> <cmd-port>",
		Short: "Reverse-proxy Relay: accepts external clients, multiplexes to a Dialer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logfile, routefile := args[0], args[1]
			cmdPort, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("bad cmd-port: %w", err)
			}
			logger, err := obslog.Open(logfile, "rinetd")
			if err != nil {
				return err
			}
			defer logger.Close()

			routes, err := proxy.NewRouteTable(routefile, logger)
			if err != nil {
				return err
			}

			ctx, _ := cancelOnSignal()
			go routes.Watch(ctx)

			relay := &proxy.Relay{CommandPort: cmdPort, Routes: routes, Log: logger}
			return relay.Run(ctx)
		},
	}
}

func rinetdinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rinetdin <logfile> <relay-host> <cmd-port>",
		Short: "Reverse-proxy Dialer: connects to a Relay, opens outbound pairs on demand",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			logfile, relayHost := args[0], args[1]
			cmdPort, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("bad cmd-port: %w", err)
			}
			logger, err := obslog.Open(logfile, "rinetdin")
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, _ := cancelOnSignal()
			dialer := &proxy.Dialer{RelayAddr: relayHost, CommandPort: cmdPort, Log: logger}
			return dialer.Run(ctx)
		},
	}
}

func tcpfileserverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tcpfileserver <listen-addr> <logfile> <xmlconfig>",
		Short: "File-transfer endpoint: accepts both push and pull sessions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, logfile, cfgStr := args[0], args[1], args[2]
			logger, err := obslog.Open(logfile, "tcpfileserver")
			if err != nil {
				return err
			}
			defer logger.Close()

			cfg := xmlcfg.Parse(cfgStr)
			srv := &filexfer.Server{
				Addr:         addr,
				Log:          logger,
				LoginTimeout: cfg.Seconds("logintimeout", 30*time.Second),
			}
			ctx, _ := cancelOnSignal()
			return srv.ListenAndServe(ctx)
		},
	}
}

func tcpputfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tcpputfiles <server-addr> <logfile> <xmlconfig>",
		Short: "Push files from a local directory to a tcpfileserver endpoint",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, logfile, cfgStr := args[0], args[1], args[2]
			logger, err := obslog.Open(logfile, "tcpputfiles")
			if err != nil {
				return err
			}
			defer logger.Close()

			c := xmlcfg.Parse(cfgStr)
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
			cfgC := filexfer.ClientConfig{
				Addr: addr, DialTimeout: c.Seconds("dialtimeout", 10*time.Second),
				Login: login, Log: logger,
			}
			return filexfer.PushFiles(cfgC, c.String("srvpath", "."))
		},
	}
}

func tcpgetfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tcpgetfiles <server-addr> <logfile> <xmlconfig>",
		Short: "Pull files pushed by a tcpfileserver endpoint's scan loop",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, logfile, cfgStr := args[0], args[1], args[2]
			logger, err := obslog.Open(logfile, "tcpgetfiles")
			if err != nil {
				return err
			}
			defer logger.Close()

			c := xmlcfg.Parse(cfgStr)
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
			cfgC := filexfer.ClientConfig{
				Addr: addr, DialTimeout: c.Seconds("dialtimeout", 10*time.Second),
				Login: login, Log: logger,
			}
			return filexfer.PullFiles(cfgC, c.String("clientpath", "."))
		},
	}
}

func supervisorCmd() *cobra.Command {
	const sentinelEnv = "IDCBUS_SUPERVISOR_DETACHED"
	return &cobra.Command{
		Use:                "supervisor <interval-seconds> <logfile> <command> [args...]",
		Short:              "Detach and keep one child command running forever, respawning on exit",
		Args:               cobra.MinimumNArgs(3),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			secs, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("bad interval: %w", err)
			}
			logfile, name, childArgs := args[1], args[2], args[3:]

			if err := supervisor.Detach(sentinelEnv); err != nil {
				return err
			}
			logger, err := obslog.Open(logfile, "supervisor")
			if err != nil {
				return err
			}
			defer logger.Close()

			s := supervisor.New(time.Duration(secs)*time.Second, name, childArgs, logger)
			s.Run(context.Background())
			return nil
		},
	}
}

func checkprocCmd() *cobra.Command {
	const defaultRegistryDir = "/var/run/idcbus"
	return &cobra.Command{
		Use:   "checkproc <logfile> [registry-dir]",
		Short: "Run a single heartbeat-registry sweep and exit",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logfile := args[0]
			dir := defaultRegistryDir
			if len(args) == 2 {
				dir = args[1]
			}
			logger, err := obslog.Open(logfile, "checkproc")
			if err != nil {
				return err
			}
			defer logger.Close()

			store, err := registry.OpenShm(dir, "heartbeat")
			if err != nil {
				return err
			}
			defer store.Close()

			r := reaper.New(store, reaper.OSSignaler{}, logger)
			r.ScanOnce()
			return nil
		},
	}
}

func databusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "databus <listen-addr> <logfile> <xmlconfig>",
		Short: "HTTP data-bus server: authenticate, authorize, execute a registered interface",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, logfile, cfgStr := args[0], args[1], args[2]
			logger, err := obslog.Open(logfile, "databus")
			if err != nil {
				return err
			}
			defer logger.Close()

			cfg := xmlcfg.Parse(cfgStr)
			driver, dsn, err := splitConnstr(cfg.String("connstr", ""))
			if err != nil {
				return err
			}

			pool, err := dbpool.Open(dbpool.Config{
				Name: "databus", Driver: driver, ConnStr: dsn,
				Capacity:    cfg.Int("poolcap", 10),
				IdleTimeout: cfg.Seconds("idletimeout", 5*time.Minute),
			}, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			mode := databus.Oneshot
			if cfg.Bool("keepalive", false) {
				mode = databus.Keepalive
			}

			srv := &databus.Server{
				Addr:        addr,
				Pool:        pool,
				AuthCache:   iface.NewAuthCache(cfg.Seconds("authttl", 60*time.Second)),
				Validator:   iface.NewValidator(cfg.Int("maxsql", 4096)),
				Log:         logger,
				WorkerCount: cfg.Int("workers", 8),
				QueueSize:   cfg.Int("queuesize", 64),
				Mode:        mode,
				RateLimit:   cfg.Float("ratelimit", 0),
				RateBurst:   cfg.Int("rateburst", 10),
			}

			ctx, _ := cancelOnSignal()
			return srv.ListenAndServe(ctx)
		},
	}
}

func syncincrementCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "syncincrement <logfile> <xmlconfig>",
		Short: "Watermark-based incremental pull from a remote table into a local one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logfile, cfgStr := args[0], args[1]
			logger, err := obslog.Open(logfile, "syncincrement")
			if err != nil {
				return err
			}
			defer logger.Close()

			cfg := xmlcfg.Parse(cfgStr)
			wcfg := syncworker.Config{
				LocalDriver:    cfg.String("localdriver", "mysql"),
				LocalDSN:       cfg.String("localdsn", ""),
				RemoteDriver:   cfg.String("remotedriver", "mysql"),
				RemoteDSN:      cfg.String("remotedsn", ""),
				LocalTable:     cfg.String("localtable", ""),
				RemoteTable:    cfg.String("remotetable", ""),
				FederatedTable: cfg.String("federatedtable", ""),
				LocalCols:      cfg.StringList("localcols"),
				RemoteCols:     cfg.StringList("remotecols"),
				LocalKeyCol:    cfg.String("localkeycol", ""),
				RemoteKeyCol:   cfg.String("remotekeycol", ""),
				Where:          cfg.String("where", ""),
				MaxCount:       cfg.Int("maxcount", 100),
				Interval:       cfg.Seconds("interval", 2*time.Second),
			}

			w, err := syncworker.Open(wcfg, logger)
			if err != nil {
				return err
			}
			defer w.Close()

			ctx, _ := cancelOnSignal()
			return w.Run(ctx)
		},
	}
}

func migratetableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migratetable <logfile> <xmlconfig>",
		Short: "Copy rows matching a predicate into another table, then delete the source rows",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logfile, cfgStr := args[0], args[1]
			logger, err := obslog.Open(logfile, "migratetable")
			if err != nil {
				return err
			}
			defer logger.Close()

			cfg := xmlcfg.Parse(cfgStr)
			if !inStartHours(cfg.String("starttime", "")) {
				return nil
			}

			driver, dsn, err := splitConnstr(cfg.String("connstr", ""))
			if err != nil {
				return err
			}
			db, err := sql.Open(driver, dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			srctname, err := cfg.Require("srctname")
			if err != nil {
				return err
			}
			dsttname, err := cfg.Require("dsttname")
			if err != nil {
				return err
			}
			keycol, err := cfg.Require("keycol")
			if err != nil {
				return err
			}
			cols, err := destColumns(db, dsttname)
			if err != nil {
				return err
			}

			where := cfg.String("where", "")
			if where != "" {
				where = "WHERE " + where
			}

			mover := &syncworker.ChunkedMover{
				Select: db, Write: db,
				SourceTable: srctname, KeyCol: keycol, Where: where,
				DestTable: dsttname, DestCols: cols,
				MaxCount: cfg.Int("maxcount", 100),
				Log:      logger,
			}
			_, err = mover.Run(context.Background())
			return err
		},
	}
}

func deletetableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deletetable <logfile> <xmlconfig>",
		Short: "Periodically purge rows matching a predicate from one table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logfile, cfgStr := args[0], args[1]
			logger, err := obslog.Open(logfile, "deletetable")
			if err != nil {
				return err
			}
			defer logger.Close()

			cfg := xmlcfg.Parse(cfgStr)
			if !inStartHours(cfg.String("starttime", "")) {
				return nil
			}

			driver, dsn, err := splitConnstr(cfg.String("connstr", ""))
			if err != nil {
				return err
			}
			db, err := sql.Open(driver, dsn)
			if err != nil {
				return err
			}
			defer db.Close()

			tname, err := cfg.Require("tname")
			if err != nil {
				return err
			}
			keycol, err := cfg.Require("keycol")
			if err != nil {
				return err
			}

			where := cfg.String("where", "")
			if where != "" {
				where = "WHERE " + where
			}

			mover := &syncworker.ChunkedMover{
				Select: db, Write: db,
				SourceTable: tname, KeyCol: keycol, Where: where,
				MaxCount: cfg.Int("maxcount", 100),
				Log:      logger,
			}
			_, err = mover.Run(context.Background())
			return err
		},
	}
}

func destColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()
	return rows.Columns()
}
