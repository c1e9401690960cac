// Command migratetable copies rows matching a predicate from one table into
// another, then deletes them from the source, committing one chunk of keys
// at a time (spec §4.8/C10, migratetable variant).
//
// Usage: migratetable <logfile> <xmlconfig>
//
// xmlconfig recognizes:
//
//	<connstr>    driver,dsn  (e.g. "mysql,user:pass@tcp(host:3306)/db")
//	<srctname>   source table
//	<dsttname>   destination table; must share srctname's column layout
//	<keycol>     unique key column driving the chunked selector
//	<where>      predicate for the source key query, applied as "WHERE <where>"
//	<starttime>  comma-separated hours (e.g. "01,13") to restrict when this
//	             run actually migrates; empty means always
//	<maxcount>   rows per chunk, default 100, capped at 256
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/datacenterhub/idcbus/internal/obslog"
	syncworker "github.com/datacenterhub/idcbus/internal/sync"
	"github.com/datacenterhub/idcbus/internal/xmlcfg"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintln(os.Stderr, "usage: migratetable <logfile> <xmlconfig>")
		os.Exit(1)
	}
	logfile, cfgStr := os.Args[1], os.Args[2]

	logger, err := obslog.Open(logfile, "migratetable")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg := xmlcfg.Parse(cfgStr)

	if !inStartHours(cfg.String("starttime", "")) {
		return
	}

	driver, dsn, err := splitConnstr(cfg.String("connstr", ""))
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		logger.Printf("fatal: connect: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	srctname, err := cfg.Require("srctname")
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
	dsttname, err := cfg.Require("dsttname")
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
	keycol, err := cfg.Require("keycol")
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}

	cols, err := destColumns(db, dsttname)
	if err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}

	where := cfg.String("where", "")
	if where != "" {
		where = "WHERE " + where
	}

	mover := &syncworker.ChunkedMover{
		Select:      db,
		Write:       db,
		SourceTable: srctname,
		KeyCol:      keycol,
		Where:       where,
		DestTable:   dsttname,
		DestCols:    cols,
		MaxCount:    cfg.Int("maxcount", 100),
		Log:         logger,
	}

	ctx := context.Background()
	if _, err := mover.Run(ctx); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

// inStartHours reports whether the current local hour is listed in
// starttime (a comma-separated "HH" list), matching migratetable.cpp's
// instarttime() hour-of-day check. An empty starttime always runs.
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

// splitConnstr parses "driver,dsn" into its two parts, defaulting to mysql
// when no driver prefix is present.
func splitConnstr(connstr string) (driver, dsn string, err error) {
	if connstr == "" {
		return "", "", fmt.Errorf("connstr is required")
	}
	if i := strings.Index(connstr, ","); i >= 0 {
		return connstr[:i], connstr[i+1:], nil
	}
	return "mysql", connstr, nil
}

func destColumns(db *sql.DB, table string) ([]string, error) {
	rows, err := db.Query(fmt.Sprintf("SELECT * FROM %s LIMIT 0", table))
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()
	return rows.Columns()
}
