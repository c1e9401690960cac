// Package obslog provides the logfile convention shared by every worker in
// the platform: one append-mode file, opened once at startup from the CLI's
// <logfile> argument, with log lines tagged by component name.
package obslog

import (
	"fmt"
	"log"
	"os"
)

// Logger wraps a stdlib *log.Logger writing to one process's logfile, with
// every line prefixed "[component] ".
type Logger struct {
	l    *log.Logger
	f    *os.File
	name string
}

// Open opens (creating if necessary) path in append mode and returns a
// Logger tagged with name. Every long-running worker calls this once at
// startup against its <logfile> CLI argument.
func Open(path, name string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("obslog.Open(%s): %w", path, err)
	}
	l := log.New(f, "", log.LstdFlags)
	return &Logger{l: l, f: f, name: name}, nil
}

// Close closes the underlying logfile.
func (g *Logger) Close() error {
	if g == nil || g.f == nil {
		return nil
	}
	return g.f.Close()
}

// Printf writes one tagged log line, mirroring the teacher's
// log.Printf("[server] ...") convention.
func (g *Logger) Printf(format string, args ...interface{}) {
	g.l.Printf("[%s] %s", g.name, fmt.Sprintf(format, args...))
}

// Sub returns a Logger writing to the same file under a sub-component tag,
// e.g. base.Sub("watchdog") logs as "[databus.watchdog] ...".
func (g *Logger) Sub(sub string) *Logger {
	return &Logger{l: g.l, f: g.f, name: g.name + "." + sub}
}
