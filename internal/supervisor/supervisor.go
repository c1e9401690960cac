// Package supervisor implements the respawn-on-exit process supervisor
// (spec §4.1/C1): given an interval and a command, spawn it, wait for exit,
// sleep interval, repeat, forever. The supervisor ignores the default
// termination signal; only a forced kill ends it.
//
// Grounded on original_source/project/tools/c/procctl.cpp: double-fork at
// startup (detach from the launching shell, re-parent to init), then an
// infinite fork+exec+wait+sleep loop with every other signal ignored.
package supervisor

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/datacenterhub/idcbus/internal/obslog"
)

// Supervisor runs one command in a respawn loop.
type Supervisor struct {
	Interval time.Duration
	Name     string
	Args     []string
	Log      *obslog.Logger

	// Stdout/Stderr, when non-nil, are attached to every spawned child;
	// nil leaves them attached to the supervisor's own (typically
	// already-redirected) descriptors.
	Stdout, Stderr *os.File
}

// New returns a Supervisor for command name with args, restarting it every
// interval seconds after it exits.
func New(interval time.Duration, name string, args []string, log *obslog.Logger) *Supervisor {
	return &Supervisor{Interval: interval, Name: name, Args: args, Log: log}
}

// Detach re-parents the current process to init by forking once and having
// the parent exit immediately — procctl.cpp's "generate a child process,
// and the parent process exits" detachment step. It also starts a new
// session so the supervisor is not tied to a controlling terminal.
//
// Detach must be called before Run, and only from a process that has not
// yet spawned any goroutines it cares about surviving the fork (Go does not
// support calling fork() safely from a multi-threaded runtime beyond this
// narrow re-exec pattern, so Detach re-execs the current binary with a
// sentinel environment variable rather than calling raw fork(2)).
func Detach(sentinelEnv string) error {
	if os.Getenv(sentinelEnv) == "1" {
		// Already the detached child.
		if _, err := syscall.Setsid(); err != nil {
			return err
		}
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), sentinelEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return err
	}
	os.Exit(0)
	return nil // unreachable
}

// Run ignores SIGINT/SIGTERM (matching procctl.cpp's ignore-everything
// loop) and runs the spawn/wait/sleep cycle until ctx is cancelled. Only a
// SIGKILL delivered by the OS — which Go cannot intercept — truly ends the
// process; ctx cancellation is this implementation's cooperative equivalent
// for orderly shutdown during tests and development.
func (s *Supervisor) Run(ctx context.Context) {
	ignore := make(chan os.Signal, 4)
	signal.Notify(ignore, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ignore)
	go func() {
		for range ignore {
			s.logf("ignoring termination signal (only SIGKILL ends this process)")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.spawnAndWait(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Interval):
		}
	}
}

func (s *Supervisor) spawnAndWait(ctx context.Context) {
	cmd := exec.CommandContext(ctx, s.Name, s.Args...)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if s.Stdout != nil {
		cmd.Stdout = s.Stdout
	}
	if s.Stderr != nil {
		cmd.Stderr = s.Stderr
	}

	s.logf("starting %s %v", s.Name, s.Args)
	if err := cmd.Run(); err != nil {
		s.logf("%s exited: %v", s.Name, err)
		return
	}
	s.logf("%s exited normally", s.Name)
}

func (s *Supervisor) logf(format string, args ...interface{}) {
	if s.Log != nil {
		s.Log.Printf(format, args...)
	}
}
