// Package supervisor manages the lifecycle of the office worker process.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/officebridge/officebridge/internal/process"
)

// killWaitTimeout bounds the wait after a SIGKILL escalation so the stop
// path can never hang on an unreapable process.
const killWaitTimeout = 3 * time.Second

// StderrHandler consumes the worker's stderr lines.
type StderrHandler interface {
	HandleReader(r io.Reader)
}

// Config holds configuration for creating a Supervisor.
type Config struct {
	Runner process.Runner
	Logger *slog.Logger

	// Stderr receives the worker's stderr stream if set.
	Stderr StderrHandler

	// OnExit is called once, from the waiter goroutine, when the
	// worker exits for any reason.
	OnExit func(exitCode int, uptime time.Duration)
}

// Supervisor owns the worker process handle: it spawns the worker into its
// own process group, reaps it exactly once, and funnels every termination
// path through the same idempotent routine.
type Supervisor struct {
	runner process.Runner
	logger *slog.Logger
	stderr StderrHandler
	onExit func(exitCode int, uptime time.Duration)

	mu        sync.Mutex
	cmd       *exec.Cmd
	pid       int
	startTime time.Time
	exitCode  int
	exited    bool

	done chan struct{}

	// stderrDone is closed when the stderr reader has drained the pipe.
	// wait() must not reap the child before then: Wait closes the pipe,
	// and a fast-exiting worker's last lines would be lost.
	stderrDone chan struct{}
}

// New creates a Supervisor. The worker is not started yet.
func New(cfg Config) *Supervisor {
	return &Supervisor{
		runner: cfg.Runner,
		logger: cfg.Logger,
		stderr: cfg.Stderr,
		onExit:     cfg.OnExit,
		done:       make(chan struct{}),
		stderrDone: make(chan struct{}),
	}
}

// Start spawns the worker process and returns its PID. It does not wait
// for the worker to become ready; the worker takes several seconds to open
// its accept port and callers connect with retry.
func (s *Supervisor) Start(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return 0, errors.New("worker already started")
	}

	cmd, err := s.runner.BuildCommand(ctx)
	if err != nil {
		return 0, fmt.Errorf("build worker command: %w", err)
	}

	// Own process group: signaling the worker must not propagate to us,
	// and an operator signaling us must not hit the worker twice.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	var stderr io.ReadCloser
	if s.stderr != nil {
		stderr, err = cmd.StderrPipe()
		if err != nil {
			return 0, fmt.Errorf("stderr pipe: %w", err)
		}
	}

	s.startTime = time.Now()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", s.runner.Name(), err)
	}

	s.cmd = cmd
	s.pid = cmd.Process.Pid

	s.logger.Info("worker_started",
		"name", s.runner.Name(),
		"pid", s.pid,
	)

	if stderr != nil {
		go func() {
			s.stderr.HandleReader(stderr)
			close(s.stderrDone)
		}()
	} else {
		close(s.stderrDone)
	}

	go s.wait()

	return s.pid, nil
}

// wait reaps the worker exactly once and records its exit. It joins the
// stderr reader first so the pipe is fully drained before Wait closes it.
func (s *Supervisor) wait() {
	<-s.stderrDone
	waitErr := s.cmd.Wait()
	uptime := time.Since(s.startTime)
	code := extractExitCode(waitErr)

	s.mu.Lock()
	s.exited = true
	s.exitCode = code
	s.mu.Unlock()

	s.logger.Info("worker_exited",
		"pid", s.pid,
		"exit_code", code,
		"uptime", uptime.String(),
	)

	close(s.done)

	if s.onExit != nil {
		s.onExit(code, uptime)
	}
}

// Done returns a channel closed when the worker has exited and been reaped.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// ExitCode returns the worker's exit code. Only meaningful after Done().
func (s *Supervisor) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// Pid returns the worker PID, or 0 if never started.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pid
}

// Alive reports whether the worker was started and has not exited yet.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil && !s.exited
}

// Uptime returns how long the worker has been running, or 0 before start.
func (s *Supervisor) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return 0
	}
	return time.Since(s.startTime)
}

// Signal relays an OS signal to the worker's process group. A process that
// is already gone is treated as success.
func (s *Supervisor) Signal(sig syscall.Signal) error {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	if cmd == nil || exited {
		return nil
	}

	if err := signalGroup(cmd.Process.Pid, sig); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("signal worker: %w", err)
	}
	return nil
}

// Terminate stops the worker: SIGTERM to the process group, a bounded wait
// up to grace, then SIGKILL with its own bounded wait. It is idempotent and
// never errors for an already-dead worker.
func (s *Supervisor) Terminate(grace time.Duration) error {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	if cmd == nil || exited {
		return nil
	}

	pid := cmd.Process.Pid
	if err := signalGroup(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("terminate_signal_failed", "pid", pid, "error", err)
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(grace):
	}

	s.logger.Warn("force_killing_worker", "pid", pid, "grace", grace.String())
	if err := signalGroup(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Error("force_kill_failed", "pid", pid, "error", err)
	}

	select {
	case <-s.done:
		return nil
	case <-time.After(killWaitTimeout):
		return fmt.Errorf("worker pid %d did not exit after SIGKILL", pid)
	}
}

// signalGroup sends sig to pid's process group, falling back to the single
// process when the group lookup fails.
func signalGroup(pid int, sig syscall.Signal) error {
	if pgid, err := syscall.Getpgid(pid); err == nil {
		return syscall.Kill(-pgid, sig)
	}
	return syscall.Kill(pid, sig)
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
