// Package proc manages the detached RateWatch daemon process: spawning it,
// probing it, and terminating it with escalation. Semantics are unix
// (signal-0 probes, SIGTERM then SIGKILL), matching the CI runners the
// daemon targets.
package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

const killPollInterval = 100 * time.Millisecond

// DefaultKillGrace is how long a SIGTERM'd daemon gets to exit before
// escalation to SIGKILL.
const DefaultKillGrace = 3 * time.Second

// ErrNotFound reports a PID with no live process behind it, typically a
// stale PID file from a run that already ended.
var ErrNotFound = errors.New("process not found")

// SpawnOptions configures a detached daemon spawn.
type SpawnOptions struct {
	// Binary is the executable to run. Empty means the current executable.
	Binary string

	// Args are passed to the binary verbatim.
	Args []string

	// Env is the complete child environment. Nil inherits the parent's.
	Env []string

	// Dir is the child's working directory. Empty inherits the parent's.
	Dir string
}

// Spawn starts the daemon detached from the calling process and returns its
// PID. The child gets its own process group so it survives the parent's CI
// step ending, and its stdio is bound to /dev/null: a detached daemon logs
// to a file or not at all.
func Spawn(opts SpawnOptions) (int, error) {
	bin := opts.Binary
	if bin == "" {
		var err error
		if bin, err = os.Executable(); err != nil {
			return 0, fmt.Errorf("failed to resolve executable: %w", err)
		}
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer func() { _ = devnull.Close() }()

	cmd := exec.Command(bin, opts.Args...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}

	pid := cmd.Process.Pid
	// drop the handle; the parent exits without waiting on the child
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to release daemon process: %w", err)
	}
	return pid, nil
}

// Alive reports whether pid refers to a live process, using a signal-0
// probe. EPERM counts as alive: the process exists, we just may not signal
// it.
func Alive(pid int) (bool, error) {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return false, nil
	case errors.Is(err, syscall.EPERM):
		return true, nil
	default:
		return false, fmt.Errorf("failed to probe pid %d: %w", pid, err)
	}
}

// Kill sends SIGTERM to pid. A dead or never-existing process is reported
// via [ErrNotFound] so callers can treat a stale PID file as "not running"
// rather than a failure.
func Kill(pid int) error {
	alive, err := Alive(pid)
	if err != nil {
		return err
	}
	if !alive {
		return fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("pid %d: %w", pid, ErrNotFound)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("pid %d: %w", pid, ErrNotFound)
		}
		return fmt.Errorf("failed to signal pid %d: %w", pid, err)
	}
	return nil
}

// Result describes how a termination went.
type Result struct {
	// Escalated is true when SIGTERM was not enough and SIGKILL was sent.
	Escalated bool

	// Terminated is true when the process is confirmed gone.
	Terminated bool
}

// KillWithVerification terminates pid and confirms it is gone: SIGTERM,
// probe every 100ms up to grace (default [DefaultKillGrace]), then SIGKILL
// and a final probe. A process that survives SIGKILL is an error. A stale
// PID surfaces as [ErrNotFound], same as [Kill].
func KillWithVerification(pid int, grace time.Duration) (Result, error) {
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	if err := Kill(pid); err != nil {
		return Result{}, err
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		time.Sleep(killPollInterval)
		alive, err := Alive(pid)
		if err != nil {
			return Result{}, err
		}
		if !alive {
			return Result{Terminated: true}, nil
		}
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return Result{Escalated: true, Terminated: true}, nil
	}
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) && !errors.Is(err, syscall.ESRCH) {
		return Result{Escalated: true}, fmt.Errorf("failed to SIGKILL pid %d: %w", pid, err)
	}

	time.Sleep(killPollInterval)
	alive, err := Alive(pid)
	if err != nil {
		return Result{Escalated: true}, err
	}
	if alive {
		return Result{Escalated: true}, fmt.Errorf("pid %d survived SIGKILL", pid)
	}
	return Result{Escalated: true, Terminated: true}, nil
}
