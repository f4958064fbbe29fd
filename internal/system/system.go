// Package system runs the external tools dotsave delegates to (rsync, tar,
// crontab, package managers, sudo) behind a small interface so that the
// backup pipeline can be exercised in tests without them.
package system

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/dotsave/internal/logging"
)

// DefaultTimeout bounds a single external invocation.
const DefaultTimeout = 30 * time.Minute

// ErrNotInstalled is returned by LookPath when a tool is not on PATH.
var ErrNotInstalled = errors.New("tool not installed")

// Runner executes external commands.
type Runner interface {
	// LookPath resolves name on PATH, returning ErrNotInstalled if absent.
	LookPath(name string) (string, error)
	// Run executes name and returns its standard output. A non-zero exit is
	// returned as a *CommandError carrying the standard error text.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// Start launches name without waiting for it to finish.
	Start(name string, args ...string) error
}

// CommandError describes a failed external command.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		if i := strings.IndexByte(s, '\n'); i > 0 {
			s = s[:i]
		}
		msg += ": " + s
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Exec runs commands with os/exec.
type Exec struct {
	// Timeout bounds each Run call. Zero means DefaultTimeout.
	Timeout time.Duration
	// Env is appended to the inherited environment.
	Env []string
}

// NewExec returns an Exec with the given per-command timeout.
func NewExec(timeout time.Duration) *Exec {
	return &Exec{Timeout: timeout}
}

// LookPath implements Runner.
func (x *Exec) LookPath(name string) (string, error) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(ErrNotInstalled, "%s", name)
	}
	return p, nil
}

// Run implements Runner.
func (x *Exec) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := x.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logging.FromContext(ctx).Log(ctx, logging.LevelTrace, "exec", "cmd", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	if len(x.Env) > 0 {
		cmd.Env = append(os.Environ(), x.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		ce := &CommandError{Name: name, Args: args, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			ce.ExitCode = exitErr.ExitCode()
		}
		if ctx.Err() == context.DeadlineExceeded {
			ce.Err = errors.Wrapf(ctx.Err(), "timed out after %s", timeout)
		}
		return stdout.Bytes(), ce
	}
	return stdout.Bytes(), nil
}

// Start implements Runner. The child gets its own session and no stdio so
// it survives dotsave exiting.
func (x *Exec) Start(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "starting %s", name)
	}
	slog.Debug("started detached", "cmd", name, "pid", cmd.Process.Pid)
	return cmd.Process.Release()
}

// Available reports whether name resolves on PATH.
func Available(r Runner, name string) bool {
	_, err := r.LookPath(name)
	return err == nil
}
