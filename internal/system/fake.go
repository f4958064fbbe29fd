package system

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Response is a scripted result for Fake.
type Response struct {
	Stdout string
	Stderr string
	Exit   int
	Err    error
}

// Fake is a Runner for tests. Commands are keyed by their full command line
// ("crontab -l"). Installed lists the tools LookPath finds; Responses maps a
// command line to its scripted result. Unscripted commands succeed with no
// output unless Handler is set.
type Fake struct {
	Installed map[string]bool
	Responses map[string]Response
	// Handler, if set, is consulted for commands not in Responses.
	Handler func(name string, args []string) (Response, bool)

	mu      sync.Mutex
	calls   []string
	started []string
}

// NewFake returns a Fake where the named tools are installed.
func NewFake(installed ...string) *Fake {
	f := &Fake{Installed: map[string]bool{}, Responses: map[string]Response{}}
	for _, name := range installed {
		f.Installed[name] = true
	}
	return f
}

// On scripts the result for a command line.
func (f *Fake) On(cmdline string, resp Response) *Fake {
	f.Responses[cmdline] = resp
	return f
}

// LookPath implements Runner.
func (f *Fake) LookPath(name string) (string, error) {
	if f.Installed[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.Wrapf(ErrNotInstalled, "%s", name)
}

// Run implements Runner.
func (f *Fake) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	f.calls = append(f.calls, line)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, ok := f.Responses[line]
	if !ok && f.Handler != nil {
		resp, ok = f.Handler(name, args)
	}
	if !ok {
		return nil, nil
	}
	if resp.Err != nil || resp.Exit != 0 {
		err := resp.Err
		if err == nil {
			err = errors.Newf("exit status %d", resp.Exit)
		}
		return []byte(resp.Stdout), &CommandError{Name: name, Args: args, ExitCode: resp.Exit, Stderr: resp.Stderr, Err: err}
	}
	return []byte(resp.Stdout), nil
}

// Start implements Runner.
func (f *Fake) Start(name string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	if !f.Installed[name] {
		return errors.Wrapf(ErrNotInstalled, "%s", name)
	}
	return nil
}

// Calls returns the command lines passed to Run, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Started returns the command lines passed to Start.
func (f *Fake) Started() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.started...)
}

// Called reports whether cmdline was run.
func (f *Fake) Called(cmdline string) bool {
	for _, c := range f.Calls() {
		if c == cmdline {
			return true
		}
	}
	return false
}
