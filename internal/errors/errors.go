package errors

import (
	"context"
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Process exit statuses.
const (
	ExitSuccess = 0
	// ExitUser covers bad flags and invalid configuration.
	ExitUser = 1
	// ExitSystem covers an unwritable destination, a failed archive, I/O
	// errors and interruption.
	ExitSystem = 2
)

var (
	ErrNotFound      = crdb.New("resource not found")
	ErrInvalidConfig = crdb.New("invalid configuration")
	// ErrUnsupportedFormat is returned for an archive, encoding or output
	// format dotsave does not know.
	ErrUnsupportedFormat = crdb.New("unsupported format")
	ErrNoElevation       = crdb.New("elevation unavailable")
)

// ExitError carries the exit status for err and a line telling the user
// what to do about it. A nil Err means "exit with Code, print nothing"; the
// doctor command uses it after printing its own report.
type ExitError struct {
	Err        error
	Code       int
	Suggestion string
}

func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

func NewUserError(err error, suggestion string) *ExitError {
	return &ExitError{Err: err, Code: ExitUser, Suggestion: suggestion}
}

func NewSystemError(err error, suggestion string) *ExitError {
	return &ExitError{Err: err, Code: ExitSystem, Suggestion: suggestion}
}

// NewConfigError is a user error pointing at "dotsave doctor", which
// lists every configuration problem at once.
func NewConfigError(err error) *ExitError {
	return NewUserError(err, "Run: dotsave doctor")
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps err to a process exit status. The outermost ExitError
// decides; without one, cancellation (SIGINT, SIGTERM) is ExitSystem and
// anything else ExitUser, which is what cobra's own flag and argument
// errors are.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if crdb.As(err, &exitErr) {
		return exitErr.Code
	}
	if crdb.Is(err, context.Canceled) || crdb.Is(err, context.DeadlineExceeded) {
		return ExitSystem
	}
	return ExitUser
}

// Suggestion returns the first non-empty suggestion in err's chain.
func Suggestion(err error) string {
	for err != nil {
		var exitErr *ExitError
		if !crdb.As(err, &exitErr) {
			return ""
		}
		if exitErr.Suggestion != "" {
			return exitErr.Suggestion
		}
		err = exitErr.Err
	}
	return ""
}
