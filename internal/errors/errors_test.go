package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	crdb "github.com/cockroachdb/errors"
)

func TestExitError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ExitError
		want string
	}{
		{
			name: "with underlying error",
			err:  NewExitError(ErrNotFound, ExitUser),
			want: "resource not found",
		},
		{
			name: "with wrapped error",
			err:  NewExitError(fmt.Errorf("loading config: %w", ErrInvalidConfig), ExitUser),
			want: "loading config: invalid configuration",
		},
		{
			name: "nil underlying error",
			err:  NewExitError(nil, ExitSystem),
			want: "exit code 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("ExitError.Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExitError_Unwrap(t *testing.T) {
	tests := []struct {
		name       string
		err        *ExitError
		wantTarget error
		wantIs     bool
	}{
		{
			name:       "unwrap to sentinel error",
			err:        NewExitError(ErrUnsupportedFormat, ExitUser),
			wantTarget: ErrUnsupportedFormat,
			wantIs:     true,
		},
		{
			name:       "unwrap through cockroach wrap",
			err:        NewSystemError(crdb.Wrap(ErrNoElevation, "privileged tier"), ""),
			wantTarget: ErrNoElevation,
			wantIs:     true,
		},
		{
			name:       "no match for different sentinel",
			err:        NewExitError(ErrNotFound, ExitUser),
			wantTarget: ErrInvalidConfig,
			wantIs:     false,
		},
		{
			name:       "nil underlying error",
			err:        NewExitError(nil, ExitUser),
			wantTarget: ErrNotFound,
			wantIs:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := crdb.Is(tt.err, tt.wantTarget); got != tt.wantIs {
				t.Errorf("Is() = %v, want %v", got, tt.wantIs)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", stderrors.New("boom"), ExitUser},
		{"config error", NewConfigError(ErrInvalidConfig), ExitUser},
		{"system error", NewSystemError(stderrors.New("disk full"), "free space"), ExitSystem},
		{"wrapped system error", crdb.Wrap(NewSystemError(stderrors.New("x"), ""), "running backup"), ExitSystem},
		{"interrupted", crdb.Wrap(context.Canceled, "staging items"), ExitSystem},
		{"deadline", context.DeadlineExceeded, ExitSystem},
		{"user error around cancellation", NewUserError(context.Canceled, ""), ExitUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewConstructors(t *testing.T) {
	t.Run("NewUserError", func(t *testing.T) {
		e := NewUserError(stderrors.New("user error"), "check input")
		if e.Code != ExitUser {
			t.Errorf("Code = %d, want %d", e.Code, ExitUser)
		}
		if e.Suggestion != "check input" {
			t.Errorf("Suggestion = %q, want 'check input'", e.Suggestion)
		}
	})

	t.Run("NewSystemError", func(t *testing.T) {
		e := NewSystemError(stderrors.New("system error"), "check logs")
		if e.Code != ExitSystem {
			t.Errorf("Code = %d, want %d", e.Code, ExitSystem)
		}
	})

	t.Run("NewConfigError", func(t *testing.T) {
		e := NewConfigError(stderrors.New("config error"))
		if e.Suggestion != "Run: dotsave doctor" {
			t.Errorf("Suggestion = %q, want 'Run: dotsave doctor'", e.Suggestion)
		}
	})
}

func TestSuggestion(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", stderrors.New("x"), ""},
		{"direct", NewUserError(stderrors.New("x"), "Use --keep 3"), "Use --keep 3"},
		{"wrapped", crdb.Wrap(NewSystemError(stderrors.New("x"), "free space"), "packaging"), "free space"},
		{"inner", NewExitError(NewConfigError(ErrInvalidConfig), ExitSystem), "Run: dotsave doctor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Suggestion(tt.err); got != tt.want {
				t.Errorf("Suggestion() = %q, want %q", got, tt.want)
			}
		})
	}
}
