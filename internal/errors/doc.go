// Package errors provides error handling conventions for the dotsave CLI.
//
// It defines the sentinel errors shared across packages and the [ExitError]
// type used to map fatal failures onto process exit codes. Creating and
// wrapping errors is left to github.com/cockroachdb/errors; files that need
// both import this package as dotsaveerrors.
//
// # Exit Codes
//
//   - ExitSuccess (0): the run completed all stages; per-item failures do not
//     change this
//   - ExitUser (1): configuration or usage error (invalid archive format,
//     unknown profile, bad flags)
//   - ExitSystem (2): infrastructure failure (unwritable destination,
//     packaging failure)
//
// # ExitError
//
//	err := errors.NewSystemError(cause, "Check that the destination is writable")
//	os.Exit(errors.ExitCode(err))
package errors
