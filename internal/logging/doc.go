// Package logging provides structured logging for dotsave using slog.
//
// Progress of a backup run is streamed as timestamped, leveled lines:
//
//	14:02:11 INFO  transferred item=nvim kind=rsync-style
//	14:02:12 WARN  transfer failed item=secrets err="permission denied"
//
// The text handler colors levels on a terminal (honoring NO_COLOR and
// TERM=dumb) and masks attribute values whose key looks sensitive. A JSON
// handler with the same masking is available for --log-format json and for
// --log-file, which is combined with the terminal handler via MultiHandler.
//
// # Context
//
// Commands put the configured logger in the context with [NewContext];
// library code retrieves it with [FromContext]:
//
//	logger := logging.FromContext(ctx)
//	logger.Info("staging", "dir", stage.Path())
//
// # Testing
//
// For tests, use [ForTest] to capture log output via the testing framework:
//
//	func TestSomething(t *testing.T) {
//		logger := logging.ForTest(t)
//		// logs appear in test output on failure
//	}
package logging
