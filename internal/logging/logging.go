package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

// Format is a --log-format value.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --log-format value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", errors.Newf("unknown log format %q (want text or json)", s)
	}
}

// Config describes a single-destination logger.
type Config struct {
	Level  slog.Level
	Format Format
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New returns a logger for cfg. Unknown formats fall back to text.
func New(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	return slog.New(NewFormatHandler(output, cfg.Format, cfg.Level))
}

// NewFormatHandler returns the handler for format writing to out.
// JSON output gets the same redaction and level naming as text output.
func NewFormatHandler(out io.Writer, format Format, level slog.Level) slog.Handler {
	if format == FormatJSON {
		return slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: jsonReplaceAttr,
		})
	}
	return NewHandler(out, &slog.HandlerOptions{Level: level})
}

func jsonReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok {
			return slog.String(slog.LevelKey, levelName(l))
		}
		return a
	}
	if ShouldMask(a.Key) {
		return slog.String(a.Key, MaskValue(fmt.Sprint(a.Value.Any())))
	}
	if a.Value.Kind() == slog.KindString && ContainsTokenPrefix(a.Value.String()) {
		return slog.String(a.Key, MaskValue(a.Value.String()))
	}
	return a
}

// testWriter sends each handler line to t.Log.
type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

// ForTest returns a trace-level logger writing through t.Log, so a backup
// run's per-file events show up next to the failing assertion.
func ForTest(t *testing.T) *slog.Logger {
	t.Helper()
	return New(Config{
		Level:  LevelTrace,
		Format: FormatText,
		Output: &testWriter{t: t},
	})
}
