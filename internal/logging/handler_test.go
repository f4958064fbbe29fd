package logging

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestHandler_Line(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	at := time.Date(2024, 3, 1, 14, 2, 11, 0, time.Local)
	r := slog.NewRecord(at, slog.LevelInfo, "item copied", 0)
	r.AddAttrs(slog.String("item", "nvim"), slog.Int("files", 12))
	if err := h.Handle(t.Context(), r); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	want := "14:02:11 INFO  item copied item=nvim files=12\n"
	if got := buf.String(); got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}

func TestHandler_LevelPadding(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, &slog.HandlerOptions{Level: LevelTrace})

	for _, l := range []slog.Level{LevelTrace, slog.LevelDebug, slog.LevelWarn, slog.LevelError} {
		if err := h.Handle(t.Context(), slog.NewRecord(time.Time{}, l, "m", 0)); err != nil {
			t.Fatalf("Handle(%v) failed: %v", l, err)
		}
	}

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		if line[5:] != " m" {
			t.Errorf("message not in column 6: %q", line)
		}
	}
	if !strings.HasPrefix(lines[0], "TRACE") {
		t.Errorf("first line = %q, want TRACE level", lines[0])
	}
}

func TestHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewHandler(&buf, nil))
	run := base.With("run", "host-20240301-090000")

	run.Info("started", "items", 3)
	base.Info("unrelated")

	lines := strings.Split(buf.String(), "\n")
	if !strings.Contains(lines[0], "run=host-20240301-090000 items=3") {
		t.Errorf("expected run attribute before record attributes, got: %q", lines[0])
	}
	if strings.Contains(lines[1], "run=") {
		t.Errorf("With leaked into the parent logger: %q", lines[1])
	}
}

func TestHandler_Enabled(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	ctx := t.Context()

	if h.Enabled(ctx, slog.LevelInfo) {
		t.Error("expected Info level to be disabled when min level is Warn")
	}
	if !h.Enabled(ctx, slog.LevelWarn) {
		t.Error("expected Warn level to be enabled")
	}
	if !h.Enabled(ctx, slog.LevelError) {
		t.Error("expected Error level to be enabled")
	}
	if !NewHandler(&bytes.Buffer{}, nil).Enabled(ctx, slog.LevelInfo) {
		t.Error("expected Info to be the default minimum")
	}
}

func TestHandler_NoTime(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(&buf, nil)

	if err := h.Handle(t.Context(), slog.NewRecord(time.Time{}, slog.LevelInfo, "no time", 0)); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if got := buf.String(); got != "INFO  no time\n" {
		t.Errorf("expected no time in output, got: %q", got)
	}
}

func TestHandler_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil))

	logger.Info("sensitive data", "api_key", "secret12345", "Passphrase", "correct horse")

	output := buf.String()
	if strings.Contains(output, "secret12345") || strings.Contains(output, "correct horse") {
		t.Fatalf("sensitive value leaked: %q", output)
	}
	if !strings.Contains(output, "api_key=****2345") {
		t.Errorf("expected masked api_key, got: %q", output)
	}
	if !strings.Contains(output, "Passphrase=****orse") {
		t.Errorf("expected masked Passphrase, got: %q", output)
	}

	buf.Reset()
	logger.Info("token value", "foo", "ghp_secrettoken")
	if !strings.Contains(buf.String(), "foo=****oken") {
		t.Errorf("expected masked value based on prefix, got: %q", buf.String())
	}
}

func TestHandler_GroupsAndQuoting(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil)).WithGroup("collector")

	logger.Info("failed",
		"name", "firewall",
		"err", errors.New("exit status 1"),
		slog.Group("cmd", "path", "/usr/sbin/iptables-save", "args", ""),
	)

	output := buf.String()
	for _, want := range []string{
		"collector.name=firewall",
		`collector.err="exit status 1"`,
		"collector.cmd.path=/usr/sbin/iptables-save",
		`collector.cmd.args=""`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %q", want, output)
		}
	}
}

func TestHandler_Duration(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, nil)).Info("done", "elapsed", 1234567*time.Microsecond)
	if !strings.Contains(buf.String(), "elapsed=1.235s") {
		t.Errorf("expected rounded duration, got: %q", buf.String())
	}
}

func TestHandler_EmptyGroupName(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, nil)
	if h.WithGroup("") != slog.Handler(h) {
		t.Error("WithGroup(\"\") should return the handler itself")
	}
	if h.WithAttrs(nil) != slog.Handler(h) {
		t.Error("WithAttrs(nil) should return the handler itself")
	}
}

func TestHandler_ConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, nil))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Go(func() {
			for range 50 {
				logger.Info("tick", "worker", i)
			}
		})
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 400 {
		t.Fatalf("got %d lines, want 400", len(lines))
	}
	whole := regexp.MustCompile(`INFO  tick worker=\d$`)
	for _, line := range lines {
		if !whole.MatchString(line) {
			t.Errorf("interleaved line: %q", line)
		}
	}
}

func TestHandler_TraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))
	logger.Log(t.Context(), LevelTrace, "copy")
	if !strings.Contains(buf.String(), "TRACE copy") {
		t.Errorf("expected TRACE level, got: %q", buf.String())
	}
}
