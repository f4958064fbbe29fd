package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// palette holds the colors of one handler; nil when output is plain.
type palette struct {
	time, key                   *color.Color
	trace, debug, info, warn, e *color.Color
}

// newPalette forces color on; SupportsColor has already checked the writer.
func newPalette() *palette {
	p := &palette{
		time:  color.New(color.FgHiBlack),
		key:   color.New(color.FgCyan),
		trace: color.New(color.FgHiBlack),
		debug: color.New(color.FgMagenta),
		info:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		e:     color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.time, p.key, p.trace, p.debug, p.info, p.warn, p.e} {
		c.EnableColor()
	}
	return p
}

func (p *palette) level(l slog.Level) *color.Color {
	switch {
	case l >= slog.LevelError:
		return p.e
	case l >= slog.LevelWarn:
		return p.warn
	case l >= slog.LevelInfo:
		return p.info
	case l >= slog.LevelDebug:
		return p.debug
	default:
		return p.trace
	}
}

// paint renders s in c, or leaves it alone when output is plain.
func paint(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	return c.Sprint(s)
}

// Handler writes one line per record:
//
//	15:04:05 WARN  transfer failed item=nvim err="exit status 23"
//
// The line is assembled first and written with a single Write, so lines
// from concurrent loggers never interleave. Values under sensitive keys are
// masked.
type Handler struct {
	opts   slog.HandlerOptions
	out    io.Writer
	mu     *sync.Mutex
	colors *palette
	attrs  []slog.Attr
	groups []string
}

// NewHandler returns a Handler on out, colored when out supports it.
func NewHandler(out io.Writer, opts *slog.HandlerOptions) *Handler {
	h := &Handler{out: out, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	if SupportsColor(out) {
		h.colors = newPalette()
	}
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	var timeColor, keyColor, levelColor *color.Color
	if h.colors != nil {
		timeColor, keyColor, levelColor = h.colors.time, h.colors.key, h.colors.level(r.Level)
	}

	if !r.Time.IsZero() {
		b.WriteString(paint(timeColor, r.Time.Format(time.TimeOnly)))
		b.WriteByte(' ')
	}
	// pad before coloring so escape codes do not count toward the width
	b.WriteString(paint(levelColor, fmt.Sprintf("%-5s", levelName(r.Level))))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	prefix := strings.Join(h.groups, ".")
	for _, a := range h.attrs {
		writeAttr(&b, keyColor, prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, keyColor, prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func writeAttr(b *strings.Builder, keyColor *color.Color, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = strings.TrimSuffix(prefix+"."+a.Key, ".")
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, keyColor, key, ga)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(paint(keyColor, key))
	b.WriteByte('=')
	b.WriteString(formatValue(a.Key, a.Value))
}

// formatValue masks secrets and quotes values that would otherwise be
// ambiguous in key=value output.
func formatValue(key string, v slog.Value) string {
	if ShouldMask(key) {
		return MaskValue(fmt.Sprint(v.Any()))
	}
	switch x := v.Any().(type) {
	case string:
		if ContainsTokenPrefix(x) {
			return MaskValue(x)
		}
		if x == "" || strings.ContainsAny(x, " \t\n\"=") {
			return strconv.Quote(x)
		}
		return x
	case error:
		return strconv.Quote(x.Error())
	case time.Duration:
		return x.Round(time.Millisecond).String()
	default:
		return fmt.Sprint(x)
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.attrs = append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...)
	return &h2
}

// WithGroup nests later keys under name, rendered as a dotted prefix.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(h.groups[:len(h.groups):len(h.groups)], name)
	return &h2
}
