package backup

import (
	"path"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
)

// Matcher decides which entries a filtered transfer skips. Patterns follow
// rsync exclude rules so that the rsync and native backends agree:
//
//   - a pattern without "/" matches the final component of a path
//   - a pattern containing "/" or "**" matches the trailing components of the
//     path; a leading "/" anchors it to the transfer root instead
//   - "*" and "?" never cross "/", "**" does
//   - a trailing "/" restricts the pattern to directories
//
// Relative paths passed to Match start with the transferred item's base name,
// as rsync sees them.
type Matcher struct {
	raw   []string
	rules []rule
}

type rule struct {
	re      *regexp.Regexp
	full    bool
	dirOnly bool
}

// NewMatcher compiles patterns. A malformed glob is a configuration error.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{raw: append([]string(nil), patterns...)}
	for _, p := range patterns {
		r, err := compileRule(p)
		if err != nil {
			return nil, errors.Wrapf(dotsaveerrors.ErrInvalidConfig, "exclude pattern %q: %v", p, err)
		}
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// Patterns returns the source patterns in order.
func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.raw...)
}

// Args renders the patterns as rsync arguments with mirror semantics:
// excluded entries are neither copied nor kept at the destination.
func (m *Matcher) Args() []string {
	args := make([]string, 0, len(m.Patterns())+2)
	for _, p := range m.Patterns() {
		args = append(args, "--exclude="+p)
	}
	return append(args, "--delete", "--delete-excluded")
}

// Match reports whether the slash-separated relative path is excluded.
func (m *Matcher) Match(rel string, isDir bool) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	rel = strings.Trim(path.Clean("/"+rel), "/")
	base := path.Base(rel)
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		subject := base
		if r.full {
			subject = rel
		}
		if r.re.MatchString(subject) {
			return true
		}
	}
	return false
}

func compileRule(pattern string) (rule, error) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return rule{}, errors.New("empty pattern")
	}
	if _, err := path.Match(p, ""); err != nil {
		return rule{}, err
	}

	var r rule
	if strings.HasSuffix(p, "/") && len(p) > 1 {
		r.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	anchored := strings.HasPrefix(p, "/")
	p = strings.TrimPrefix(p, "/")
	r.full = anchored || strings.Contains(p, "/") || strings.Contains(p, "**")

	var b strings.Builder
	switch {
	case anchored || !r.full:
		b.WriteString("^")
	default:
		b.WriteString("(^|/)")
	}
	b.WriteString(globToRegex(p))
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return rule{}, err
	}
	r.re = re
	return r, nil
}

func globToRegex(pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				i++
				if i+1 < len(runes) && runes[i+1] == '/' {
					b.WriteString("(.*/)?")
					i++
				} else {
					b.WriteString(".*")
				}
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			j := i + 1
			var class strings.Builder
			class.WriteByte('[')
			if j < len(runes) && (runes[j] == '!' || runes[j] == '^') {
				class.WriteByte('^')
				j++
			}
			for ; j < len(runes) && runes[j] != ']'; j++ {
				if runes[j] == '\\' {
					class.WriteString(`\\`)
					continue
				}
				class.WriteRune(runes[j])
			}
			if j >= len(runes) {
				b.WriteString(`\[`)
				continue
			}
			class.WriteByte(']')
			b.WriteString(class.String())
			i = j
		case '\\':
			if i+1 < len(runes) {
				i++
				b.WriteString(regexp.QuoteMeta(string(runes[i])))
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(runes[i])))
		}
	}
	return b.String()
}
