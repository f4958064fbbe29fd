// Package doctor provides diagnostic checks for a dotsave installation:
// external tools, the destination directory, elevation, the configuration
// file and the permissions of previous outputs.
package doctor

import "time"

// Severity orders results from harmless to blocking.
type Severity int

const (
	SeverityPass Severity = iota
	// SeverityInfo is something worth knowing, such as an optional
	// collector whose tool is absent.
	SeverityInfo
	// SeverityWarning is a degraded run: it will finish, with less in it.
	SeverityWarning
	// SeverityError means a run would fail.
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityPass:
		return "pass"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON reports.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Status   Severity `json:"status"`
	Message  string   `json:"message"`

	// Details depend on the check, e.g. "path" for a found tool or
	// "errors" for configuration problems.
	Details map[string]any `json:"details,omitempty"`

	// Fixable is set when "dotsave doctor --fix" can repair the issue.
	Fixable bool   `json:"fixable,omitempty"`
	FixHint string `json:"fix_hint,omitempty"`

	// Duration is filled in by the Runner.
	Duration time.Duration `json:"duration_ns"`
}

// Summary counts results by severity.
type Summary struct {
	Passed   int `json:"passed"`
	Info     int `json:"info"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

func (s *Summary) add(sev Severity) {
	switch sev {
	case SeverityPass:
		s.Passed++
	case SeverityInfo:
		s.Info++
	case SeverityWarning:
		s.Warnings++
	case SeverityError:
		s.Errors++
	}
}
