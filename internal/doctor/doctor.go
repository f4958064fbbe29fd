package doctor

import (
	"context"
	"time"
)

// Check is one diagnostic. Run must not modify the system; fixes go
// through Fixer.
type Check interface {
	Name() string
	// Category groups checks in output: "config", "tools", "privileges",
	// "filesystem".
	Category() string
	Run(ctx context.Context) *CheckResult
}

// DefaultCheckTimeout bounds a single check. The slow ones shell out, for
// example "sudo -n true" on a host with a broken PAM stack.
const DefaultCheckTimeout = 15 * time.Second

// Runner runs checks in registration order.
type Runner struct {
	checks  []Check
	timeout time.Duration
	now     func() time.Time
}

// NewRunner returns a Runner with DefaultCheckTimeout.
func NewRunner() *Runner {
	return &Runner{timeout: DefaultCheckTimeout, now: time.Now}
}

// SetTimeout changes the per-check deadline; zero or less disables it.
func (r *Runner) SetTimeout(d time.Duration) *Runner {
	r.timeout = d
	return r
}

func (r *Runner) AddCheck(c Check) {
	r.checks = append(r.checks, c)
}

// Checks returns the registered checks in order.
func (r *Runner) Checks() []Check {
	return r.checks
}

// Run executes the checks and returns their report. Once ctx is canceled
// the remaining checks are not started and the report is marked
// Interrupted.
func (r *Runner) Run(ctx context.Context) *DoctorReport {
	report := &DoctorReport{
		Timestamp: r.now().UTC(),
		Results:   make([]*CheckResult, 0, len(r.checks)),
	}

	for _, check := range r.checks {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}
		result := r.runOne(ctx, check)
		report.Results = append(report.Results, result)
		report.Summary.add(result.Status)
	}
	return report
}

func (r *Runner) runOne(ctx context.Context, check Check) *CheckResult {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := r.now()
	result := check.Run(ctx)
	if result == nil {
		result = &CheckResult{Status: SeverityError, Message: "check returned no result"}
	}
	if result.Name == "" {
		result.Name = check.Name()
	}
	if result.Category == "" {
		result.Category = check.Category()
	}
	result.Duration = r.now().Sub(start)
	return result
}

// DoctorReport is the outcome of one Runner.Run.
type DoctorReport struct {
	Timestamp time.Time      `json:"timestamp"`
	Results   []*CheckResult `json:"results"`
	Summary   Summary        `json:"summary"`
	// Interrupted is set when cancellation cut the run short.
	Interrupted bool `json:"interrupted,omitempty"`
}

func (r *DoctorReport) HasErrors() bool {
	return r.Summary.Errors > 0
}

func (r *DoctorReport) HasWarnings() bool {
	return r.Summary.Warnings > 0
}

// Worst returns the highest severity in the report, SeverityPass when
// empty.
func (r *DoctorReport) Worst() Severity {
	worst := SeverityPass
	for _, res := range r.Results {
		worst = max(worst, res.Status)
	}
	return worst
}
