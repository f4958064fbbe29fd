package backup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/dotsave/internal/system"
)

// Collector captures one category of system or user state into the stage.
// Collectors are independent and best effort: a missing tool yields
// skipped-unavailable, a failure yields failed, neither stops the run.
type Collector interface {
	Name() string
	Privileged() bool
	Collect(ctx context.Context, stage string) CollectorResult
}

// skipMarker is implemented by privileged collectors that leave a marker file
// (relative to the stage) when elevation is unavailable.
type skipMarker interface {
	SkipMarker() string
}

// CollectorEnv is what collectors need from the run.
type CollectorEnv struct {
	Runner    system.Runner
	Elevator  *Elevator
	Home      string
	User      string
	AsRoot    bool
	Logger    *slog.Logger
	SbinPaths []string
}

func (env CollectorEnv) logger(name string) *slog.Logger {
	l := env.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("collector", name)
}

// findTool resolves name on PATH, then in the sbin directories that an
// unprivileged PATH often lacks.
func (env CollectorEnv) findTool(name string) bool {
	if system.Available(env.Runner, name) {
		return true
	}
	dirs := env.SbinPaths
	if dirs == nil {
		dirs = []string{"/usr/sbin", "/sbin", "/usr/local/sbin"}
	}
	for _, dir := range dirs {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && !info.IsDir() {
			return true
		}
	}
	return false
}

func writeOutput(stage, rel string, data []byte) error {
	path := filepath.Join(stage, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o600), "writing %s", rel)
}

// CrontabCollector exports the invoking user's crontab. With Root set it
// exports root's crontab through elevation instead.
type CrontabCollector struct {
	Env  CollectorEnv
	Root bool
}

// Name implements Collector.
func (c *CrontabCollector) Name() string {
	if c.Root {
		return "crontab-root"
	}
	return "crontab"
}

// Privileged implements Collector.
func (c *CrontabCollector) Privileged() bool { return c.Root }

// SkipMarker implements skipMarker.
func (c *CrontabCollector) SkipMarker() string { return filepath.Join("crontab", "root.skipped") }

// Collect implements Collector.
func (c *CrontabCollector) Collect(ctx context.Context, stage string) CollectorResult {
	res := CollectorResult{Name: c.Name()}
	logger := c.Env.logger(res.Name)
	if !system.Available(c.Env.Runner, "crontab") {
		logger.Info("crontab not installed")
		res.Status = StatusSkippedUnavailable
		return res
	}

	base := "user"
	name, args := "crontab", []string{"-l"}
	switch {
	case c.Root:
		base = "root"
		args = append(args, "-u", "root")
		name, args = c.Env.Elevator.Check(ctx).Command(name, args...)
	case c.Env.AsRoot && c.Env.User != "" && c.Env.User != "root":
		// under sudo, plain "crontab -l" would list root's table
		args = append(args, "-u", c.Env.User)
	}

	out, err := c.Env.Runner.Run(ctx, name, args...)
	if err != nil || len(strings.TrimSpace(string(out))) == 0 {
		if err != nil {
			logger.Info("no crontab", "err", err)
		}
		marker := filepath.Join("crontab", base+".empty")
		if werr := writeOutput(stage, marker, []byte("no crontab entries\n")); werr != nil {
			logger.Warn("cannot write marker", "err", werr)
			res.Status, res.Error = StatusFailed, werr.Error()
			return res
		}
		res.Status = StatusEmpty
		res.Files = []string{marker}
		return res
	}

	rel := filepath.Join("crontab", base+".txt")
	if err := writeOutput(stage, rel, out); err != nil {
		logger.Warn("crontab export failed", "err", err)
		res.Status, res.Error = StatusFailed, err.Error()
		return res
	}
	logger.Info("crontab exported")
	res.Status = StatusOK
	res.Files = []string{rel}
	return res
}

// HistoryFiles are the shell history locations captured, relative to home.
var HistoryFiles = []string{
	".bash_history",
	".zsh_history",
	".histfile",
	".local/share/fish/fish_history",
	".python_history",
}

// HistoryCollector copies known shell history files into history/.
type HistoryCollector struct {
	Env   CollectorEnv
	Files []string
}

// Name implements Collector.
func (c *HistoryCollector) Name() string { return "shell-history" }

// Privileged implements Collector.
func (c *HistoryCollector) Privileged() bool { return false }

// Collect implements Collector.
func (c *HistoryCollector) Collect(ctx context.Context, stage string) CollectorResult {
	res := CollectorResult{Name: c.Name()}
	logger := c.Env.logger(res.Name)
	files := c.Files
	if files == nil {
		files = HistoryFiles
	}

	var found int
	var failures []error
	for _, f := range files {
		src := filepath.Join(c.Env.Home, f)
		info, err := os.Stat(src)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		found++
		rel := filepath.Join("history", filepath.Base(f))
		if err := os.MkdirAll(filepath.Join(stage, "history"), 0o700); err != nil {
			failures = append(failures, err)
			continue
		}
		if err := copyFile(src, filepath.Join(stage, rel), info); err != nil {
			logger.Warn("history copy failed", "file", f, "err", err)
			failures = append(failures, err)
			continue
		}
		res.Files = append(res.Files, rel)
	}

	switch {
	case found == 0:
		marker := filepath.Join("history", "history.empty")
		if err := writeOutput(stage, marker, []byte("no shell history files found\n")); err != nil {
			res.Status, res.Error = StatusFailed, err.Error()
			return res
		}
		logger.Info("no shell history found")
		res.Status = StatusEmpty
		res.Files = []string{marker}
	case len(res.Files) == 0:
		res.Status, res.Error = StatusFailed, errors.Join(failures...).Error()
	default:
		logger.Info("shell history captured", "files", len(res.Files))
		res.Status = StatusOK
	}
	return res
}

// DconfCollector dumps the whole dconf database.
type DconfCollector struct {
	Env CollectorEnv
}

// Name implements Collector.
func (c *DconfCollector) Name() string { return "dconf" }

// Privileged implements Collector.
func (c *DconfCollector) Privileged() bool { return false }

// Collect implements Collector.
func (c *DconfCollector) Collect(ctx context.Context, stage string) CollectorResult {
	res := CollectorResult{Name: c.Name()}
	logger := c.Env.logger(res.Name)
	if !system.Available(c.Env.Runner, "dconf") {
		logger.Info("dconf not installed")
		res.Status = StatusSkippedUnavailable
		return res
	}
	out, err := c.Env.Runner.Run(ctx, "dconf", "dump", "/")
	if err != nil {
		logger.Warn("dconf dump failed", "err", err)
		res.Status, res.Error = StatusFailed, err.Error()
		return res
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		res.Status = StatusEmpty
		return res
	}
	rel := filepath.Join("desktop", "dconf-settings.ini")
	if err := writeOutput(stage, rel, out); err != nil {
		logger.Warn("dconf export failed", "err", err)
		res.Status, res.Error = StatusFailed, err.Error()
		return res
	}
	logger.Info("desktop settings exported")
	res.Status = StatusOK
	res.Files = []string{rel}
	return res
}

// FirewallCollector exports three ufw views as one unit: nothing is written
// unless all three succeed.
type FirewallCollector struct {
	Env CollectorEnv
}

// Name implements Collector.
func (c *FirewallCollector) Name() string { return "firewall" }

// Privileged implements Collector.
func (c *FirewallCollector) Privileged() bool { return true }

// SkipMarker implements skipMarker.
func (c *FirewallCollector) SkipMarker() string { return filepath.Join("firewall", "firewall.skipped") }

var firewallViews = []struct {
	file string
	args []string
}{
	{"ufw-status-verbose.txt", []string{"status", "verbose"}},
	{"ufw-status-numbered.txt", []string{"status", "numbered"}},
	{"ufw-rules.txt", []string{"show", "added"}},
}

// Collect implements Collector.
func (c *FirewallCollector) Collect(ctx context.Context, stage string) CollectorResult {
	res := CollectorResult{Name: c.Name()}
	logger := c.Env.logger(res.Name)
	if !c.Env.findTool("ufw") {
		logger.Info("ufw not installed")
		res.Status = StatusSkippedUnavailable
		return res
	}

	elev := c.Env.Elevator.Check(ctx)
	outputs := make(map[string][]byte, len(firewallViews))
	for _, v := range firewallViews {
		name, args := elev.Command("ufw", v.args...)
		out, err := c.Env.Runner.Run(ctx, name, args...)
		if err != nil {
			logger.Warn("firewall export failed", "err", err)
			res.Status, res.Error = StatusFailed, err.Error()
			return res
		}
		outputs[v.file] = out
	}

	for _, v := range firewallViews {
		rel := filepath.Join("firewall", v.file)
		if err := writeOutput(stage, rel, outputs[v.file]); err != nil {
			logger.Warn("firewall export failed", "err", err)
			os.RemoveAll(filepath.Join(stage, "firewall"))
			res.Status, res.Error, res.Files = StatusFailed, err.Error(), nil
			return res
		}
		res.Files = append(res.Files, rel)
	}
	logger.Info("firewall rules exported")
	res.Status = StatusOK
	return res
}

// DefaultCollectors builds the enabled collectors in run order.
func DefaultCollectors(env CollectorEnv, enabled map[string]bool) []Collector {
	all := []Collector{
		&CrontabCollector{Env: env},
		&CrontabCollector{Env: env, Root: true},
		&HistoryCollector{Env: env},
		&PackagesCollector{Env: env},
		&DconfCollector{Env: env},
		&FirewallCollector{Env: env},
	}
	var out []Collector
	for _, c := range all {
		if on, ok := enabled[c.Name()]; ok && !on {
			continue
		}
		out = append(out, c)
	}
	return out
}
