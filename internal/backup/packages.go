package backup

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/dotsave/internal/system"
)

// PackageSource is one package manager that can be detected and queried.
type PackageSource interface {
	Name() string
	Detect() bool
	// Collect returns file name -> listing text.
	Collect(ctx context.Context) (map[string][]byte, error)
}

// query is one command whose stdout becomes one file.
type query struct {
	file     string
	cmd      string
	args     []string
	optional bool
}

// commandSource is a PackageSource made of queries, detected by one binary.
type commandSource struct {
	name    string
	detect  string
	queries []query
	runner  system.Runner
}

func (s *commandSource) Name() string { return s.name }

func (s *commandSource) Detect() bool { return system.Available(s.runner, s.detect) }

func (s *commandSource) Collect(ctx context.Context) (map[string][]byte, error) {
	out := make(map[string][]byte, len(s.queries))
	var errs []error
	for _, q := range s.queries {
		if q.cmd != s.detect && !system.Available(s.runner, q.cmd) {
			continue
		}
		data, err := s.runner.Run(ctx, q.cmd, q.args...)
		if err != nil {
			if !q.optional {
				errs = append(errs, err)
			}
			continue
		}
		if len(strings.TrimSpace(string(data))) > 0 {
			out[q.file] = data
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// PrimarySources are tried in order; the first detected wins.
func PrimarySources(r system.Runner) []PackageSource {
	return []PackageSource{
		&commandSource{name: "apt", detect: "dpkg-query", runner: r, queries: []query{
			{file: "dpkg-packages.txt", cmd: "dpkg-query", args: []string{"-W", "--showformat=${binary:Package}\t${Version}\n"}},
			{file: "apt-manual.txt", cmd: "apt-mark", args: []string{"showmanual"}, optional: true},
		}},
		&commandSource{name: "dnf", detect: "dnf", runner: r, queries: []query{
			{file: "dnf-installed.txt", cmd: "dnf", args: []string{"list", "--installed"}},
			{file: "dnf-userinstalled.txt", cmd: "dnf", args: []string{"repoquery", "--userinstalled", "--qf", "%{name}\n"}, optional: true},
		}},
		&commandSource{name: "pacman", detect: "pacman", runner: r, queries: []query{
			{file: "pacman-all.txt", cmd: "pacman", args: []string{"-Q"}},
			{file: "pacman-explicit.txt", cmd: "pacman", args: []string{"-Qe"}, optional: true},
		}},
		&commandSource{name: "zypper", detect: "zypper", runner: r, queries: []query{
			{file: "zypper-installed.txt", cmd: "zypper", args: []string{"--quiet", "search", "--installed-only"}},
		}},
	}
}

// SecondarySources always run when present.
func SecondarySources(r system.Runner) []PackageSource {
	return []PackageSource{
		&commandSource{name: "flatpak", detect: "flatpak", runner: r, queries: []query{
			{file: "flatpak.txt", cmd: "flatpak", args: []string{"list", "--app", "--columns=application,version,origin"}},
		}},
		&commandSource{name: "snap", detect: "snap", runner: r, queries: []query{
			{file: "snap.txt", cmd: "snap", args: []string{"list"}},
		}},
		&commandSource{name: "pipx", detect: "pipx", runner: r, queries: []query{
			{file: "pipx.txt", cmd: "pipx", args: []string{"list", "--short"}},
		}},
	}
}

// FallbackSource runs only when no primary manager was detected.
func FallbackSource(r system.Runner) PackageSource {
	return &commandSource{name: "rpm", detect: "rpm", runner: r, queries: []query{
		{file: "rpm-packages.txt", cmd: "rpm", args: []string{"-qa"}},
	}}
}

// PackagesCollector writes package manifests into packages/.
type PackagesCollector struct {
	Env       CollectorEnv
	Primary   []PackageSource
	Secondary []PackageSource
	Fallback  PackageSource
}

// Name implements Collector.
func (c *PackagesCollector) Name() string { return "packages" }

// Privileged implements Collector.
func (c *PackagesCollector) Privileged() bool { return false }

// Collect implements Collector.
func (c *PackagesCollector) Collect(ctx context.Context, stage string) CollectorResult {
	res := CollectorResult{Name: c.Name()}
	logger := c.Env.logger(res.Name)
	primary, secondary, fallback := c.Primary, c.Secondary, c.Fallback
	if primary == nil {
		primary = PrimarySources(c.Env.Runner)
	}
	if secondary == nil {
		secondary = SecondarySources(c.Env.Runner)
	}
	if fallback == nil {
		fallback = FallbackSource(c.Env.Runner)
	}

	var (
		detected      int
		failures      []error
		primaryFound  bool
		primaryOutput bool
	)
	emit := func(src PackageSource) bool {
		detected++
		files, err := src.Collect(ctx)
		if err != nil {
			logger.Warn("package query failed", "source", src.Name(), "err", err)
			failures = append(failures, errors.Wrap(err, src.Name()))
			return false
		}
		names := make([]string, 0, len(files))
		for name := range files {
			names = append(names, name)
		}
		sort.Strings(names)
		wrote := false
		for _, name := range names {
			rel := filepath.Join("packages", name)
			if err := writeOutput(stage, rel, files[name]); err != nil {
				logger.Warn("cannot write package list", "file", rel, "err", err)
				failures = append(failures, err)
				continue
			}
			res.Files = append(res.Files, rel)
			wrote = true
		}
		if wrote {
			logger.Info("package list captured", "source", src.Name())
		}
		return wrote
	}

	for _, src := range primary {
		if !src.Detect() {
			continue
		}
		primaryFound = true
		primaryOutput = emit(src)
		break
	}
	for _, src := range secondary {
		if src.Detect() {
			emit(src)
		}
	}
	if !primaryFound && !primaryOutput && fallback.Detect() {
		emit(fallback)
	}

	switch {
	case detected == 0:
		logger.Info("no package manager found")
		res.Status = StatusSkippedUnavailable
	case len(res.Files) > 0:
		res.Status = StatusOK
	case len(failures) > 0:
		res.Status, res.Error = StatusFailed, errors.Join(failures...).Error()
	default:
		res.Status = StatusEmpty
	}
	return res
}
