package backup

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/dotsave/internal/config"
	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/logging"
	"github.com/thoreinstein/dotsave/internal/metrics"
	"github.com/thoreinstein/dotsave/internal/paths"
	"github.com/thoreinstein/dotsave/internal/system"
)

// Orchestrator performs one backup run from a validated configuration.
type Orchestrator struct {
	cfg *config.Config

	runner     system.Runner
	now        func() time.Time
	getenv     func(string) string
	home       string
	user       string
	uid, gid   int
	euid       int
	logger     *slog.Logger
	copier     Copier
	elevator   *Elevator
	collectors []Collector
	notifier   *Notifier
	chown      func(path string, uid, gid int) error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunner sets the runner used for every external command.
func WithRunner(r system.Runner) Option {
	return func(o *Orchestrator) { o.runner = r }
}

// WithClock sets the time source used for the run name and report.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithGetenv sets the environment lookup used for sudo and display detection.
func WithGetenv(getenv func(string) string) Option {
	return func(o *Orchestrator) { o.getenv = getenv }
}

// WithHome overrides the resolved home directory.
func WithHome(home string) Option {
	return func(o *Orchestrator) { o.home = home }
}

// WithUser overrides the invoking user.
func WithUser(name string, uid, gid int) Option {
	return func(o *Orchestrator) {
		o.user, o.uid, o.gid = name, uid, gid
	}
}

// WithEUID overrides the effective user id.
func WithEUID(euid int) Option {
	return func(o *Orchestrator) { o.euid = euid }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithCopier forces a transfer backend.
func WithCopier(c Copier) Option {
	return func(o *Orchestrator) { o.copier = c }
}

// WithElevator sets the elevation checker.
func WithElevator(e *Elevator) Option {
	return func(o *Orchestrator) { o.elevator = e }
}

// WithCollectors replaces the configured collectors. No arguments disables
// collection.
func WithCollectors(cs ...Collector) Option {
	return func(o *Orchestrator) {
		o.collectors = append([]Collector{}, cs...)
	}
}

// WithNotifier sets the post-run notifier.
func WithNotifier(n *Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New returns an Orchestrator for cfg. cfg must already be normalized.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		now:    time.Now,
		getenv: os.Getenv,
		euid:   -1,
		uid:    -1,
		gid:    -1,
		chown:  os.Lchown,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.runner == nil {
		o.runner = system.NewExec(cfg.CommandTimeout)
	}
	if o.euid < 0 {
		o.euid = os.Geteuid()
	}
	if o.elevator == nil {
		o.elevator = NewElevator(o.runner, cfg.Elevation.Command, cfg.Elevation.Interactive).SetEUID(o.euid)
	}
	return o
}

// Run stages every tier, writes the report, packages or promotes the stage,
// then applies retention, exports metrics and notifies. Per-item and
// per-collector failures are recorded in the report; only infrastructure
// failures return an error, always an *dotsaveerrors.ExitError.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	cfg := o.cfg
	ext := config.ArchiveExtension(cfg.ArchiveFormat)
	if ext == "" {
		return nil, dotsaveerrors.NewConfigError(errors.Wrapf(dotsaveerrors.ErrUnsupportedFormat, "archive_format %q", cfg.ArchiveFormat))
	}
	matcher, err := NewMatcher(cfg.ExcludePatterns)
	if err != nil {
		return nil, dotsaveerrors.NewConfigError(err)
	}
	if err := o.resolveIdentity(); err != nil {
		return nil, dotsaveerrors.NewSystemError(err, "Set HOME to the invoking user's home directory")
	}

	logger := o.logger
	ctx = logging.NewContext(ctx, logger)
	start := o.now()
	dest := cfg.DestinationDirectory

	_, statErr := os.Stat(dest)
	if err := paths.EnsureDir(dest, paths.DefaultDirPerm); err != nil {
		return nil, dotsaveerrors.NewSystemError(
			errors.Wrapf(err, "creating destination %s", dest),
			"Check that destination_directory is writable")
	}
	if os.IsNotExist(statErr) {
		o.handBack(dest)
	}

	name := UniqueName(dest, cfg.ArchiveBaseName, start)
	report := &Report{
		Name:           name,
		Start:          start,
		Destination:    dest,
		Archive:        cfg.CreateArchive,
		PrivilegedTier: TierNone,
	}
	if cfg.CreateArchive {
		report.Format = cfg.ArchiveFormat
		report.Output = filepath.Join(dest, name+ext)
	} else {
		report.Output = filepath.Join(dest, name)
	}
	logger.Info("starting backup", "name", name, "destination", dest, "archive", cfg.CreateArchive)

	packer := &TarPacker{
		Format: cfg.ArchiveFormat,
		Runner: o.runner,
		UID:    o.uid,
		GID:    o.gid,
		Logger: logger,
	}
	fin := NewFinalizer(FinalizerConfig{
		Archive:       cfg.CreateArchive,
		StagingParent: cfg.StagingParent,
		Destination:   dest,
		Packer:        packer,
		Logger:        logger,
		Remover:       ElevatedRemover(o.runner, o.elevator, logger),
	})

	stage, err := fin.Begin(ctx, name)
	if err != nil {
		o.exportMetrics(report, false)
		return report, dotsaveerrors.NewSystemError(err, "Check that staging_parent and the destination are writable")
	}
	defer stage.Close()

	if err := o.stageAll(ctx, stage, matcher, report); err != nil {
		_ = fin.Fail()
		report.End = o.now()
		o.exportMetrics(report, false)
		return report, err
	}

	report.End = o.now()
	if err := report.Write(stage.Path()); err != nil {
		logger.Warn("could not write report", "err", err)
	}

	if cfg.CreateArchive {
		if stage.Elevated() {
			packer.Elevation = o.elevator.Check(ctx)
		}
		logger.Info("creating archive", "path", report.Output, "format", cfg.ArchiveFormat)
		if err := fin.Package(ctx, stage, report.Output, name); err != nil {
			o.exportMetrics(report, false)
			return report, dotsaveerrors.NewSystemError(
				errors.Wrap(err, "creating archive"),
				"Check free space in the destination and staging directories")
		}
		if info, err := os.Stat(report.Output); err == nil {
			report.ArchiveSize = info.Size()
		}
	} else {
		if err := fin.Finish(); err != nil {
			return report, dotsaveerrors.NewSystemError(err, "")
		}
		o.handBackOutput(report.Output)
	}

	if cfg.Keep > 0 {
		removed, err := Prune(ctx, dest, cfg.ArchiveBaseName, cfg.Keep, ElevatedRemover(o.runner, o.elevator, logger))
		if err != nil {
			logger.Warn("retention failed", "keep", cfg.Keep, "err", err)
		}
		for _, r := range removed {
			logger.Info("removed old backup", "name", r.Name)
		}
	}

	o.exportMetrics(report, true)

	if cfg.Notify {
		o.notify(logger).Notify(report.Output, cfg.CreateArchive)
	}

	if report.PrivilegedTier == TierSkipped {
		logger.Warn("privileged items were skipped", "hint", "rerun with sudo or set elevation.interactive")
	}
	logger.Info(report.StatusLine(), "output", report.Output)
	return report, nil
}

func (o *Orchestrator) stageAll(ctx context.Context, stage *Stage, matcher *Matcher, report *Report) error {
	cfg := o.cfg
	logger := o.logger
	root := stage.Path()

	copier := o.copier
	if copier == nil {
		copier = SelectCopier(cfg.TransferBackend, o.runner, logger)
	}
	exec := NewExecutor(copier, matcher, o.home, o.runner, logger)

	rsyncPresent, rsyncMissing := Enumerate(cfg.RsyncStyleItems, RsyncStyle, o.home)
	directPresent, directMissing := Enumerate(cfg.DirectCopyItems, DirectCopy, o.home)
	privPresent, privMissing := Enumerate(cfg.PrivilegedItems, Privileged, o.home)
	report.Attempted = len(rsyncPresent) + len(directPresent) + len(privPresent)

	logger.Info("backing up configuration items", "count", len(rsyncPresent), "backend", copier.Name())
	report.Items = append(report.Items, missingResults(logger, rsyncMissing)...)
	for _, item := range rsyncPresent {
		if err := ctx.Err(); err != nil {
			return interrupted(err)
		}
		report.Items = append(report.Items, exec.Filtered(ctx, item, o.stageDir(root, item)))
	}

	logger.Info("copying files", "count", len(directPresent))
	report.Items = append(report.Items, missingResults(logger, directMissing)...)
	for _, item := range directPresent {
		if err := ctx.Err(); err != nil {
			return interrupted(err)
		}
		report.Items = append(report.Items, exec.Plain(ctx, item, o.stageDir(root, item)))
	}

	report.Items = append(report.Items, missingResults(logger, privMissing)...)
	if len(privPresent) > 0 {
		logger.Info("backing up privileged items", "count", len(privPresent))
	}
	gate := NewGate(o.elevator, exec, logger)
	results, tier, elevated := gate.Run(ctx, privPresent, root, filepath.Join(root, "system"))
	report.Items = append(report.Items, results...)
	report.PrivilegedTier = tier
	if elevated {
		stage.MarkElevated()
	}
	if err := ctx.Err(); err != nil {
		return interrupted(err)
	}

	report.Collectors = o.collect(ctx, root)
	if err := ctx.Err(); err != nil {
		return interrupted(err)
	}
	return nil
}

// stageDir is where item's base name lands: home/<dir relative to home> for
// user items, system/<absolute dir> for everything else.
func (o *Orchestrator) stageDir(root string, item Item) string {
	dir := filepath.Dir(item.Source)
	if paths.IsUnder(item.Source, o.home) {
		if rel, err := filepath.Rel(o.home, dir); err == nil {
			return filepath.Join(root, "home", rel)
		}
	}
	return filepath.Join(root, "system", dir)
}

func (o *Orchestrator) collect(ctx context.Context, root string) []CollectorResult {
	logger := o.logger
	collectors := o.collectors
	if collectors == nil {
		c := o.cfg.Collectors
		collectors = DefaultCollectors(o.collectorEnv(), map[string]bool{
			"crontab":       c.Crontab,
			"crontab-root":  c.RootCrontab,
			"shell-history": c.ShellHistory,
			"packages":      c.Packages,
			"dconf":         c.Dconf,
			"firewall":      c.Firewall,
		})
	}
	if len(collectors) > 0 {
		logger.Info("running collectors", "count", len(collectors))
	}

	results := make([]CollectorResult, 0, len(collectors))
	for _, c := range collectors {
		if ctx.Err() != nil {
			break
		}
		if c.Privileged() && !o.elevator.Check(ctx).Available {
			logger.Warn("skipping collector, elevation unavailable", "collector", c.Name())
			res := CollectorResult{Name: c.Name(), Status: StatusSkippedNoElevation}
			if sm, ok := c.(skipMarker); ok {
				writeMarker(logger, filepath.Join(root, sm.SkipMarker()), c.Name()+" skipped: elevation unavailable\n")
				res.Files = []string{sm.SkipMarker()}
			}
			results = append(results, res)
			continue
		}
		results = append(results, c.Collect(ctx, root))
	}
	return results
}

func (o *Orchestrator) collectorEnv() CollectorEnv {
	return CollectorEnv{
		Runner:   o.runner,
		Elevator: o.elevator,
		Home:     o.home,
		User:     o.user,
		AsRoot:   o.euid == 0,
		Logger:   o.logger,
	}
}

func (o *Orchestrator) notify(logger *slog.Logger) *Notifier {
	if o.notifier != nil {
		return o.notifier
	}
	return &Notifier{Runner: o.runner, Getenv: o.getenv, AsRoot: o.euid == 0, Logger: logger}
}

func (o *Orchestrator) exportMetrics(report *Report, success bool) {
	path := o.cfg.MetricsTextfile
	if path == "" {
		return
	}
	if report.End.IsZero() {
		report.End = o.now()
	}
	if err := metrics.WriteTextfile(path, report.Stats(success)); err != nil {
		o.logger.Warn("could not export metrics", "path", path, "err", err)
		return
	}
	o.logger.Debug("metrics exported", "path", path)
}

// resolveIdentity fills in the home directory and the invoking user. Under
// sudo the invoking user is SUDO_USER, not root.
func (o *Orchestrator) resolveIdentity() error {
	if o.home == "" {
		home, err := paths.ResolveHome()
		if err != nil {
			return err
		}
		o.home = home
	}
	if o.user != "" {
		return nil
	}

	if o.euid == 0 {
		if name := o.getenv("SUDO_USER"); name != "" && name != "root" {
			o.user = name
			uid, uerr := strconv.Atoi(o.getenv("SUDO_UID"))
			gid, gerr := strconv.Atoi(o.getenv("SUDO_GID"))
			if uerr == nil && gerr == nil {
				o.uid, o.gid = uid, gid
				return nil
			}
			if u, err := user.Lookup(name); err == nil {
				o.uid, _ = strconv.Atoi(u.Uid)
				o.gid, _ = strconv.Atoi(u.Gid)
			}
			return nil
		}
	}

	o.uid, o.gid = os.Getuid(), os.Getgid()
	if u, err := user.Current(); err == nil {
		o.user = u.Username
	} else {
		o.user = o.getenv("USER")
	}
	return nil
}

// handBack gives a path created under sudo back to the invoking user.
func (o *Orchestrator) handBack(path string) {
	if o.euid != 0 || o.uid <= 0 {
		return
	}
	if err := o.chown(path, o.uid, o.gid); err != nil {
		o.logger.Debug("could not chown to invoking user", "path", path, "err", err)
	}
}

// handBackOutput gives an unarchived output written under sudo back to the
// invoking user. Only the directory with its report and the home tree change
// owner; system/ keeps the owner it was staged with.
func (o *Orchestrator) handBackOutput(dir string) {
	if o.euid != 0 || o.uid <= 0 {
		return
	}
	o.handBack(dir)
	o.handBack(filepath.Join(dir, ReportFile))
	err := filepath.WalkDir(filepath.Join(dir, "home"), func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		o.handBack(path)
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		o.logger.Debug("could not hand back home tree", "dir", dir, "err", err)
	}
}

func interrupted(cause error) error {
	return dotsaveerrors.NewSystemError(errors.Wrap(ErrInterrupted, cause.Error()), "")
}
