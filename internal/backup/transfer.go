package backup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/dotsave/internal/paths"
	"github.com/thoreinstein/dotsave/internal/system"
)

// Executor transfers single items. A failed item is logged and recorded; it
// never stops the caller.
type Executor struct {
	copier  Copier
	matcher *Matcher
	home    string
	logger  *slog.Logger
	// forcePreserve is set for the privileged tier.
	forcePreserve bool
	runner        system.Runner
}

// NewExecutor returns an Executor. home decides attribute preservation for
// filtered transfers.
func NewExecutor(copier Copier, matcher *Matcher, home string, runner system.Runner, logger *slog.Logger) *Executor {
	return &Executor{copier: copier, matcher: matcher, home: home, runner: runner, logger: logger}
}

// Elevated returns an Executor for the privileged tier: attributes are always
// preserved and, via sudo, transfers run as "sudo rsync -a" / "sudo cp -a".
func (e *Executor) Elevated(elev Elevation) *Executor {
	c := *e
	c.forcePreserve = true
	if elev.ViaSudo() {
		c.copier = &ExternalCopier{
			Runner:  e.runner,
			Prefix:  elev.Prefix,
			NoRsync: !system.Available(e.runner, "rsync"),
		}
	}
	return &c
}

// Filtered mirrors item into destDir/base(item) honoring the matcher.
// Ownership and permissions are preserved only for sources outside home.
func (e *Executor) Filtered(ctx context.Context, item Item, destDir string) ItemResult {
	preserve := e.forcePreserve || !paths.IsUnder(item.Source, e.home)
	return e.transfer(ctx, item, destDir, func(dst string) error {
		return e.copier.Mirror(ctx, item.Source, dst, e.matcher, preserve)
	})
}

// Plain copies item into destDir/base(item) without excludes. Attributes are
// preserved only under elevation.
func (e *Executor) Plain(ctx context.Context, item Item, destDir string) ItemResult {
	return e.transfer(ctx, item, destDir, func(dst string) error {
		return e.copier.Copy(ctx, item.Source, dst, e.forcePreserve)
	})
}

func (e *Executor) transfer(ctx context.Context, item Item, destDir string, do func(dst string) error) ItemResult {
	res := ItemResult{Source: item.Source, Kind: item.Kind}
	logger := e.logger.With("item", item.Name(), "kind", item.Kind)

	if _, err := os.Lstat(item.Source); os.IsNotExist(err) {
		logger.Info("skipping missing item", "path", item.Source)
		res.Status = StatusSkippedMissing
		return res
	}

	dst := filepath.Join(destDir, filepath.Base(item.Source))
	res.Dest = dst

	err := os.MkdirAll(destDir, 0o755)
	if err != nil {
		err = errors.Wrapf(err, "creating %s", destDir)
	} else {
		err = do(dst)
	}
	if err != nil {
		logger.Warn("transfer failed", "path", item.Source, "backend", e.copier.Name(), "err", err)
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}

	logger.Info("transferred", "backend", e.copier.Name())
	res.Status = StatusOK
	return res
}
