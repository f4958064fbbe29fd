package backup

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/dotsave/internal/logging"
	"github.com/thoreinstein/dotsave/internal/system"
)

// Copier performs the two transfer modes. dst is the full destination path
// of the entry (destDir/base(src)); its parent exists.
type Copier interface {
	Name() string
	// Mirror copies src to dst skipping entries matched by m and removing
	// stale or excluded entries already at dst.
	Mirror(ctx context.Context, src, dst string, m *Matcher, preserve bool) error
	// Copy copies src to dst recursively.
	Copy(ctx context.Context, src, dst string, preserve bool) error
}

// NativeCopier is a pure Go Copier. With preserve it also applies the exact
// mode bits and ownership, which needs root for foreign-owned files.
type NativeCopier struct{}

// Name implements Copier.
func (NativeCopier) Name() string { return "native" }

// Mirror implements Copier.
func (c NativeCopier) Mirror(ctx context.Context, src, dst string, m *Matcher, preserve bool) error {
	if err := pruneStale(ctx, src, dst, m); err != nil {
		return err
	}
	return c.walk(ctx, src, dst, m, preserve)
}

// Copy implements Copier.
func (c NativeCopier) Copy(ctx context.Context, src, dst string, preserve bool) error {
	return c.walk(ctx, src, dst, nil, preserve)
}

func (c NativeCopier) walk(ctx context.Context, src, dst string, m *Matcher, preserve bool) error {
	logger := logging.FromContext(ctx)
	base := filepath.Base(src)
	type dirTimes struct {
		path string
		info fs.FileInfo
	}
	var (
		dirs    []dirTimes
		skipped []error
	)

	err := filepath.Walk(src, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if p == src {
				return err
			}
			// keep going, rsync-style partial transfer
			logger.Debug("unreadable entry", "path", p, "err", err)
			skipped = append(skipped, err)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		if rel != "." && m.Match(filepath.ToSlash(filepath.Join(base, rel)), info.IsDir()) {
			logger.Log(ctx, logging.LevelTrace, "excluded", "path", p)
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		target := filepath.Join(dst, rel)

		switch mode := info.Mode(); {
		case mode.IsDir():
			if err := os.MkdirAll(target, mode.Perm()|0o700); err != nil {
				return errors.Wrapf(err, "creating %s", target)
			}
			dirs = append(dirs, dirTimes{target, info})
			return nil
		case mode&fs.ModeSymlink != 0:
			link, err := os.Readlink(p)
			if err != nil {
				return errors.Wrapf(err, "reading link %s", p)
			}
			os.Remove(target)
			if err := os.Symlink(link, target); err != nil {
				return errors.Wrapf(err, "creating link %s", target)
			}
			if preserve {
				return chown(target, info, true)
			}
			return nil
		case mode.IsRegular():
			if err := copyFile(p, target, info); err != nil {
				if errors.Is(err, fs.ErrPermission) {
					logger.Debug("unreadable file", "path", p, "err", err)
					skipped = append(skipped, err)
					return nil
				}
				return err
			}
			return applyAttrs(target, info, preserve)
		default:
			// sockets, fifos and devices are not configuration
			logger.Debug("skipping special file", "path", p, "mode", mode.String())
			return nil
		}
	})
	if err != nil {
		return err
	}

	// directory mtimes last, writing children updates them
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := applyAttrs(dirs[i].path, dirs[i].info, preserve); err != nil {
			return err
		}
	}
	if len(skipped) > 0 {
		return errors.Wrapf(skipped[0], "partial transfer, %d entries not copied", len(skipped))
	}
	return nil
}

func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "opening source file")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0o200)
	if err != nil {
		return errors.Wrap(err, "creating destination file")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copying %s", src)
	}
	return errors.Wrap(out.Close(), "closing destination file")
}

func applyAttrs(path string, info fs.FileInfo, preserve bool) error {
	if preserve {
		if err := os.Chmod(path, info.Mode()&(fs.ModePerm|fs.ModeSetuid|fs.ModeSetgid|fs.ModeSticky)); err != nil {
			return errors.Wrapf(err, "chmod %s", path)
		}
		if err := chown(path, info, false); err != nil {
			return err
		}
	}
	if err := os.Chtimes(path, info.ModTime(), info.ModTime()); err != nil {
		return errors.Wrapf(err, "setting times on %s", path)
	}
	return nil
}

func chown(path string, info fs.FileInfo, link bool) error {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	var err error
	if link {
		err = os.Lchown(path, int(st.Uid), int(st.Gid))
	} else {
		err = os.Chown(path, int(st.Uid), int(st.Gid))
	}
	return errors.Wrapf(err, "chown %s", path)
}

// pruneStale removes entries under dst that are excluded or no longer exist
// under src.
func pruneStale(ctx context.Context, src, dst string, m *Matcher) error {
	if _, err := os.Lstat(dst); os.IsNotExist(err) {
		return nil
	}
	base := filepath.Base(src)
	return filepath.Walk(dst, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(dst, p)
		if err != nil || rel == "." {
			return err
		}
		_, statErr := os.Lstat(filepath.Join(src, rel))
		if m.Match(filepath.ToSlash(filepath.Join(base, rel)), info.IsDir()) || os.IsNotExist(statErr) {
			logging.FromContext(ctx).Log(ctx, logging.LevelTrace, "removing stale entry", "path", p)
			if err := os.RemoveAll(p); err != nil {
				return errors.Wrapf(err, "removing %s", p)
			}
			if info.IsDir() {
				return filepath.SkipDir
			}
		}
		return nil
	})
}

// ExternalCopier shells out to rsync for mirrors and cp for plain copies.
// Prefix is prepended to every command line ("sudo").
type ExternalCopier struct {
	Runner system.Runner
	Prefix []string
	// NoRsync mirrors with cp when rsync is missing; excludes are then not
	// applied.
	NoRsync bool
}

// Name implements Copier.
func (c *ExternalCopier) Name() string {
	if c.NoRsync {
		return "cp"
	}
	return "rsync"
}

// Mirror implements Copier.
func (c *ExternalCopier) Mirror(ctx context.Context, src, dst string, m *Matcher, preserve bool) error {
	if c.NoRsync {
		logging.FromContext(ctx).Debug("rsync not available, copying without excludes", "src", src)
		return c.Copy(ctx, src, dst, preserve)
	}
	flags := "-rlt"
	if preserve {
		flags = "-a"
	}
	args := append([]string{flags}, m.Args()...)
	args = append(args, src, filepath.Dir(dst)+string(filepath.Separator))
	return c.run(ctx, "rsync", args...)
}

// Copy implements Copier.
func (c *ExternalCopier) Copy(ctx context.Context, src, dst string, preserve bool) error {
	flags := "-r"
	if preserve {
		flags = "-a"
	}
	return c.run(ctx, "cp", flags, src, dst)
}

func (c *ExternalCopier) run(ctx context.Context, name string, args ...string) error {
	cmd, full := name, args
	if len(c.Prefix) > 0 {
		cmd = c.Prefix[0]
		full = append(append(append([]string{}, c.Prefix[1:]...), name), args...)
	}
	_, err := c.Runner.Run(ctx, cmd, full...)
	return err
}

// SelectCopier resolves the configured backend name.
func SelectCopier(backend string, runner system.Runner, logger *slog.Logger) Copier {
	switch backend {
	case "native":
		return NativeCopier{}
	case "rsync":
		return &ExternalCopier{Runner: runner, NoRsync: !system.Available(runner, "rsync")}
	default:
		if system.Available(runner, "rsync") {
			return &ExternalCopier{Runner: runner}
		}
		logger.Debug("rsync not found, using native transfer")
		return NativeCopier{}
	}
}
