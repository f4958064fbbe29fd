package backup

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/thoreinstein/dotsave/internal/config"
	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/system"
	"github.com/thoreinstein/dotsave/pkg/fileutil"
)

// archivePerm keeps archives private, they hold keys and history.
const archivePerm = 0o600

// Packer turns a stage into a single compressed archive at archivePath.
// Entries are placed under topDir.
type Packer interface {
	Pack(ctx context.Context, stage *Stage, archivePath, topDir string) error
}

// TarPacker writes tar archives compressed with gzip or xz. It streams the
// archive in process unless the stage holds root-owned content written
// through sudo, in which case an elevated external tar is used and the result
// is handed back to the invoking user.
type TarPacker struct {
	Format    string
	Elevation Elevation
	Runner    system.Runner
	// UID and GID own the archive after an elevated pack.
	UID, GID int
	Logger   *slog.Logger
}

// Pack implements Packer.
func (p *TarPacker) Pack(ctx context.Context, stage *Stage, archivePath, topDir string) error {
	if config.ArchiveExtension(p.Format) == "" {
		return errors.Wrapf(dotsaveerrors.ErrUnsupportedFormat, "%q", p.Format)
	}
	if stage.Elevated() && p.Elevation.ViaSudo() {
		return p.packElevated(ctx, stage.Path(), archivePath, topDir)
	}
	return p.packNative(ctx, stage.Path(), archivePath, topDir)
}

func (p *TarPacker) packNative(ctx context.Context, root, archivePath, topDir string) error {
	w, err := fileutil.NewAtomicWriter(archivePath, archivePerm)
	if err != nil {
		return errors.Wrap(err, "creating archive")
	}
	defer w.Abort()

	if err := WriteArchive(ctx, root, topDir, p.Format, w); err != nil {
		return err
	}
	if p.UID > 0 && os.Geteuid() == 0 {
		// running under sudo: the archive belongs to the invoking user
		if err := w.Chown(p.UID, p.GID); err != nil {
			return errors.Wrap(err, "handing archive back to user")
		}
	}
	return errors.Wrap(w.Commit(), "finalizing archive")
}

// WriteArchive streams root as a compressed tar into w.
func WriteArchive(ctx context.Context, root, topDir, format string, w io.Writer) error {
	cw, err := newCompressor(w, format)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(cw)

	walkErr := filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return addToTar(tw, root, topDir, path, info)
	})
	if walkErr != nil {
		tw.Close()
		cw.Close()
		return errors.Wrap(walkErr, "writing archive")
	}
	if err := tw.Close(); err != nil {
		cw.Close()
		return errors.Wrap(err, "closing tar stream")
	}
	return errors.Wrap(cw.Close(), "closing compressor")
}

func addToTar(tw *tar.Writer, root, topDir, path string, info fs.FileInfo) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}
	name := filepath.ToSlash(filepath.Join(topDir, rel))

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return errors.Wrapf(err, "reading link %s", path)
		}
	}
	if !info.Mode().IsRegular() && !info.IsDir() && link == "" {
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return errors.Wrapf(err, "tar header for %s", path)
	}
	hdr.Name = name
	if info.IsDir() {
		hdr.Name += "/"
	}
	hdr.Format = tar.FormatPAX

	if err := tw.WriteHeader(hdr); err != nil {
		return errors.Wrapf(err, "writing header for %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return errors.Wrapf(err, "archiving %s", path)
	}
	return nil
}

func newCompressor(w io.Writer, format string) (io.WriteCloser, error) {
	switch format {
	case config.FormatGzip:
		return gzip.NewWriterLevel(w, gzip.DefaultCompression)
	case config.FormatXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, errors.Wrap(err, "creating xz writer")
		}
		return xw, nil
	default:
		return nil, errors.Wrapf(dotsaveerrors.ErrUnsupportedFormat, "%q", format)
	}
}

func tarFlag(format string) string {
	if format == config.FormatXZ {
		return "-cJf"
	}
	return "-czf"
}

func (p *TarPacker) packElevated(ctx context.Context, root, archivePath, topDir string) error {
	partial := filepath.Join(filepath.Dir(archivePath), "."+filepath.Base(archivePath)+".partial")
	run := func(name string, args ...string) error {
		cmd, full := p.Elevation.Command(name, args...)
		_, err := p.Runner.Run(ctx, cmd, full...)
		return err
	}
	cleanup := func() {
		if err := run("rm", "-f", partial); err != nil && p.Logger != nil {
			p.Logger.Warn("could not remove partial archive", "path", partial, "err", err)
		}
	}

	if p.Logger != nil {
		p.Logger.Info("packaging with elevated tar, stage holds root-owned files")
	}
	if err := run("tar", "--transform", "s,^\\.,"+topDir+",", "-C", root, tarFlag(p.Format), partial, "."); err != nil {
		cleanup()
		return errors.Wrap(err, "elevated tar")
	}
	owner := strconv.Itoa(p.UID) + ":" + strconv.Itoa(p.GID)
	if err := run("chown", owner, partial); err != nil {
		cleanup()
		return errors.Wrap(err, "handing archive back to user")
	}
	if err := run("chmod", "600", partial); err != nil {
		cleanup()
		return errors.Wrap(err, "restricting archive permissions")
	}
	if err := os.Rename(partial, archivePath); err != nil {
		cleanup()
		return errors.Wrap(err, "renaming archive into place")
	}
	return nil
}

// ElevatedRemover returns a stage remover that falls back to an elevated
// "rm -rf" when plain removal fails on root-owned content.
func ElevatedRemover(runner system.Runner, elevator *Elevator, logger *slog.Logger) func(ctx context.Context, path string, elevated bool) error {
	return func(ctx context.Context, path string, elevated bool) error {
		err := os.RemoveAll(path)
		if err == nil || !elevated {
			return err
		}
		elev := elevator.Check(ctx)
		if !elev.ViaSudo() {
			return err
		}
		logger.Debug("removing staging root with elevation", "dir", path, "err", err)
		cmd, args := elev.Command("rm", "-rf", "--", path)
		if _, rmErr := runner.Run(ctx, cmd, args...); rmErr != nil {
			return errors.Wrap(rmErr, "elevated removal of staging root")
		}
		return nil
	}
}
