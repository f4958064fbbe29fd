package backup

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/dotsave/internal/desktop"
	"github.com/thoreinstein/dotsave/internal/system"
)

// Notifier opens the output location in the desktop file browser. Every
// failure is informational.
type Notifier struct {
	Runner system.Runner
	Getenv func(string) string
	// AsRoot suppresses the browser, which would otherwise run as root.
	AsRoot bool
	Logger *slog.Logger
}

// Notify opens the directory holding output (archive) or output itself.
func (n *Notifier) Notify(output string, archive bool) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	getenv := n.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if n.AsRoot {
		logger.Debug("running as root, not opening file browser")
		return
	}

	target := output
	if archive {
		target = filepath.Dir(output)
	}
	used, err := desktop.Open(n.Runner, getenv, target)
	switch {
	case errors.Is(err, desktop.ErrNoSession):
		logger.Debug("no graphical session, not opening file browser")
	case err != nil:
		logger.Info("could not open file browser", "dir", target, "err", err)
	default:
		logger.Info("opened output location", "dir", target, "opener", used)
	}
}
