package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"
)

// State is a step of the archive finalizer.
type State int

const (
	StateIdle State = iota
	StateStaging
	StatePackaging
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStaging:
		return "staging"
	case StatePackaging:
		return "packaging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateIdle:      {StateStaging},
	StateStaging:   {StatePackaging, StateDone, StateFailed},
	StatePackaging: {StateDone, StateFailed},
}

// Stage is the directory a run writes into. An ephemeral stage is removed
// exactly once by Close; a promoted stage (no archive) is the final output
// and Close leaves it alone.
type Stage struct {
	path      string
	ephemeral bool
	elevated  bool
	remove    func(path string) error
	logger    *slog.Logger

	once     sync.Once
	closeErr error
}

// Path returns the stage directory.
func (s *Stage) Path() string { return s.path }

// Ephemeral reports whether Close removes the stage.
func (s *Stage) Ephemeral() bool { return s.ephemeral }

// MarkElevated records that root-owned content was written through sudo.
func (s *Stage) MarkElevated() { s.elevated = true }

// Elevated reports whether MarkElevated was called.
func (s *Stage) Elevated() bool { return s.elevated }

// Close removes an ephemeral stage. Safe to call more than once; only the
// first call acts.
func (s *Stage) Close() error {
	s.once.Do(func() {
		if !s.ephemeral {
			return
		}
		s.logger.Debug("removing staging root", "dir", s.path)
		s.closeErr = s.remove(s.path)
		if s.closeErr != nil {
			s.logger.Warn("could not remove staging root", "dir", s.path, "err", s.closeErr)
		}
	})
	return s.closeErr
}

// Finalizer drives Idle -> Staging -> Packaging -> Done|Failed.
type Finalizer struct {
	mu    sync.Mutex
	state State

	archive bool
	parent  string
	dest    string
	packer  Packer
	logger  *slog.Logger
	remover func(ctx context.Context, path string, elevated bool) error
}

// FinalizerConfig configures a Finalizer.
type FinalizerConfig struct {
	// Archive selects an ephemeral stage plus packaging.
	Archive bool
	// StagingParent holds ephemeral stages; empty means os.TempDir().
	StagingParent string
	// Destination holds the final output.
	Destination string
	Packer      Packer
	Logger      *slog.Logger
	// Remover deletes a stage; elevated is true when root-owned content may
	// be present. Defaults to os.RemoveAll.
	Remover func(ctx context.Context, path string, elevated bool) error
}

// NewFinalizer returns a Finalizer in StateIdle.
func NewFinalizer(cfg FinalizerConfig) *Finalizer {
	f := &Finalizer{
		archive: cfg.Archive,
		parent:  cfg.StagingParent,
		dest:    cfg.Destination,
		packer:  cfg.Packer,
		logger:  cfg.Logger,
		remover: cfg.Remover,
	}
	if f.parent == "" {
		f.parent = os.TempDir()
	}
	if f.remover == nil {
		f.remover = func(_ context.Context, path string, _ bool) error { return os.RemoveAll(path) }
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// State returns the current state.
func (f *Finalizer) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Finalizer) transition(to State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, allowed := range transitions[f.state] {
		if allowed == to {
			f.logger.Debug("finalizer", "from", f.state, "to", to)
			f.state = to
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s", f.state, to)
}

// Begin enters Staging and acquires the stage for runName. The caller must
// defer stage.Close() before doing anything else.
func (f *Finalizer) Begin(ctx context.Context, runName string) (*Stage, error) {
	if err := f.transition(StateStaging); err != nil {
		return nil, err
	}

	st := &Stage{logger: f.logger}
	if f.archive {
		if err := os.MkdirAll(f.parent, 0o700); err != nil {
			f.fail()
			return nil, errors.Wrapf(err, "creating staging parent %s", f.parent)
		}
		dir, err := os.MkdirTemp(f.parent, "dotsave-"+runName+"-")
		if err != nil {
			f.fail()
			return nil, errors.Wrap(err, "creating staging root")
		}
		st.path = dir
		st.ephemeral = true
		st.remove = func(path string) error {
			return f.remover(context.WithoutCancel(ctx), path, st.elevated)
		}
	} else {
		dir := filepath.Join(f.dest, runName)
		if err := os.Mkdir(dir, 0o755); err != nil {
			f.fail()
			return nil, errors.Wrapf(err, "creating backup directory %s", dir)
		}
		st.path = dir
		st.remove = func(string) error { return nil }
	}
	f.logger.Debug("staging root acquired", "dir", st.path, "ephemeral", st.ephemeral)
	return st, nil
}

// Package enters Packaging and writes the archive for stage to archivePath.
// On failure no archive is left behind and the finalizer is Failed.
func (f *Finalizer) Package(ctx context.Context, stage *Stage, archivePath, topDir string) error {
	if err := f.transition(StatePackaging); err != nil {
		return err
	}
	if f.packer == nil {
		f.fail()
		return errors.New("no packer configured")
	}
	if err := f.packer.Pack(ctx, stage, archivePath, topDir); err != nil {
		f.fail()
		return err
	}
	return f.transition(StateDone)
}

// Finish marks an unarchived run Done.
func (f *Finalizer) Finish() error {
	return f.transition(StateDone)
}

// Fail marks the run Failed from Staging or Packaging.
func (f *Finalizer) Fail() error {
	return f.transition(StateFailed)
}

func (f *Finalizer) fail() {
	f.mu.Lock()
	f.state = StateFailed
	f.mu.Unlock()
}
