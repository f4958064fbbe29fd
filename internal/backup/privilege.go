package backup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/thoreinstein/dotsave/internal/logging"
	"github.com/thoreinstein/dotsave/internal/system"
)

// Elevation is the cached answer to "can this run act as root".
type Elevation struct {
	Available bool
	// Root is true when the process itself runs with euid 0.
	Root bool
	// Prefix is prepended to privileged command lines ("sudo"), empty as root.
	Prefix []string
}

// ViaSudo reports whether privileged work goes through the prefix command.
func (e Elevation) ViaSudo() bool {
	return e.Available && !e.Root
}

// Command prefixes name and args for privileged execution.
func (e Elevation) Command(name string, args ...string) (string, []string) {
	if len(e.Prefix) == 0 {
		return name, args
	}
	return e.Prefix[0], append(append(append([]string{}, e.Prefix[1:]...), name), args...)
}

// Elevator checks elevation once per run.
type Elevator struct {
	runner      system.Runner
	command     string
	interactive bool
	euid        func() int

	once   sync.Once
	result Elevation
}

// NewElevator returns an Elevator that tests elevation with command ("sudo").
// Interactive allows a password prompt (sudo -v) instead of sudo -n.
func NewElevator(runner system.Runner, command string, interactive bool) *Elevator {
	if command == "" {
		command = "sudo"
	}
	return &Elevator{runner: runner, command: command, interactive: interactive, euid: os.Geteuid}
}

// SetEUID makes the elevator see euid instead of the process's effective uid.
func (e *Elevator) SetEUID(euid int) *Elevator {
	e.euid = func() int { return euid }
	return e
}

// Check returns the cached elevation state, probing on first use.
func (e *Elevator) Check(ctx context.Context) Elevation {
	e.once.Do(func() {
		e.result = e.detect(ctx)
	})
	return e.result
}

func (e *Elevator) detect(ctx context.Context) Elevation {
	logger := logging.FromContext(ctx)
	if e.euid() == 0 {
		logger.Debug("running as root, no elevation prefix needed")
		return Elevation{Available: true, Root: true}
	}
	if !system.Available(e.runner, e.command) {
		logger.Info("elevation unavailable", "reason", e.command+" not installed")
		return Elevation{}
	}
	args := []string{"-n", "true"}
	if e.interactive {
		args = []string{"-v"}
	}
	if _, err := e.runner.Run(ctx, e.command, args...); err != nil {
		logger.Info("elevation unavailable", "cmd", e.command, "err", err)
		return Elevation{}
	}
	logger.Debug("elevation available", "cmd", e.command)
	return Elevation{Available: true, Prefix: []string{e.command}}
}

// Gate runs the privileged tier.
type Gate struct {
	elevator *Elevator
	exec     *Executor
	logger   *slog.Logger
}

// NewGate returns a Gate using elevator to decide and exec to transfer.
func NewGate(elevator *Elevator, exec *Executor, logger *slog.Logger) *Gate {
	return &Gate{elevator: elevator, exec: exec, logger: logger}
}

// Run transfers present items into destRoot with attributes preserved.
// Without elevation nothing is attempted: every present item is recorded as
// skipped-no-elevation and a marker is written into markerDir. The returned
// flag reports whether any transfer ran through sudo, successful or not, so
// the stage may hold files only root can read or remove.
func (g *Gate) Run(ctx context.Context, present []Item, markerDir, destRoot string) ([]ItemResult, TierStatus, bool) {
	if len(present) == 0 {
		return nil, TierNone, false
	}

	elev := g.elevator.Check(ctx)
	if !elev.Available {
		g.logger.Warn("skipping privileged items, elevation unavailable", "count", len(present))
		results := make([]ItemResult, 0, len(present))
		for _, item := range present {
			results = append(results, ItemResult{Source: item.Source, Kind: item.Kind, Status: StatusSkippedNoElevation})
		}
		writeMarker(g.logger, filepath.Join(markerDir, PrivilegedSkippedMarker),
			"privileged items skipped: elevation unavailable\n")
		return results, TierSkipped, false
	}

	exec := g.exec.Elevated(elev)
	results := make([]ItemResult, 0, len(present))
	succeeded, attempted := 0, 0
	for _, item := range present {
		if ctx.Err() != nil {
			break
		}
		destDir := filepath.Join(destRoot, filepath.Dir(item.Source))
		var res ItemResult
		if isDir(item.Source) {
			res = exec.Filtered(ctx, item, destDir)
		} else {
			res = exec.Plain(ctx, item, destDir)
		}
		switch res.Status {
		case StatusOK:
			succeeded++
			attempted++
		case StatusFailed:
			// a partial sudo transfer still leaves root-owned files behind
			attempted++
		}
		results = append(results, res)
	}

	elevated := elev.ViaSudo() && attempted > 0
	if succeeded == 0 {
		g.logger.Warn("no privileged item was backed up")
		return results, TierEmpty, elevated
	}
	return results, TierCompleted, elevated
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func writeMarker(logger *slog.Logger, path, text string) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("cannot create marker directory", "path", path, "err", err)
		return
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		logger.Warn("cannot write marker", "path", path, "err", err)
	}
}
