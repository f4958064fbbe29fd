package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoreinstein/dotsave/internal/config"
	"github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/logging"
	"github.com/thoreinstein/dotsave/internal/system"
)

var fixedTime = time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)

type runFixture struct {
	home    string
	priv    string
	staging string
	cfg     *config.Config
	runner  *system.Fake
}

func newRunFixture(t *testing.T) *runFixture {
	t.Helper()
	home := t.TempDir()
	writeTree(t, home, map[string]string{
		".config/app/settings.json": "{}",
		".config/app/debug.log":     "noise",
		".bashrc":                   "export EDITOR=vi",
	})
	priv := t.TempDir()
	writeTree(t, priv, map[string]string{"sshd_config": "PermitRootLogin no"})

	f := &runFixture{
		home:    home,
		priv:    priv,
		staging: t.TempDir(),
		runner:  system.NewFake(),
	}
	f.cfg = &config.Config{
		Version:              config.CurrentVersion,
		DestinationDirectory: filepath.Join(t.TempDir(), "Backups"),
		CreateArchive:        true,
		ArchiveFormat:        config.FormatGzip,
		ArchiveBaseName:      "home-backup",
		StagingParent:        f.staging,
		TransferBackend:      config.BackendNative,
		RsyncStyleItems:      []string{".config/app", ".config/absent"},
		DirectCopyItems:      []string{".bashrc"},
		ExcludePatterns:      []string{"*.log"},
		PrivilegedItems:      []string{priv},
		Elevation:            config.Elevation{Command: "sudo"},
	}
	return f
}

func (f *runFixture) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	base := []Option{
		WithRunner(f.runner),
		WithHome(f.home),
		WithUser("me", os.Getuid(), os.Getgid()),
		WithEUID(1000),
		WithClock(func() time.Time { return fixedTime }),
		WithCopier(NativeCopier{}),
		WithLogger(logging.ForTest(t)),
	}
	return New(f.cfg, append(base, opts...)...)
}

func assertStagingEmpty(t *testing.T, dir string) {
	t.Helper()
	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left, "staging root must be removed")
}

func TestRun_ArchiveWithoutElevation(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.Collectors = config.Collectors{
		Crontab: true, RootCrontab: true, ShellHistory: true,
		Packages: true, Dconf: true, Firewall: true,
	}

	report, err := f.orchestrator(t).Run(context.Background())
	require.NoError(t, err)

	name := "home-backup-20240501-100000"
	archive := filepath.Join(f.cfg.DestinationDirectory, name+".tar.gz")
	assert.Equal(t, archive, report.Output)
	assert.Equal(t, "2 of 3 items succeeded", report.StatusLine())
	assert.Equal(t, TierSkipped, report.PrivilegedTier)
	assert.Positive(t, report.ArchiveSize)

	entries := readArchive(t, archive, config.FormatGzip)
	assert.Equal(t, "{}", entries[name+"/home/.config/app/settings.json"])
	assert.NotContains(t, entries, name+"/home/.config/app/debug.log")
	assert.Equal(t, "export EDITOR=vi", entries[name+"/home/.bashrc"])
	assert.Contains(t, entries, name+"/"+PrivilegedSkippedMarker)
	assert.Contains(t, entries, name+"/"+ReportFile)
	assert.Contains(t, entries, name+"/crontab/root.skipped")
	assert.Contains(t, entries, name+"/firewall/firewall.skipped")
	assert.Contains(t, entries, name+"/history/history.empty")

	statuses := map[string]Status{}
	for _, c := range report.Collectors {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, map[string]Status{
		"crontab":       StatusSkippedUnavailable,
		"crontab-root":  StatusSkippedNoElevation,
		"shell-history": StatusEmpty,
		"packages":      StatusSkippedUnavailable,
		"dconf":         StatusSkippedUnavailable,
		"firewall":      StatusSkippedNoElevation,
	}, statuses)

	assertStagingEmpty(t, f.staging)
}

func TestRun_ItemOutcomes(t *testing.T) {
	f := newRunFixture(t)
	report, err := f.orchestrator(t, WithCollectors()).Run(context.Background())
	require.NoError(t, err)

	byStatus := map[Status][]string{}
	for _, it := range report.Items {
		byStatus[it.Status] = append(byStatus[it.Status], it.Source)
	}
	assert.ElementsMatch(t, []string{
		filepath.Join(f.home, ".config", "app"),
		filepath.Join(f.home, ".bashrc"),
	}, byStatus[StatusOK])
	assert.Equal(t, []string{filepath.Join(f.home, ".config", "absent")}, byStatus[StatusSkippedMissing])
	assert.Equal(t, []string{f.priv}, byStatus[StatusSkippedNoElevation])
	assert.Equal(t, 3, report.Attempted)
}

func TestRun_PrivilegedAsRoot(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.CreateArchive = false

	report, err := f.orchestrator(t, WithEUID(0), WithCollectors()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, TierCompleted, report.PrivilegedTier)
	assert.Equal(t, "3 of 3 items succeeded", report.StatusLine())
	assert.FileExists(t, filepath.Join(report.Output, "system", f.priv, "sshd_config"))
	assert.NoFileExists(t, filepath.Join(report.Output, PrivilegedSkippedMarker))
}

func TestRun_NoArchive(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.CreateArchive = false

	report, err := f.orchestrator(t, WithCollectors()).Run(context.Background())
	require.NoError(t, err)

	out := filepath.Join(f.cfg.DestinationDirectory, "home-backup-20240501-100000")
	assert.Equal(t, out, report.Output)
	assert.FileExists(t, filepath.Join(out, "home", ".bashrc"))
	assert.FileExists(t, filepath.Join(out, ReportFile))
	assert.FileExists(t, filepath.Join(out, PrivilegedSkippedMarker))

	outputs, err := List(f.cfg.DestinationDirectory, "home-backup")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "2 of 3 items succeeded", outputs[0].Status)
}

func TestRun_UnsupportedFormat(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.ArchiveFormat = "zip"

	_, err := f.orchestrator(t).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedFormat)
	assert.Equal(t, errors.ExitUser, errors.ExitCode(err))

	assert.NoDirExists(t, f.cfg.DestinationDirectory, "nothing is touched before the format is accepted")
	assertStagingEmpty(t, f.staging)
}

func TestRun_InvalidExclude(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.ExcludePatterns = []string{"ab["}

	_, err := f.orchestrator(t).Run(context.Background())
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.Equal(t, errors.ExitUser, errors.ExitCode(err))
}

func TestRun_DestinationNotWritable(t *testing.T) {
	f := newRunFixture(t)
	blocker := filepath.Join(t.TempDir(), "file")
	touch(t, blocker)
	f.cfg.DestinationDirectory = filepath.Join(blocker, "Backups")

	_, err := f.orchestrator(t).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ExitSystem, errors.ExitCode(err))

	var exitErr *errors.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotEmpty(t, exitErr.Suggestion)
}

func TestRun_SameSecondRuns(t *testing.T) {
	f := newRunFixture(t)

	first, err := f.orchestrator(t, WithCollectors()).Run(context.Background())
	require.NoError(t, err)
	second, err := f.orchestrator(t, WithCollectors()).Run(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Output, second.Output)
	assert.True(t, strings.HasSuffix(second.Output, "-2.tar.gz"), second.Output)
	assert.FileExists(t, first.Output)
	assert.FileExists(t, second.Output)

	entries := readArchive(t, second.Output, config.FormatGzip)
	assert.Contains(t, entries, "home-backup-20240501-100000-2/home/.bashrc")
}

func TestRun_Retention(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.Keep = 1

	for range 3 {
		_, err := f.orchestrator(t, WithCollectors()).Run(context.Background())
		require.NoError(t, err)
	}

	outputs, err := List(f.cfg.DestinationDirectory, "home-backup")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "home-backup-20240501-100000-3.tar.gz", outputs[0].Name)
}

func TestRun_Interrupted(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.MetricsTextfile = filepath.Join(t.TempDir(), "dotsave.prom")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.orchestrator(t).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, errors.ExitSystem, errors.ExitCode(err))
	assert.NoFileExists(t, report.Output)
	assertStagingEmpty(t, f.staging)

	data, err := os.ReadFile(f.cfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dotsave_last_run_success 0")
}

func TestRun_MetricsAndNotify(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.MetricsTextfile = filepath.Join(t.TempDir(), "textfile", "dotsave.prom")
	f.cfg.Notify = true
	f.runner.Installed["xdg-open"] = true

	report, err := f.orchestrator(t,
		WithCollectors(),
		WithGetenv(func(k string) string {
			if k == "WAYLAND_DISPLAY" {
				return "wayland-0"
			}
			return ""
		}),
	).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(f.cfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dotsave_last_run_success 1")
	assert.Contains(t, string(data), `dotsave_items{status="ok"} 2`)

	assert.Equal(t, []string{"xdg-open " + filepath.Dir(report.Output)}, f.runner.Started())
}

func TestRun_StageDir(t *testing.T) {
	o := New(&config.Config{}, WithHome("/home/me"), WithRunner(system.NewFake()))
	assert.Equal(t, "/s/home/.config", o.stageDir("/s", Item{Source: "/home/me/.config/nvim"}))
	assert.Equal(t, "/s/home", o.stageDir("/s", Item{Source: "/home/me/.bashrc"}))
	assert.Equal(t, "/s/system/etc", o.stageDir("/s", Item{Source: "/etc/fstab"}))
}

// failingCopier is the native backend except that mirroring src fails.
type failingCopier struct {
	NativeCopier
	src string
}

func (c failingCopier) Mirror(ctx context.Context, src, dst string, m *Matcher, preserve bool) error {
	if src == c.src {
		return &os.PathError{Op: "open", Path: src, Err: os.ErrPermission}
	}
	return c.NativeCopier.Mirror(ctx, src, dst, m, preserve)
}

func TestRun_ItemFailureContinues(t *testing.T) {
	f := newRunFixture(t)
	writeTree(t, f.home, map[string]string{".config/other/init.lua": "vim.o.number = true"})
	f.cfg.RsyncStyleItems = []string{".config/app", ".config/other"}
	failing := filepath.Join(f.home, ".config", "app")

	report, err := f.orchestrator(t,
		WithCopier(failingCopier{src: failing}),
		WithCollectors(),
	).Run(context.Background())
	require.NoError(t, err, "a failed item never aborts the run")

	byPath := map[string]ItemResult{}
	for _, it := range report.Items {
		byPath[it.Source] = it
	}
	assert.Equal(t, StatusFailed, byPath[failing].Status)
	assert.Contains(t, byPath[failing].Error, "permission denied")
	assert.Equal(t, StatusOK, byPath[filepath.Join(f.home, ".config", "other")].Status)
	assert.Equal(t, StatusOK, byPath[filepath.Join(f.home, ".bashrc")].Status)
	assert.Equal(t, StatusSkippedNoElevation, byPath[f.priv].Status)
	assert.Equal(t, "2 of 4 items succeeded", report.StatusLine())

	entries := readArchive(t, report.Output, config.FormatGzip)
	name := "home-backup-20240501-100000"
	assert.Equal(t, "vim.o.number = true", entries[name+"/home/.config/other/init.lua"])
	assert.Equal(t, "export EDITOR=vi", entries[name+"/home/.bashrc"])
	assert.NotContains(t, entries, name+"/home/.config/app/settings.json")
	assertStagingEmpty(t, f.staging)
}

func TestRun_NoArchiveHandsBackToInvokingUser(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.CreateArchive = false

	o := f.orchestrator(t, WithEUID(0), WithUser("me", 4242, 4242), WithCollectors())
	chowned := map[string]int{}
	o.chown = func(path string, uid, _ int) error {
		chowned[path] = uid
		return nil
	}
	report, err := o.Run(context.Background())
	require.NoError(t, err)

	out := report.Output
	for _, path := range []string{
		f.cfg.DestinationDirectory,
		out,
		filepath.Join(out, ReportFile),
		filepath.Join(out, "home"),
		filepath.Join(out, "home", ".bashrc"),
		filepath.Join(out, "home", ".config", "app", "settings.json"),
	} {
		assert.Equal(t, 4242, chowned[path], "%s not handed back", path)
	}
	for path := range chowned {
		assert.False(t, strings.HasPrefix(path, filepath.Join(out, "system")), "privileged content %s must keep its owner", path)
	}
}

func TestRun_NoArchiveWithoutSudoKeepsOwnership(t *testing.T) {
	f := newRunFixture(t)
	f.cfg.CreateArchive = false

	o := f.orchestrator(t, WithCollectors())
	o.chown = func(path string, _, _ int) error {
		t.Errorf("unexpected chown of %s", path)
		return nil
	}
	_, err := o.Run(context.Background())
	require.NoError(t, err)
}
