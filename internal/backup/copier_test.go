package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoreinstein/dotsave/internal/logging"
	"github.com/thoreinstein/dotsave/internal/system"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func testContext(t *testing.T) context.Context {
	return logging.NewContext(context.Background(), logging.ForTest(t))
}

func TestNativeCopier_MirrorAppliesExcludes(t *testing.T) {
	src := filepath.Join(t.TempDir(), "app")
	writeTree(t, src, map[string]string{
		"settings.json":    "{}",
		"logs/today.log":   "noise",
		".cache/blob":      "cache",
		"profiles/a/prefs": "prefs",
		"profiles/a/x.log": "noise",
		"node_modules/dep": "dep",
	})
	require.NoError(t, os.Symlink("settings.json", filepath.Join(src, "link.json")))

	m, err := NewMatcher([]string{"*.log", ".cache/*", "node_modules/"})
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "app")
	require.NoError(t, NativeCopier{}.Mirror(testContext(t), src, dst, m, false))

	assert.FileExists(t, filepath.Join(dst, "settings.json"))
	assert.FileExists(t, filepath.Join(dst, "profiles", "a", "prefs"))
	assert.NoFileExists(t, filepath.Join(dst, "logs", "today.log"))
	assert.NoFileExists(t, filepath.Join(dst, "profiles", "a", "x.log"))
	assert.NoFileExists(t, filepath.Join(dst, ".cache", "blob"))
	assert.DirExists(t, filepath.Join(dst, ".cache"))
	assert.NoDirExists(t, filepath.Join(dst, "node_modules"))

	target, err := os.Readlink(filepath.Join(dst, "link.json"))
	require.NoError(t, err)
	assert.Equal(t, "settings.json", target)
}

func TestNativeCopier_MirrorRemovesStale(t *testing.T) {
	src := filepath.Join(t.TempDir(), "app")
	writeTree(t, src, map[string]string{"keep.txt": "k"})

	dst := filepath.Join(t.TempDir(), "app")
	writeTree(t, dst, map[string]string{
		"keep.txt":      "old",
		"gone.txt":      "stale",
		"old/dir/f.txt": "stale",
		"excluded.log":  "stale",
	})

	m, err := NewMatcher([]string{"*.log"})
	require.NoError(t, err)
	require.NoError(t, NativeCopier{}.Mirror(testContext(t), src, dst, m, false))

	data, err := os.ReadFile(filepath.Join(dst, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "k", string(data))
	assert.NoFileExists(t, filepath.Join(dst, "gone.txt"))
	assert.NoDirExists(t, filepath.Join(dst, "old"))
	assert.NoFileExists(t, filepath.Join(dst, "excluded.log"))
}

func TestNativeCopier_CopyFileKeepsMtime(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, ".bashrc")
	require.NoError(t, os.WriteFile(src, []byte("alias ll='ls -l'"), 0o640))
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	dst := filepath.Join(t.TempDir(), ".bashrc")
	require.NoError(t, NativeCopier{}.Copy(testContext(t), src, dst, true))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(mtime))
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestNativeCopier_CopyIgnoresExcludes(t *testing.T) {
	src := filepath.Join(t.TempDir(), "dir")
	writeTree(t, src, map[string]string{"a.log": "x"})

	dst := filepath.Join(t.TempDir(), "dir")
	require.NoError(t, NativeCopier{}.Copy(testContext(t), src, dst, false))
	assert.FileExists(t, filepath.Join(dst, "a.log"))
}

func TestNativeCopier_MissingSource(t *testing.T) {
	err := NativeCopier{}.Copy(testContext(t), filepath.Join(t.TempDir(), "nope"), t.TempDir(), false)
	assert.Error(t, err)
}

func TestExternalCopier_CommandLines(t *testing.T) {
	m, err := NewMatcher([]string{"*.log"})
	require.NoError(t, err)
	ctx := testContext(t)

	t.Run("rsync mirror", func(t *testing.T) {
		r := system.NewFake("rsync")
		c := &ExternalCopier{Runner: r}
		require.NoError(t, c.Mirror(ctx, "/home/me/.config/nvim", "/stage/home/.config/nvim", m, false))
		assert.Equal(t, []string{
			"rsync -rlt --exclude=*.log --delete --delete-excluded /home/me/.config/nvim /stage/home/.config/",
		}, r.Calls())
	})

	t.Run("sudo rsync preserving", func(t *testing.T) {
		r := system.NewFake("rsync", "sudo")
		c := &ExternalCopier{Runner: r, Prefix: []string{"sudo"}}
		require.NoError(t, c.Mirror(ctx, "/etc/ssh", "/stage/system/etc/ssh", m, true))
		assert.Equal(t, []string{
			"sudo rsync -a --exclude=*.log --delete --delete-excluded /etc/ssh /stage/system/etc/",
		}, r.Calls())
	})

	t.Run("cp fallback", func(t *testing.T) {
		r := system.NewFake()
		c := &ExternalCopier{Runner: r, NoRsync: true}
		assert.Equal(t, "cp", c.Name())
		require.NoError(t, c.Mirror(ctx, "/a", "/b/a", m, false))
		assert.Equal(t, []string{"cp -r /a /b/a"}, r.Calls())
	})

	t.Run("failure surfaces", func(t *testing.T) {
		r := system.NewFake("rsync")
		r.On("cp -a /etc/fstab /s/fstab", system.Response{Exit: 1, Stderr: "cp: cannot open"})
		c := &ExternalCopier{Runner: r}
		err := c.Copy(ctx, "/etc/fstab", "/s/fstab", true)
		var cmdErr *system.CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, 1, cmdErr.ExitCode)
	})
}

func TestSelectCopier(t *testing.T) {
	logger := logging.ForTest(t)

	assert.Equal(t, "native", SelectCopier("native", system.NewFake("rsync"), logger).Name())
	assert.Equal(t, "rsync", SelectCopier("auto", system.NewFake("rsync"), logger).Name())
	assert.Equal(t, "native", SelectCopier("auto", system.NewFake(), logger).Name())
	assert.Equal(t, "cp", SelectCopier("rsync", system.NewFake(), logger).Name())
}
