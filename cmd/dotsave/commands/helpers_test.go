package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/thoreinstein/dotsave/internal/backup"
	"github.com/thoreinstein/dotsave/internal/config"
)

// useConfig installs cfg as the loaded configuration for the test.
func useConfig(t *testing.T, cfg *config.Config, loadErr error) {
	t.Helper()
	origCfg, origErr := loadedConfig, configLoadErr
	loadedConfig, configLoadErr = cfg, loadErr
	t.Cleanup(func() { loadedConfig, configLoadErr = origCfg, origErr })
}

// setFlag sets a flag on c as if given on the command line and restores
// the default afterwards.
func setFlag(t *testing.T, c *cobra.Command, name, value string) {
	t.Helper()
	f := c.Flags().Lookup(name)
	require.NotNil(t, f, "flag %s", name)
	def := f.DefValue
	require.NoError(t, c.Flags().Set(name, value))
	t.Cleanup(func() {
		_ = f.Value.Set(def)
		f.Changed = false
	})
}

// captureOutput points c's output at a buffer for the test.
func captureOutput(t *testing.T, c *cobra.Command) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetContext(t.Context())
	t.Cleanup(func() { c.SetOut(nil) })
	return &buf
}

// testConfig is a configuration that touches only temporary directories
// and runs no external commands.
func testConfig(t *testing.T, home string) *config.Config {
	t.Helper()
	return &config.Config{
		Version:              config.CurrentVersion,
		Profile:              config.ProfileMinimal,
		DestinationDirectory: filepath.Join(t.TempDir(), "Backups"),
		CreateArchive:        false,
		ArchiveFormat:        config.FormatGzip,
		ArchiveBaseName:      "test-backup",
		StagingParent:        t.TempDir(),
		TransferBackend:      config.BackendNative,
		CommandTimeout:       time.Minute,
		RsyncStyleItems:      []string{".config/app"},
		DirectCopyItems:      []string{".bashrc"},
		ExcludePatterns:      []string{"*.log"},
		PrivilegedItems:      []string{filepath.Join(home, "no-such-system-file")},
		Elevation:            config.Elevation{Command: "sudo"},
	}
}

// seedOutputs creates n archives named for base in dest, one minute apart,
// oldest first.
func seedOutputs(t *testing.T, dest, base string, n int) []string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dest, 0o700))
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	names := make([]string, n)
	for i := range n {
		names[i] = backup.RunName(base, start.Add(time.Duration(i)*time.Minute)) + ".tar.gz"
		require.NoError(t, os.WriteFile(filepath.Join(dest, names[i]), []byte("archive"), 0o600))
	}
	return names
}
