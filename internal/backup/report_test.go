package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() *Report {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return &Report{
		Name:        "b-20240501-100000",
		Start:       start,
		End:         start.Add(90 * time.Second),
		Destination: "/home/me/Backups",
		Output:      "/home/me/Backups/b-20240501-100000.tar.gz",
		Archive:     true,
		Format:      "gzip",
		Attempted:   3,
		Items: []ItemResult{
			{Source: "/home/me/.config/nvim", Kind: RsyncStyle, Status: StatusOK},
			{Source: "/home/me/.bashrc", Kind: DirectCopy, Status: StatusOK},
			{Source: "/home/me/.gone", Kind: DirectCopy, Status: StatusSkippedMissing},
			{Source: "/etc/ssh", Kind: Privileged, Status: StatusSkippedNoElevation},
		},
		Collectors: []CollectorResult{
			{Name: "crontab", Status: StatusEmpty, Files: []string{"crontab/user.empty"}},
			{Name: "dconf", Status: StatusSkippedUnavailable},
		},
		PrivilegedTier: TierSkipped,
	}
}

func TestReport_StatusLine(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 2, r.Succeeded())
	assert.Equal(t, "2 of 3 items succeeded", r.StatusLine())
	assert.Equal(t, map[Status]int{
		StatusOK:                 2,
		StatusSkippedMissing:     1,
		StatusSkippedNoElevation: 1,
	}, r.ItemCounts())
}

func TestReport_Write(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport()
	require.NoError(t, r.Write(dir))

	data, err := os.ReadFile(filepath.Join(dir, ReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "kind: rsync-style")
	assert.Contains(t, string(data), "privileged_tier: skipped")

	var back Report
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, r.Items, back.Items)
	assert.Equal(t, r.Collectors, back.Collectors)
	assert.True(t, r.End.Equal(back.End))
}

func TestReport_Stats(t *testing.T) {
	r := sampleReport()
	r.ArchiveSize = 4096
	stats := r.Stats(true)

	assert.True(t, stats.Success)
	assert.Equal(t, int64(4096), stats.ArchiveSize)
	assert.Equal(t, 2, stats.Items["ok"])
	assert.Equal(t, 1, stats.Collectors["empty"])
	assert.Equal(t, "skipped", stats.PrivilegedTier)
}

func TestKind_UnmarshalText(t *testing.T) {
	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("privileged")))
	assert.Equal(t, Privileged, k)
	assert.Error(t, k.UnmarshalText([]byte("bogus")))
}
