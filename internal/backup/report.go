package backup

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/thoreinstein/dotsave/internal/metrics"
	"github.com/thoreinstein/dotsave/pkg/fileutil"
)

// Report is the outcome of one run. It is written into the stage as
// report.yaml before packaging.
type Report struct {
	Name        string    `yaml:"name" json:"name"`
	Start       time.Time `yaml:"start" json:"start"`
	End         time.Time `yaml:"end" json:"end"`
	Destination string    `yaml:"destination" json:"destination"`
	Output      string    `yaml:"output" json:"output"`
	Archive     bool      `yaml:"archive" json:"archive"`
	Format      string    `yaml:"format,omitempty" json:"format,omitempty"`
	ArchiveSize int64     `yaml:"-" json:"archive_size,omitempty"`

	// Attempted counts items that existed at enumeration time.
	Attempted      int               `yaml:"attempted" json:"attempted"`
	Items          []ItemResult      `yaml:"items" json:"items"`
	Collectors     []CollectorResult `yaml:"collectors" json:"collectors"`
	PrivilegedTier TierStatus        `yaml:"privileged_tier" json:"privileged_tier"`
}

// Succeeded counts items with StatusOK.
func (r *Report) Succeeded() int {
	n := 0
	for _, it := range r.Items {
		if it.Status == StatusOK {
			n++
		}
	}
	return n
}

// ItemCounts tallies item results by status.
func (r *Report) ItemCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, it := range r.Items {
		counts[it.Status]++
	}
	return counts
}

// CollectorCounts tallies collector results by status.
func (r *Report) CollectorCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, c := range r.Collectors {
		counts[c.Status]++
	}
	return counts
}

// StatusLine is the final summary, "N of M items succeeded".
func (r *Report) StatusLine() string {
	return fmt.Sprintf("%d of %d items succeeded", r.Succeeded(), r.Attempted)
}

// Write stores the report as report.yaml in dir.
func (r *Report) Write(dir string) error {
	return fileutil.AtomicWriteYAMLWithPerm(filepath.Join(dir, ReportFile), r, 0o644)
}

// Stats converts the report for the metrics exporter.
func (r *Report) Stats(success bool) metrics.RunStats {
	stats := metrics.RunStats{
		Start:          r.Start,
		End:            r.End,
		Success:        success,
		ArchiveSize:    r.ArchiveSize,
		Items:          make(map[string]int),
		Collectors:     make(map[string]int),
		PrivilegedTier: string(r.PrivilegedTier),
	}
	for s, n := range r.ItemCounts() {
		stats.Items[string(s)] = n
	}
	for s, n := range r.CollectorCounts() {
		stats.Collectors[string(s)] = n
	}
	return stats
}
