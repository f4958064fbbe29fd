package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/thoreinstein/dotsave/pkg/fileutil"
)

// TimestampLayout is the local-time stamp embedded in output names.
const TimestampLayout = "20060102-150405"

// RunName returns "{base}-{timestamp}".
func RunName(base string, t time.Time) string {
	return base + "-" + t.Format(TimestampLayout)
}

// UniqueName returns RunName, or RunName with a "-2", "-3", ... suffix when
// outputs with the same timestamp already exist in dest. The suffix is one
// above the highest present so names keep sorting in creation order.
func UniqueName(dest, base string, t time.Time) string {
	name := RunName(base, t)
	stamp := t.Format(TimestampLayout)
	entries, err := os.ReadDir(dest)
	if err != nil {
		return name
	}

	re := outputPattern(base)
	highest := 0
	for _, entry := range entries {
		m := re.FindStringSubmatch(entry.Name())
		if m == nil || m[1] != stamp {
			continue
		}
		seq := 1
		if m[2] != "" {
			if n, err := strconv.Atoi(m[2]); err == nil {
				seq = n
			}
		}
		highest = max(highest, seq)
	}
	if highest == 0 {
		return name
	}
	return name + "-" + strconv.Itoa(highest+1)
}

// Output is a previous run found in the destination directory.
type Output struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Time    time.Time `json:"time"`
	Seq     int       `json:"seq,omitempty"`
	Archive bool      `json:"archive"`
	Size    int64     `json:"size"`
	// Status is the report status line, known for unarchived outputs only.
	Status string `json:"status,omitempty"`
}

func outputPattern(base string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `-(\d{8}-\d{6})(?:-(\d+))?(\.tar\.gz|\.tar\.xz)?$`)
}

// List returns the outputs for base in dest, newest first. It returns
// ErrNoOutputs when there are none.
func List(dest, base string) ([]Output, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoOutputs
		}
		return nil, errors.Wrap(err, "reading destination directory")
	}

	re := outputPattern(base)
	outputs := make([]Output, 0, len(entries))
	for _, entry := range entries {
		m := re.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		isArchive := m[3] != ""
		if isArchive == entry.IsDir() {
			continue
		}
		ts, err := time.ParseInLocation(TimestampLayout, m[1], time.Local)
		if err != nil {
			continue
		}
		seq := 0
		if m[2] != "" {
			seq, _ = strconv.Atoi(m[2])
		}
		out := Output{
			Name:    entry.Name(),
			Path:    filepath.Join(dest, entry.Name()),
			Time:    ts,
			Seq:     seq,
			Archive: isArchive,
		}
		if info, err := entry.Info(); err == nil && isArchive {
			out.Size = info.Size()
		}
		if !isArchive {
			out.Status = readStatus(out.Path)
		}
		outputs = append(outputs, out)
	}

	if len(outputs) == 0 {
		return nil, ErrNoOutputs
	}

	slices.SortFunc(outputs, func(a, b Output) int {
		if c := b.Time.Compare(a.Time); c != 0 {
			return c
		}
		return b.Seq - a.Seq
	})
	return outputs, nil
}

func readStatus(dir string) string {
	data, err := fileutil.ReadFileLimit(filepath.Join(dir, ReportFile), 1<<20)
	if err != nil {
		return ""
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return ""
	}
	return r.StatusLine()
}

// Prune removes outputs for base beyond the newest keep and returns what was
// removed. remove deletes one output; nil means os.RemoveAll. Removal stops
// at the first failure.
func Prune(ctx context.Context, dest, base string, keep int, remove func(ctx context.Context, path string, elevated bool) error) ([]Output, error) {
	if keep < 0 {
		return nil, errors.Newf("keep must be non-negative, got %d", keep)
	}
	if remove == nil {
		remove = func(_ context.Context, path string, _ bool) error { return os.RemoveAll(path) }
	}

	outputs, err := List(dest, base)
	if err != nil {
		if errors.Is(err, ErrNoOutputs) {
			return nil, nil
		}
		return nil, err
	}

	var removed []Output
	for i := keep; i < len(outputs); i++ {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		// staged directories may hold root-owned files from the privileged tier
		if err := remove(ctx, outputs[i].Path, !outputs[i].Archive); err != nil {
			return removed, errors.Wrapf(err, "removing %s", outputs[i].Name)
		}
		removed = append(removed, outputs[i])
	}
	return removed, nil
}

// HumanSize renders a byte count for listings.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
