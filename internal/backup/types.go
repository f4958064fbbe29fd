package backup

import (
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Kind selects how an item is transferred.
type Kind int

const (
	// RsyncStyle items are mirrored with the exclusion matcher applied.
	RsyncStyle Kind = iota
	// DirectCopy items are copied as-is, no excludes.
	DirectCopy
	// Privileged items are system paths copied under elevation.
	Privileged
)

func (k Kind) String() string {
	switch k {
	case RsyncStyle:
		return "rsync-style"
	case DirectCopy:
		return "direct-copy"
	case Privileged:
		return "privileged"
	default:
		return "unknown"
	}
}

// MarshalYAML renders the kind by name in report.yaml.
func (k Kind) MarshalYAML() (any, error) {
	return k.String(), nil
}

// MarshalText renders the kind by name in JSON output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "rsync-style":
		*k = RsyncStyle
	case "direct-copy":
		*k = DirectCopy
	case "privileged":
		*k = Privileged
	default:
		return errors.Newf("unknown item kind %q", b)
	}
	return nil
}

// UnmarshalYAML reads the kind back from report.yaml.
func (k *Kind) UnmarshalYAML(node *yaml.Node) error {
	return k.UnmarshalText([]byte(node.Value))
}

// Item is one configured source path. Existence is not stored; it is
// re-checked when the item is transferred.
type Item struct {
	Source string
	Kind   Kind
}

// Name is the base name used in logs and as the destination entry name.
func (i Item) Name() string {
	return filepath.Base(i.Source)
}

// Status is the outcome of one item or collector.
type Status string

const (
	StatusOK                 Status = "ok"
	StatusSkippedMissing     Status = "skipped-missing"
	StatusSkippedUnavailable Status = "skipped-unavailable"
	StatusSkippedNoElevation Status = "skipped-no-elevation"
	StatusEmpty              Status = "empty"
	StatusFailed             Status = "failed"
)

// TierStatus is the outcome of the privileged tier as a whole.
type TierStatus string

const (
	// TierCompleted means elevation was available and at least one item succeeded.
	TierCompleted TierStatus = "completed"
	// TierSkipped means elevation was not available.
	TierSkipped TierStatus = "skipped"
	// TierEmpty means elevation was available but nothing succeeded.
	TierEmpty TierStatus = "empty"
	// TierNone means no privileged items were configured.
	TierNone TierStatus = "none"
)

// ItemResult records what happened to one item.
type ItemResult struct {
	Source string `yaml:"source" json:"source"`
	Kind   Kind   `yaml:"kind" json:"kind"`
	Status Status `yaml:"status" json:"status"`
	Dest   string `yaml:"dest,omitempty" json:"dest,omitempty"`
	Error  string `yaml:"error,omitempty" json:"error,omitempty"`
}

// CollectorResult records what happened to one auxiliary collector.
type CollectorResult struct {
	Name   string   `yaml:"name" json:"name"`
	Status Status   `yaml:"status" json:"status"`
	Files  []string `yaml:"files,omitempty" json:"files,omitempty"`
	Error  string   `yaml:"error,omitempty" json:"error,omitempty"`
}

// Marker file names written into the stage.
const (
	ReportFile              = "report.yaml"
	PrivilegedSkippedMarker = "privileged.skipped"
)

// Sentinel errors for backup operations.
var (
	// ErrInvalidTransition is returned when the finalizer is driven out of order.
	ErrInvalidTransition = errors.New("invalid finalizer state transition")

	// ErrNoOutputs indicates no previous outputs exist at the destination.
	ErrNoOutputs = errors.New("no backups found")

	// ErrInterrupted is returned when the run context is canceled mid-run.
	ErrInterrupted = errors.New("backup interrupted")
)
