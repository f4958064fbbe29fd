package config

import (
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/paths"
)

// Validation errors for configuration fields.
var (
	ErrUnsupportedVersion = errors.New("unsupported config version")
	ErrUnknownProfile     = errors.New("unknown profile")
	ErrInvalidBackend     = errors.New("invalid transfer backend")
	ErrInvalidBaseName    = errors.New("invalid archive base name")
	ErrInvalidPattern     = errors.New("invalid exclude pattern")
	ErrInvalidPath        = paths.ErrInvalidPath
	ErrInvalidValue       = errors.New("invalid value")
)

// Validate checks a Config for validity.
// Returns nil if valid, or every problem found.
func Validate(cfg *Config) []error {
	if cfg == nil {
		return []error{errors.New("config is nil")}
	}

	var errs []error

	if cfg.Version != CurrentVersion {
		errs = append(errs, &FieldError{Field: "version", Value: strconv.Itoa(cfg.Version), Err: ErrUnsupportedVersion})
	}
	if _, ok := LookupProfile(cfg.Profile); !ok {
		errs = append(errs, &FieldError{Field: "profile", Value: cfg.Profile, Err: ErrUnknownProfile})
	}
	if ArchiveExtension(cfg.ArchiveFormat) == "" {
		errs = append(errs, &FieldError{Field: "archive_format", Value: cfg.ArchiveFormat, Err: dotsaveerrors.ErrUnsupportedFormat})
	}
	switch cfg.TransferBackend {
	case BackendAuto, BackendRsync, BackendNative:
	default:
		errs = append(errs, &FieldError{Field: "transfer_backend", Value: cfg.TransferBackend, Err: ErrInvalidBackend})
	}
	if err := ValidateBaseName(cfg.ArchiveBaseName); err != nil {
		errs = append(errs, &FieldError{Field: "archive_base_name", Value: cfg.ArchiveBaseName, Err: err})
	}
	if cfg.CommandTimeout <= 0 {
		errs = append(errs, &FieldError{Field: "command_timeout", Value: cfg.CommandTimeout.String(), Err: ErrInvalidValue})
	}
	if cfg.Keep < 0 {
		errs = append(errs, &FieldError{Field: "keep", Value: strconv.Itoa(cfg.Keep), Err: ErrInvalidValue})
	}

	if err := paths.Validate(cfg.DestinationDirectory); err != nil {
		errs = append(errs, &FieldError{Field: "destination_directory", Value: cfg.DestinationDirectory, Err: err})
	}
	for field, p := range map[string]string{"staging_parent": cfg.StagingParent, "metrics_textfile": cfg.MetricsTextfile} {
		if p == "" {
			continue
		}
		if err := paths.Validate(p); err != nil {
			errs = append(errs, &FieldError{Field: field, Value: p, Err: err})
		}
	}

	for _, list := range []struct {
		field string
		items []string
	}{
		{"rsync_style_items", cfg.RsyncStyleItems},
		{"direct_copy_items", cfg.DirectCopyItems},
		{"privileged_items", cfg.PrivilegedItems},
	} {
		for _, item := range list.items {
			if err := paths.Validate(item); err != nil {
				errs = append(errs, &FieldError{Field: list.field, Value: item, Err: err})
			}
		}
	}

	for _, pattern := range cfg.ExcludePatterns {
		if err := ValidatePattern(pattern); err != nil {
			errs = append(errs, &FieldError{Field: "exclude_patterns", Value: pattern, Err: err})
		}
	}

	if strings.TrimSpace(cfg.Elevation.Command) == "" {
		errs = append(errs, &FieldError{Field: "elevation.command", Err: ErrInvalidValue})
	}

	return errs
}

// ValidateBaseName rejects empty names and names that are not a single path
// component.
func ValidateBaseName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidBaseName
	}
	if strings.ContainsAny(name, "/\x00") || filepath.Base(name) != name {
		return ErrInvalidBaseName
	}
	return nil
}

// ValidatePattern checks that pattern is a well-formed glob.
func ValidatePattern(pattern string) error {
	if strings.TrimSpace(pattern) == "" {
		return ErrInvalidPattern
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return errors.Wrapf(ErrInvalidPattern, "%v", err)
	}
	return nil
}

// FieldError reports an invalid value for one configuration key.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return e.Field + ": " + e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error() + ": " + e.Value
}

func (e *FieldError) Unwrap() error {
	return e.Err
}
