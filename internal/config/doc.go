// Package config loads and validates the dotsave configuration.
//
// The configuration file lives at ~/.config/dotsave/config.yaml (or
// ./config.yaml, or the path given with --config). Every key can be
// overridden by an environment variable with the DOTSAVE_ prefix, nested
// keys joined with underscores:
//
//	DOTSAVE_ARCHIVE_FORMAT=xz
//	DOTSAVE_ELEVATION_INTERACTIVE=true
//
// A minimal file only needs what differs from the defaults:
//
//	version: 1
//	profile: server
//	destination_directory: /srv/backups
//	archive_format: xz
//	exclude_patterns:
//	  - ".cache/*"
//	  - "**/node_modules"
//
// # Profiles
//
// A profile supplies default item lists. Any of rsync_style_items,
// direct_copy_items, exclude_patterns or privileged_items that is left empty
// takes the profile's list; a non-empty list replaces it entirely.
//
// # Normalization
//
// [Load] trims and de-duplicates list entries (first occurrence wins) and
// expands "~" in directory settings before [Validate] runs. An invalid value
// is reported together with all other invalid values, wrapped so that
// errors.Is(err, dotsaveerrors.ErrInvalidConfig) holds.
package config
