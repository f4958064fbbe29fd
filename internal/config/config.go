// Package config provides configuration management for dotsave using Viper.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/paths"
)

// CurrentVersion is the only configuration schema version understood.
const CurrentVersion = 1

// Archive formats.
const (
	FormatGzip = "gzip"
	FormatXZ   = "xz"
)

// Transfer backends.
const (
	BackendAuto   = "auto"
	BackendRsync  = "rsync"
	BackendNative = "native"
)

// Config is the immutable value handed to the backup orchestrator.
type Config struct {
	Version              int           `mapstructure:"version" yaml:"version"`
	Profile              string        `mapstructure:"profile" yaml:"profile"`
	DestinationDirectory string        `mapstructure:"destination_directory" yaml:"destination_directory"`
	CreateArchive        bool          `mapstructure:"create_archive" yaml:"create_archive"`
	ArchiveFormat        string        `mapstructure:"archive_format" yaml:"archive_format"`
	ArchiveBaseName      string        `mapstructure:"archive_base_name" yaml:"archive_base_name"`
	StagingParent        string        `mapstructure:"staging_parent" yaml:"staging_parent"`
	TransferBackend      string        `mapstructure:"transfer_backend" yaml:"transfer_backend"`
	CommandTimeout       time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	Keep                 int           `mapstructure:"keep" yaml:"keep"`
	Notify               bool          `mapstructure:"notify" yaml:"notify"`
	MetricsTextfile      string        `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`

	RsyncStyleItems []string `mapstructure:"rsync_style_items" yaml:"rsync_style_items"`
	DirectCopyItems []string `mapstructure:"direct_copy_items" yaml:"direct_copy_items"`
	ExcludePatterns []string `mapstructure:"exclude_patterns" yaml:"exclude_patterns"`
	PrivilegedItems []string `mapstructure:"privileged_items" yaml:"privileged_items"`

	Elevation  Elevation  `mapstructure:"elevation" yaml:"elevation"`
	Collectors Collectors `mapstructure:"collectors" yaml:"collectors"`
}

// Elevation controls how privileged items and collectors gain root.
type Elevation struct {
	Command     string `mapstructure:"command" yaml:"command"`
	Interactive bool   `mapstructure:"interactive" yaml:"interactive"`
}

// Collectors toggles the auxiliary collectors.
type Collectors struct {
	Crontab      bool `mapstructure:"crontab" yaml:"crontab"`
	RootCrontab  bool `mapstructure:"root_crontab" yaml:"root_crontab"`
	ShellHistory bool `mapstructure:"shell_history" yaml:"shell_history"`
	Packages     bool `mapstructure:"packages" yaml:"packages"`
	Dconf        bool `mapstructure:"dconf" yaml:"dconf"`
	Firewall     bool `mapstructure:"firewall" yaml:"firewall"`
}

// Init initializes Viper with default configuration.
// Call this once at application startup before accessing config values.
func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")
	viper.AddConfigPath(paths.ConfigDir())

	viper.SetEnvPrefix("DOTSAVE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())
}

// SetDefaults registers every scalar default on v. List fields are left
// unset so that the profile can fill them in.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("version", CurrentVersion)
	v.SetDefault("profile", ProfileDesktop)
	v.SetDefault("destination_directory", "~/Backups")
	v.SetDefault("create_archive", true)
	v.SetDefault("archive_format", FormatGzip)
	v.SetDefault("archive_base_name", "linux-config-backup")
	v.SetDefault("staging_parent", "")
	v.SetDefault("transfer_backend", BackendAuto)
	v.SetDefault("command_timeout", "30m")
	v.SetDefault("keep", 0)
	v.SetDefault("notify", true)
	v.SetDefault("metrics_textfile", "")
	v.SetDefault("elevation.command", "sudo")
	v.SetDefault("elevation.interactive", false)
	for _, c := range []string{"crontab", "root_crontab", "shell_history", "packages", "dconf", "firewall"} {
		v.SetDefault("collectors."+c, true)
	}
}

// Load reads the configuration file.
// If path is provided, it reads from that specific file; a missing file is
// then an error. If path is empty, the search paths are used and a missing
// file means defaults. The result is normalized and validated.
func Load(path string) (*Config, error) {
	return LoadFrom(viper.GetViper(), path)
}

// LoadFrom is Load against an explicit Viper instance.
func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Wrapf(dotsaveerrors.ErrNotFound, "config file %s", path)
		}
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(errors.Join(dotsaveerrors.ErrInvalidConfig, err), "reading config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.Join(dotsaveerrors.ErrInvalidConfig, err), "unmarshaling config")
	}

	home, _ := paths.ResolveHome()
	cfg.Normalize(home)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errors.Join(append([]error{dotsaveerrors.ErrInvalidConfig}, errs...)...)
	}
	return &cfg, nil
}

// Default returns the normalized configuration for profile with every
// default applied and no file read.
func Default(profile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.Set("profile", profile)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling defaults")
	}
	home, _ := paths.ResolveHome()
	cfg.Normalize(home)
	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errors.Join(append([]error{dotsaveerrors.ErrInvalidConfig}, errs...)...)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the file Viper read, if any.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// Normalize fills empty lists from the profile, trims and de-duplicates list
// entries keeping the first occurrence, and expands "~" in directory
// settings against home.
func (c *Config) Normalize(home string) {
	c.Profile = strings.ToLower(strings.TrimSpace(c.Profile))
	c.ArchiveFormat = strings.ToLower(strings.TrimSpace(c.ArchiveFormat))
	c.TransferBackend = strings.ToLower(strings.TrimSpace(c.TransferBackend))
	c.ArchiveBaseName = strings.TrimSpace(c.ArchiveBaseName)

	if p, ok := LookupProfile(c.Profile); ok {
		if len(c.RsyncStyleItems) == 0 {
			c.RsyncStyleItems = p.RsyncStyleItems
		}
		if len(c.DirectCopyItems) == 0 {
			c.DirectCopyItems = p.DirectCopyItems
		}
		if len(c.ExcludePatterns) == 0 {
			c.ExcludePatterns = p.ExcludePatterns
		}
		if len(c.PrivilegedItems) == 0 {
			c.PrivilegedItems = p.PrivilegedItems
		}
	}

	c.RsyncStyleItems = dedup(c.RsyncStyleItems)
	c.DirectCopyItems = dedup(c.DirectCopyItems)
	c.ExcludePatterns = dedup(c.ExcludePatterns)
	c.PrivilegedItems = dedup(c.PrivilegedItems)

	if home != "" {
		c.DestinationDirectory = paths.Expand(c.DestinationDirectory, home)
		c.StagingParent = paths.Expand(c.StagingParent, home)
		c.MetricsTextfile = paths.Expand(c.MetricsTextfile, home)
	}
	if c.Elevation.Command == "" {
		c.Elevation.Command = "sudo"
	}
}

// ArchiveExtension returns ".tar.gz" or ".tar.xz" for the configured format.
func (c *Config) ArchiveExtension() string {
	return ArchiveExtension(c.ArchiveFormat)
}

// ArchiveExtension maps a format name to its file extension, or "" if the
// format is unknown.
func ArchiveExtension(format string) string {
	switch format {
	case FormatGzip:
		return ".tar.gz"
	case FormatXZ:
		return ".tar.xz"
	default:
		return ""
	}
}

func dedup(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
