package paths

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
)

// AppName is used for XDG sub-directories and the config file location.
const AppName = "dotsave"

// Sentinel errors for path resolution.
var (
	// ErrHomeDirNotFound indicates the user's home directory could not be determined.
	ErrHomeDirNotFound = errors.New("home directory not found")

	// ErrInvalidPath indicates the provided path is malformed or invalid.
	ErrInvalidPath = errors.New("invalid path")
)

// DefaultDirPerm is the default permission for newly created directories (private).
const DefaultDirPerm = 0o700

// lookupUser and geteuid are swapped in tests.
var (
	lookupUser = user.Lookup
	geteuid    = os.Geteuid
)

// EnsureDir creates the directory and any necessary parents with specified permissions.
// If perm is 0, DefaultDirPerm (0700) is used.
func EnsureDir(path string, perm os.FileMode) error {
	if perm == 0 {
		perm = DefaultDirPerm
	}
	return os.MkdirAll(path, perm)
}

// ResolveHome returns the home directory of the user who invoked dotsave.
// When running as root through sudo, SUDO_USER's home is returned so that
// user-relative items resolve against the real user and not /root.
func ResolveHome() (string, error) {
	if geteuid() == 0 {
		if name := os.Getenv("SUDO_USER"); name != "" && name != "root" {
			if u, err := lookupUser(name); err == nil && u.HomeDir != "" {
				return u.HomeDir, nil
			}
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(ErrHomeDirNotFound, err.Error())
	}
	return home, nil
}

// Home returns ResolveHome's result, or an empty string on error.
func Home() string {
	h, _ := ResolveHome()
	return h
}

// ConfigHome returns the XDG config home directory.
func ConfigHome() string {
	return xdg.ConfigHome
}

// StateHome returns the XDG state home directory.
func StateHome() string {
	return xdg.StateHome
}

// ConfigDir returns <ConfigHome>/dotsave.
func ConfigDir() string {
	return filepath.Join(ConfigHome(), AppName)
}

// ConfigFile returns the default configuration file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Expand resolves "~" and "~/..." against home. Relative paths that do not
// start with "~" are left untouched.
func Expand(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// ResolveItem turns a configured item path into an absolute path. Absolute
// paths are cleaned, "~" forms are expanded, anything else is taken relative
// to home.
func ResolveItem(path, home string) string {
	expanded := Expand(path, home)
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded)
	}
	return filepath.Join(home, expanded)
}

// IsUnder reports whether path is dir itself or lies below it.
func IsUnder(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Validate checks that a path string is syntactically usable: not empty
// after cleaning and free of NUL bytes. It does not touch the filesystem.
func Validate(path string) error {
	if strings.ContainsRune(path, '\x00') {
		return errors.Wrapf(ErrInvalidPath, "%q contains NUL", path)
	}
	cleaned := filepath.Clean(path)
	if path == "" || cleaned == "." {
		return errors.Wrapf(ErrInvalidPath, "%q is empty", path)
	}
	return nil
}
