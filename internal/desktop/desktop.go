// Package desktop opens paths in the user's graphical file browser.
package desktop

import (
	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/dotsave/internal/system"
)

// ErrNoSession is returned when no graphical session is detected.
var ErrNoSession = errors.New("no graphical session")

// ErrNoOpener is returned when none of the opener commands is installed.
var ErrNoOpener = errors.New("no file opener installed")

// Openers are tried in order; the first installed one is used.
var Openers = [][]string{
	{"xdg-open"},
	{"gio", "open"},
	{"gnome-open"},
	{"kde-open"},
}

// GraphicalSession reports whether DISPLAY or WAYLAND_DISPLAY is set.
func GraphicalSession(getenv func(string) string) bool {
	return getenv("DISPLAY") != "" || getenv("WAYLAND_DISPLAY") != ""
}

// DetectOpener returns the first installed opener command line.
func DetectOpener(r system.Runner) ([]string, error) {
	for _, o := range Openers {
		if system.Available(r, o[0]) {
			return o, nil
		}
	}
	return nil, ErrNoOpener
}

// Open starts the opener on path without waiting for it.
func Open(r system.Runner, getenv func(string) string, path string) (string, error) {
	if !GraphicalSession(getenv) {
		return "", ErrNoSession
	}
	opener, err := DetectOpener(r)
	if err != nil {
		return "", err
	}
	args := append(append([]string{}, opener[1:]...), path)
	if err := r.Start(opener[0], args...); err != nil {
		return opener[0], errors.Wrapf(err, "opening %s", path)
	}
	return opener[0], nil
}
