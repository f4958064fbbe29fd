package logging

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsTTY reports whether w is a terminal. Anything with an Fd method counts,
// so *os.File and wrappers around it work.
func IsTTY(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// SupportsColor reports whether log output to w should be colored.
//
// NO_COLOR (non-empty) and TERM=dumb turn color off. CLICOLOR_FORCE
// (non-empty, not "0") turns it on even when w is a pipe, for
// "dotsave -v 2>&1 | less -R". Otherwise color follows IsTTY.
func SupportsColor(w io.Writer) bool {
	return supportsColor(os.Getenv, IsTTY(w))
}

func supportsColor(getenv func(string) string, isTTY bool) bool {
	if getenv("NO_COLOR") != "" || getenv("TERM") == "dumb" {
		return false
	}
	if force := getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		return true
	}
	return isTTY
}
