// Package editor launches the user's preferred text editor.
package editor

import (
	"os"
	"os/exec"
	"strings"

	"github.com/cockroachdb/errors"
)

// Open launches the user's preferred editor on path and waits for it.
// $EDITOR and $VISUAL may carry arguments ("code -w").
func Open(path string) error {
	argv := strings.Fields(detectEditor())
	argv = append(argv, path)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return errors.Wrap(err, "running editor")
	}
	return nil
}

// detectEditor follows $EDITOR, $VISUAL, nano, vi.
func detectEditor() string {
	if editor := strings.TrimSpace(os.Getenv("EDITOR")); editor != "" {
		return editor
	}
	if visual := strings.TrimSpace(os.Getenv("VISUAL")); visual != "" {
		return visual
	}
	if _, err := exec.LookPath("nano"); err == nil {
		return "nano"
	}
	return "vi"
}
