// Package fileutil provides file system helpers for writing outputs that
// must never be observed half-written.
package fileutil

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const tempPattern = ".dotsave-atomic-*.tmp"

// AtomicWriteFile writes data to path using a temp file in the same
// directory followed by a rename. An interrupted write leaves any previous
// file intact. The parent directory must exist.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	w, err := NewAtomicWriter(path, perm)
	if err != nil {
		return err
	}
	defer w.Abort()

	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "writing temp file")
	}
	return w.Commit()
}

// AtomicWriter streams content into a hidden temp file next to its final
// path. Commit renames it into place; Abort removes it. Abort after Commit is
// a no-op, so callers can defer Abort unconditionally.
type AtomicWriter struct {
	*os.File
	path string
	perm os.FileMode
	done bool
}

// NewAtomicWriter creates the temp file for path.
func NewAtomicWriter(path string, perm os.FileMode) (*AtomicWriter, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPattern)
	if err != nil {
		return nil, errors.Wrap(err, "creating temp file")
	}
	return &AtomicWriter{File: tmp, path: path, perm: perm}, nil
}

// Path returns the final destination path.
func (w *AtomicWriter) Path() string { return w.path }

// Commit syncs, closes and renames the temp file to its final path.
func (w *AtomicWriter) Commit() error {
	if w.done {
		return errors.New("atomic writer already finished")
	}
	if err := w.Chmod(w.perm); err != nil {
		return errors.Wrap(err, "setting file permissions")
	}
	if err := w.Sync(); err != nil {
		return errors.Wrap(err, "syncing temp file")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(w.Name(), w.path); err != nil {
		os.Remove(w.Name())
		w.done = true
		return errors.Wrap(err, "renaming temp file")
	}
	w.done = true
	return nil
}

// Abort discards the temp file.
func (w *AtomicWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.Close()
	os.Remove(w.Name())
}

// AtomicWriteYAMLWithPerm writes v as YAML.
func AtomicWriteYAMLWithPerm(path string, v any, perm os.FileMode) (err error) {
	// yaml.Marshal panics on unmarshalable types
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("marshaling YAML: %v", r)
		}
	}()

	data, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshaling YAML")
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	return AtomicWriteFile(path, data, perm)
}

// AtomicWriteYAML writes v as YAML with 0644 permissions.
func AtomicWriteYAML(path string, v any) error {
	return AtomicWriteYAMLWithPerm(path, v, 0o644)
}
