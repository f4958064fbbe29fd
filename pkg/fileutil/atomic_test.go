package fileutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestAtomicWriteFile(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		perm os.FileMode
	}{
		{"text", []byte("hello world\n"), 0o644},
		{"empty", []byte{}, 0o644},
		{"binary private", []byte{0x00, 0x01, 0xFF}, 0o600},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out")
			if err := AtomicWriteFile(path, tt.data, tt.perm); err != nil {
				t.Fatalf("AtomicWriteFile() error = %v", err)
			}

			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			if !bytes.Equal(got, tt.data) {
				t.Errorf("content = %q, want %q", got, tt.data)
			}

			info, err := os.Stat(path)
			if err != nil {
				t.Fatalf("Stat() error = %v", err)
			}
			if perm := info.Mode().Perm(); perm != tt.perm {
				t.Errorf("permissions = %o, want %o", perm, tt.perm)
			}
		})
	}
}

func TestAtomicWriteFile_DirectoryNotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "file.txt")
	if err := AtomicWriteFile(path, []byte("x"), 0o644); err == nil {
		t.Error("expected error when the parent directory does not exist")
	}
}

func TestAtomicWriteFile_OverwriteExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWriteFile(path, []byte("new"), 0o644); err != nil {
		t.Fatalf("AtomicWriteFile() error = %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("content = %q, want new", got)
	}
}

func TestAtomicWriter_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.tar.gz")

	w, err := NewAtomicWriter(path, 0o644)
	if err != nil {
		t.Fatalf("NewAtomicWriter() error = %v", err)
	}
	if _, err := w.Write([]byte("partial")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	w.Abort()
	w.Abort()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("Abort left %d entries behind", len(entries))
	}
}

func TestAtomicWriter_CommitThenAbort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.tar.gz")

	w, err := NewAtomicWriter(path, 0o600)
	if err != nil {
		t.Fatalf("NewAtomicWriter() error = %v", err)
	}
	if w.Path() != path {
		t.Errorf("Path() = %q, want %q", w.Path(), path)
	}
	if !strings.HasPrefix(filepath.Base(w.Name()), ".dotsave-atomic-") {
		t.Errorf("temp file %q is not hidden", w.Name())
	}

	if _, err := w.Write([]byte("complete")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	w.Abort()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "complete" {
		t.Errorf("content = %q, want complete", got)
	}
	if err := w.Commit(); err == nil {
		t.Error("second commit must fail")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want only the committed file", len(entries))
	}
}

func TestAtomicWriteYAML(t *testing.T) {
	type elevation struct {
		Command     string `yaml:"command"`
		Interactive bool   `yaml:"interactive"`
	}
	tests := []struct {
		name     string
		value    any
		wantYAML string
		wantErr  bool
	}{
		{"struct", elevation{Command: "sudo"}, "command: sudo\ninteractive: false\n", false},
		{"list", []string{".bashrc", ".config/nvim"}, "- .bashrc\n- .config/nvim\n", false},
		{"unmarshalable channel", make(chan int), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			err := AtomicWriteYAML(path, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
					t.Error("a failed marshal must not create the file")
				}
				return
			}
			if err != nil {
				t.Fatalf("AtomicWriteYAML() error = %v", err)
			}

			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.wantYAML {
				t.Errorf("content = %q, want %q", got, tt.wantYAML)
			}
			var back any
			if err := yaml.Unmarshal(got, &back); err != nil {
				t.Errorf("written YAML does not parse: %v", err)
			}
		})
	}
}

func TestAtomicWriteYAMLWithPerm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")
	if err := AtomicWriteYAMLWithPerm(path, map[string]int{"attempted": 4}, 0o600); err != nil {
		t.Fatalf("AtomicWriteYAMLWithPerm() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("permissions = %o, want 600", perm)
	}
}
