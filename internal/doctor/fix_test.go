package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPermissionFixer_CanFix(t *testing.T) {
	tests := []struct {
		name   string
		issues []pathIssue
		want   bool
	}{
		{
			name: "no issues",
			want: false,
		},
		{
			name:   "non-fixable issue",
			issues: []pathIssue{{Path: "/x", Type: "file", Severity: SeverityError}},
			want:   false,
		},
		{
			name: "mixed issues",
			issues: []pathIssue{
				{Path: "/x", Type: "file", Severity: SeverityError},
				{Path: "/y", Type: "file", Severity: SeverityWarning, Fixable: true},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f PermissionFixer
			f.setIssues(tt.issues)
			if got := f.CanFix(); got != tt.want {
				t.Errorf("CanFix() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermissionFixer_Fix(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "archive.tar.gz")
	sub := filepath.Join(dir, "staged")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(file, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	var f PermissionFixer
	f.setIssues([]pathIssue{
		{Path: file, Type: "file", Fixable: true},
		{Path: sub, Type: "directory", Fixable: true},
		{Path: filepath.Join(dir, "skipped"), Type: "file"},
		{Path: filepath.Join(dir, "odd"), Type: "socket", Fixable: true},
	})
	if n := f.CountFixable(); n != 3 {
		t.Fatalf("CountFixable() = %d, want 3", n)
	}

	results := f.Fix()
	if len(results) != 3 {
		t.Fatalf("Fix() returned %d results, want 3", len(results))
	}
	if !results[0].Fixed || results[0].Description != "chmod 0600" {
		t.Errorf("file result = %+v, want fixed with chmod 0600", results[0])
	}
	if !results[1].Fixed || results[1].Description != "chmod 0700" {
		t.Errorf("directory result = %+v, want fixed with chmod 0700", results[1])
	}
	if results[2].Fixed || results[2].Error == nil {
		t.Errorf("socket result = %+v, want an unfixed error", results[2])
	}

	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file permissions = %o, want 600", perm)
	}
	info, err = os.Stat(sub)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("directory permissions = %o, want 700", perm)
	}
}

func TestPermissionFixer_FixMissingPath(t *testing.T) {
	var f PermissionFixer
	f.setIssues([]pathIssue{{Path: filepath.Join(t.TempDir(), "gone"), Type: "file", Fixable: true}})

	results := f.Fix()
	if len(results) != 1 {
		t.Fatalf("Fix() returned %d results, want 1", len(results))
	}
	if results[0].Fixed || results[0].Error == nil {
		t.Errorf("result = %+v, want an unfixed error", results[0])
	}
	if !strings.Contains(results[0].Description, "failed to chmod") {
		t.Errorf("Description = %q, want it to mention the failed chmod", results[0].Description)
	}
}

func TestPermissionFixer_KeepsOwnerBits(t *testing.T) {
	script := filepath.Join(t.TempDir(), "restore.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatal(err)
	}

	var f PermissionFixer
	f.setIssues([]pathIssue{{Path: script, Type: "file", Fixable: true}})
	results := f.Fix()
	if len(results) != 1 {
		t.Fatalf("Fix() returned %d results, want 1", len(results))
	}
	if results[0].Description != "chmod 0700" {
		t.Errorf("Description = %q, want chmod 0700", results[0].Description)
	}
}

func TestPermissionFixer_TypeChanged(t *testing.T) {
	var f PermissionFixer
	f.setIssues([]pathIssue{{Path: t.TempDir(), Type: "file", Fixable: true}})

	results := f.Fix()
	if len(results) != 1 {
		t.Fatalf("Fix() returned %d results, want 1", len(results))
	}
	if results[0].Fixed || results[0].Error == nil {
		t.Errorf("result = %+v, want an unfixed error", results[0])
	}
}
