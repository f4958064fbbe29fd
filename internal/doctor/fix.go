package doctor

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
)

// Fixer is implemented by checks that can repair what they found. CanFix
// and Fix are only meaningful after Run.
type Fixer interface {
	CanFix() bool
	Fix() []FixResult
}

// FixResult is the outcome of one repair.
type FixResult struct {
	Path        string `json:"path"`
	Fixed       bool   `json:"fixed"`
	Description string `json:"description"`
	Error       error  `json:"-"`
}

// PermissionFixer removes group and other access from backup outputs and
// the directories holding them: archives become 0600, directories 0700.
// Owner bits are left as they are. It is embedded in checks that report
// path issues.
type PermissionFixer struct {
	issues []pathIssue
}

func (f *PermissionFixer) CanFix() bool {
	return f.CountFixable() > 0
}

// Fix repairs every fixable issue, in the order they were found.
func (f *PermissionFixer) Fix() []FixResult {
	results := make([]FixResult, 0, f.CountFixable())
	for _, issue := range f.issues {
		if issue.Fixable {
			results = append(results, fixPermissions(issue))
		}
	}
	return results
}

func fixPermissions(issue pathIssue) FixResult {
	result := FixResult{Path: issue.Path}
	fail := func(err error, format string, args ...any) FixResult {
		result.Description = fmt.Sprintf(format, args...)
		result.Error = err
		return result
	}

	if issue.Type != "file" && issue.Type != "directory" {
		return fail(errors.Newf("cannot fix unknown type: %s", issue.Type), "unknown type: %s", issue.Type)
	}

	// Lstat: never follow a link planted in the destination.
	info, err := os.Lstat(issue.Path)
	if err != nil {
		return fail(errors.Wrapf(err, "stat %s", issue.Path), "failed to chmod: %v", err)
	}
	if info.IsDir() != (issue.Type == "directory") || info.Mode()&fs.ModeSymlink != 0 {
		return fail(errors.Newf("%s is no longer a %s", issue.Path, issue.Type), "changed since check, skipped")
	}

	target := info.Mode().Perm() &^ 0o077
	if err := os.Chmod(issue.Path, target); err != nil {
		return fail(errors.Wrapf(err, "chmod %04o %s", target, issue.Path), "failed to chmod %04o: %v", target, err)
	}
	result.Fixed = true
	result.Description = fmt.Sprintf("chmod %04o", target)
	return result
}

func (f *PermissionFixer) setIssues(issues []pathIssue) {
	f.issues = issues
}

func (f *PermissionFixer) CountFixable() int {
	count := 0
	for _, issue := range f.issues {
		if issue.Fixable {
			count++
		}
	}
	return count
}
