package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/thoreinstein/dotsave/internal/backup"
	"github.com/thoreinstein/dotsave/internal/system"
)

// ToolCheck looks for an external command. With several Tools the first one
// found satisfies the check.
type ToolCheck struct {
	Label    string
	Tools    []string
	Required bool
	// Purpose completes "needed for ..." in messages.
	Purpose string
	Runner  system.Runner
	// Dirs are searched after PATH, for sbin tools an unprivileged PATH lacks.
	Dirs []string
}

var _ Check = (*ToolCheck)(nil)

// Name returns the unique identifier for this check.
func (c *ToolCheck) Name() string {
	if c.Label != "" {
		return c.Label
	}
	return strings.Join(c.Tools, "|")
}

// Category returns the grouping for this check.
func (c *ToolCheck) Category() string {
	return "tools"
}

// Run executes the tool lookup.
func (c *ToolCheck) Run(_ context.Context) *CheckResult {
	result := &CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
		Details:  map[string]any{"purpose": c.Purpose},
	}

	for _, tool := range c.Tools {
		if path, ok := c.find(tool); ok {
			result.Status = SeverityPass
			result.Message = fmt.Sprintf("%s found at %s", tool, path)
			result.Details["path"] = path
			return result
		}
	}

	wanted := strings.Join(c.Tools, ", ")
	if c.Required {
		result.Status = SeverityError
		result.Message = fmt.Sprintf("%s not found, needed for %s", wanted, c.Purpose)
		result.FixHint = "install " + c.Tools[0]
		return result
	}
	result.Status = SeverityInfo
	result.Message = fmt.Sprintf("%s not found, %s will be skipped", wanted, c.Purpose)
	return result
}

func (c *ToolCheck) find(tool string) (string, bool) {
	if path, err := c.Runner.LookPath(tool); err == nil {
		return path, true
	}
	for _, dir := range c.Dirs {
		path := filepath.Join(dir, tool)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// pathIssue represents a single path or permission problem.
type pathIssue struct {
	Path        string
	Type        string // "file" or "directory"
	Problem     string
	Severity    Severity
	Permissions string
	Fixable     bool
	FixHint     string
}

// DirectoryCheck verifies that a directory dotsave writes into exists and
// is writable, or can be created.
type DirectoryCheck struct {
	PermissionFixer

	Label string
	Path  string
}

var _ Check = (*DirectoryCheck)(nil)
var _ Fixer = (*DirectoryCheck)(nil)

// Name returns the unique identifier for this check.
func (c *DirectoryCheck) Name() string {
	return c.Label
}

// Category returns the grouping for this check.
func (c *DirectoryCheck) Category() string {
	return "filesystem"
}

// Run executes the directory check.
func (c *DirectoryCheck) Run(_ context.Context) *CheckResult {
	issues := c.checkDirectory(c.Path)
	c.setIssues(issues)
	if len(issues) == 0 {
		return &CheckResult{
			Name:     c.Name(),
			Category: c.Category(),
			Status:   SeverityPass,
			Message:  c.Path + " is writable",
			Details:  map[string]any{"path": c.Path},
		}
	}
	return buildResult(c.Name(), c.Category(), issues, 1)
}

func (c *DirectoryCheck) checkDirectory(path string) []pathIssue {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return c.checkCreatable(path)
	}
	if err != nil {
		return []pathIssue{{
			Path:     path,
			Type:     "directory",
			Problem:  fmt.Sprintf("cannot stat directory: %v", err),
			Severity: SeverityError,
		}}
	}
	if !info.IsDir() {
		return []pathIssue{{
			Path:     path,
			Type:     "directory",
			Problem:  "expected directory but found file",
			Severity: SeverityError,
		}}
	}

	var issues []pathIssue
	if !isDirectoryWritable(path) {
		issues = append(issues, pathIssue{
			Path:        path,
			Type:        "directory",
			Problem:     "directory is not writable",
			Severity:    SeverityError,
			Permissions: formatPermissions(info.Mode()),
			FixHint:     "chmod u+w " + path,
		})
	}
	if info.Mode().Perm()&0o002 != 0 {
		issues = append(issues, pathIssue{
			Path:        path,
			Type:        "directory",
			Problem:     "directory is world-writable (security risk)",
			Severity:    SeverityWarning,
			Permissions: formatPermissions(info.Mode()),
			Fixable:     true,
			FixHint:     "chmod 700 " + path,
		})
	}
	return issues
}

// checkCreatable walks up to the nearest existing ancestor and reports
// whether the missing directory could be created under it.
func (c *DirectoryCheck) checkCreatable(path string) []pathIssue {
	parent := filepath.Dir(path)
	for {
		info, err := os.Stat(parent)
		if err == nil {
			if info.IsDir() && isDirectoryWritable(parent) {
				return []pathIssue{{
					Path:     path,
					Type:     "directory",
					Problem:  "does not exist yet, will be created",
					Severity: SeverityInfo,
				}}
			}
			return []pathIssue{{
				Path:     path,
				Type:     "directory",
				Problem:  "cannot be created, " + parent + " is not writable",
				Severity: SeverityError,
				FixHint:  "mkdir -p " + path,
			}}
		}
		next := filepath.Dir(parent)
		if next == parent {
			return []pathIssue{{
				Path:     path,
				Type:     "directory",
				Problem:  fmt.Sprintf("no existing parent directory: %v", err),
				Severity: SeverityError,
			}}
		}
		parent = next
	}
}

// isDirectoryWritable tests if a directory is writable by creating a temp file.
func isDirectoryWritable(path string) bool {
	tmpFile, err := os.CreateTemp(path, ".dotsave-doctor-*")
	if err != nil {
		return false
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	os.Remove(tmpPath)
	return true
}

// OutputPermissionCheck flags previous outputs that other users can read.
// Archives hold private configuration and should be 0600, staged
// directories 0700.
type OutputPermissionCheck struct {
	PermissionFixer

	Destination string
	BaseName    string
}

var _ Check = (*OutputPermissionCheck)(nil)
var _ Fixer = (*OutputPermissionCheck)(nil)

// Name returns the unique identifier for this check.
func (c *OutputPermissionCheck) Name() string {
	return "output-permissions"
}

// Category returns the grouping for this check.
func (c *OutputPermissionCheck) Category() string {
	return "filesystem"
}

// Run executes the permission check over every listed output.
func (c *OutputPermissionCheck) Run(_ context.Context) *CheckResult {
	outputs, err := backup.List(c.Destination, c.BaseName)
	if err != nil {
		c.setIssues(nil)
		if errors.Is(err, backup.ErrNoOutputs) {
			return &CheckResult{
				Name:     c.Name(),
				Category: c.Category(),
				Status:   SeverityInfo,
				Message:  "no previous backups in " + c.Destination,
			}
		}
		return &CheckResult{
			Name:     c.Name(),
			Category: c.Category(),
			Status:   SeverityWarning,
			Message:  fmt.Sprintf("cannot list backups: %v", err),
		}
	}

	var issues []pathIssue
	for _, out := range outputs {
		info, err := os.Stat(out.Path)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o077 == 0 {
			continue
		}
		issue := pathIssue{
			Path:        out.Path,
			Severity:    SeverityWarning,
			Permissions: formatPermissions(info.Mode()),
			Fixable:     true,
		}
		if out.Archive {
			issue.Type = "file"
			issue.Problem = "archive is accessible by other users"
			issue.FixHint = "chmod 600 " + out.Path
		} else {
			issue.Type = "directory"
			issue.Problem = "backup directory is accessible by other users"
			issue.FixHint = "chmod 700 " + out.Path
		}
		issues = append(issues, issue)
	}
	c.setIssues(issues)

	if len(issues) == 0 {
		return &CheckResult{
			Name:     c.Name(),
			Category: c.Category(),
			Status:   SeverityPass,
			Message:  fmt.Sprintf("all %d backups are private", len(outputs)),
		}
	}
	return buildResult(c.Name(), c.Category(), issues, len(outputs))
}

// ElevationCheck reports whether privileged items and collectors can run.
type ElevationCheck struct {
	Elevator *backup.Elevator
	// Privileged is the number of configured privileged items that exist.
	Privileged int
	// Collectors is true when a privileged collector is enabled.
	Collectors bool
}

var _ Check = (*ElevationCheck)(nil)

// Name returns the unique identifier for this check.
func (c *ElevationCheck) Name() string {
	return "elevation"
}

// Category returns the grouping for this check.
func (c *ElevationCheck) Category() string {
	return "privileges"
}

// Run checks elevation the same way a backup run does.
func (c *ElevationCheck) Run(ctx context.Context) *CheckResult {
	result := &CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
		Details: map[string]any{
			"privileged_items":      c.Privileged,
			"privileged_collectors": c.Collectors,
		},
	}

	elev := c.Elevator.Check(ctx)
	switch {
	case elev.Root:
		result.Status = SeverityPass
		result.Message = "running as root"
	case elev.Available:
		result.Status = SeverityPass
		result.Message = "elevation available via " + strings.Join(elev.Prefix, " ")
	case c.Privileged > 0 || c.Collectors:
		result.Status = SeverityWarning
		result.Message = fmt.Sprintf("elevation unavailable, %d privileged items and root collectors will be skipped", c.Privileged)
		result.FixHint = "run dotsave with sudo, or set elevation.interactive: true"
	default:
		result.Status = SeverityInfo
		result.Message = "elevation unavailable, nothing configured needs it"
	}
	return result
}

// ConfigCheck reports the outcome of loading the configuration file.
type ConfigCheck struct {
	// Path is the file that was read, empty when defaults were used.
	Path string
	Err  error
}

var _ Check = (*ConfigCheck)(nil)

// Name returns the unique identifier for this check.
func (c *ConfigCheck) Name() string {
	return "config"
}

// Category returns the grouping for this check.
func (c *ConfigCheck) Category() string {
	return "config"
}

// Run reports the load result.
func (c *ConfigCheck) Run(_ context.Context) *CheckResult {
	result := &CheckResult{
		Name:     c.Name(),
		Category: c.Category(),
	}
	if c.Err != nil {
		problems := strings.Split(c.Err.Error(), "\n")
		result.Status = SeverityError
		result.Message = fmt.Sprintf("configuration is invalid (%d problems)", len(problems))
		result.Details = map[string]any{"errors": problems}
		if c.Path != "" {
			result.Details["path"] = c.Path
		}
		result.FixHint = "dotsave config edit"
		return result
	}
	if c.Path == "" {
		result.Status = SeverityInfo
		result.Message = "no config file found, using defaults"
		result.FixHint = "dotsave config init"
		return result
	}
	result.Status = SeverityPass
	result.Message = "configuration is valid"
	result.Details = map[string]any{"path": c.Path}
	return result
}

// buildResult constructs the final CheckResult from accumulated issues.
func buildResult(name, category string, issues []pathIssue, checked int) *CheckResult {
	highest := SeverityPass
	for _, issue := range issues {
		highest = max(highest, issue.Severity)
	}

	issueDetails := make([]map[string]any, 0, len(issues))
	for _, issue := range issues {
		issueMap := map[string]any{
			"path":     issue.Path,
			"type":     issue.Type,
			"problem":  issue.Problem,
			"severity": issue.Severity.String(),
		}
		if issue.Permissions != "" {
			issueMap["permissions"] = issue.Permissions
		}
		if issue.FixHint != "" {
			issueMap["fix_hint"] = issue.FixHint
		}
		issueDetails = append(issueDetails, issueMap)
	}

	var fixHints []string
	fixable := false
	for _, issue := range issues {
		if issue.Fixable {
			fixable = true
		}
		if issue.FixHint != "" {
			fixHints = append(fixHints, issue.FixHint)
		}
	}

	message := fmt.Sprintf("%s: %s", issues[0].Path, issues[0].Problem)
	if len(issues) > 1 {
		message = fmt.Sprintf("found %d issue(s) across %d paths", len(issues), checked)
	}

	return &CheckResult{
		Name:     name,
		Category: category,
		Status:   highest,
		Message:  message,
		Details: map[string]any{
			"checked_paths": checked,
			"issue_count":   len(issues),
			"issues":        issueDetails,
		},
		Fixable: fixable,
		FixHint: strings.Join(fixHints, "; "),
	}
}

// formatPermissions returns a human-readable permission string (e.g., "0644").
func formatPermissions(mode os.FileMode) string {
	return fmt.Sprintf("%04o", mode.Perm())
}
