package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/thoreinstein/dotsave/internal/backup"
	"github.com/thoreinstein/dotsave/internal/config"
	"github.com/thoreinstein/dotsave/internal/doctor"
	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/paths"
	"github.com/thoreinstein/dotsave/internal/system"
)

var (
	doctorJSON    bool
	doctorQuiet   bool
	doctorVerbose bool
	doctorFix     bool
)

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false,
		"output results as JSON")
	doctorCmd.Flags().BoolVar(&doctorQuiet, "quiet", false,
		"suppress output, exit code only")
	doctorCmd.Flags().BoolVar(&doctorVerbose, "verbose", false,
		"show detailed check-by-check output")
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false,
		"make world-readable backups and directories private")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose the backup environment",
	Long: `Run diagnostic checks before a backup does.

Checks the configuration file, the external tools each tier and collector
uses, whether elevation is available for privileged items, whether the
destination and staging directories are writable, and whether previous
backups are readable by other users.

Output modes (mutually exclusive):
  (default)   Show errors and warnings
  --verbose   Show all checks including passed ones
  --quiet     No output, exit code only
  --json      Machine-readable JSON output

Exit codes:
  0 - All checks passed (no errors or warnings)
  1 - Warnings present, no errors
  2 - Errors present`,
	Args:    cobra.NoArgs,
	PreRunE: validateDoctorFlags,
	RunE:    runDoctor,
}

// validateDoctorFlags ensures output flags are mutually exclusive.
func validateDoctorFlags(_ *cobra.Command, _ []string) error {
	count := 0
	for _, set := range []bool{doctorJSON, doctorQuiet, doctorVerbose} {
		if set {
			count++
		}
	}
	if count > 1 {
		return dotsaveerrors.NewUserError(errors.New("flags --json, --quiet, and --verbose are mutually exclusive"), "")
	}
	return nil
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	env := doctor.Environment{
		Config:    loadedConfig,
		ConfigErr: configLoadErr,
		Home:      paths.Home(),
	}
	if configLoadErr == nil {
		env.ConfigPath = config.ConfigFileUsed()
	} else {
		env.ConfigPath = configPath
	}

	timeout := system.DefaultTimeout
	elevCmd, interactive := "sudo", false
	if loadedConfig != nil {
		timeout = loadedConfig.CommandTimeout
		elevCmd, interactive = loadedConfig.Elevation.Command, loadedConfig.Elevation.Interactive
	}
	env.Runner = system.NewExec(timeout)
	env.Elevator = backup.NewElevator(env.Runner, elevCmd, interactive)

	runner := doctor.NewRunner()
	for _, c := range doctor.DefaultChecks(env) {
		runner.AddCheck(c)
	}
	report := runner.Run(cmd.Context())

	w := cmd.OutOrStdout()
	if err := outputDoctorReport(w, report); err != nil {
		return err
	}

	if doctorFix {
		applyDoctorFixes(w, runner.Checks())
	}

	if report.Interrupted {
		return dotsaveerrors.NewSystemError(errors.New("doctor interrupted"), "")
	}
	// Determine exit code based on results
	if report.HasErrors() {
		return dotsaveerrors.NewExitError(nil, dotsaveerrors.ExitSystem)
	}
	if report.HasWarnings() {
		return dotsaveerrors.NewExitError(nil, dotsaveerrors.ExitUser)
	}
	return nil
}

func outputDoctorReport(w io.Writer, report *doctor.DoctorReport) error {
	if doctorQuiet {
		return nil
	}

	if doctorJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return errors.Wrap(err, "encoding JSON")
		}
		return nil
	}

	return outputDoctorText(w, report)
}

func outputDoctorText(w io.Writer, report *doctor.DoctorReport) error {
	// In normal mode, show only errors and warnings
	// In verbose mode, show all checks
	showAll := doctorVerbose

	hasOutput := false
	for _, result := range report.Results {
		if !showAll && result.Status != doctor.SeverityError && result.Status != doctor.SeverityWarning {
			continue
		}

		hasOutput = true
		fmt.Fprintf(w, "%s [%s] %s: %s\n", statusIcon(result.Status), result.Category, result.Name, result.Message)

		if result.FixHint != "" && (result.Status == doctor.SeverityError || result.Status == doctor.SeverityWarning) {
			fmt.Fprintf(w, "  hint: %s\n", result.FixHint)
		}
	}

	if hasOutput || showAll {
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Summary: %d passed, %d info, %d warnings, %d errors\n",
		report.Summary.Passed, report.Summary.Info, report.Summary.Warnings, report.Summary.Errors)

	return nil
}

// applyDoctorFixes runs every fixer with pending fixes and prints the outcome.
func applyDoctorFixes(w io.Writer, checks []doctor.Check) {
	silent := doctorQuiet || doctorJSON
	fixed := 0
	for _, c := range checks {
		f, ok := c.(doctor.Fixer)
		if !ok || !f.CanFix() {
			continue
		}
		for _, r := range f.Fix() {
			if r.Fixed {
				fixed++
				if !silent {
					fmt.Fprintf(w, "fixed %s: %s\n", r.Path, r.Description)
				}
			} else if !silent {
				fmt.Fprintf(w, "could not fix %s: %s\n", r.Path, r.Description)
			}
		}
	}
	if !silent {
		fmt.Fprintf(w, "%d issue(s) fixed\n", fixed)
	}
}

func statusIcon(s doctor.Severity) string {
	switch s {
	case doctor.SeverityPass:
		return "✓"
	case doctor.SeverityInfo:
		return "ℹ"
	case doctor.SeverityWarning:
		return "⚠"
	case doctor.SeverityError:
		return "✗"
	default:
		return "?"
	}
}
