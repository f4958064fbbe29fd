package commands

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thoreinstein/dotsave/internal/backup"
	"github.com/thoreinstein/dotsave/internal/config"
	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/logging"
)

var (
	runDest     string
	runFormat   string
	runNoArch   bool
	runNoNotify bool
	runKeep     int
)

func init() {
	// The overrides apply to the root command too, so plain "dotsave"
	// accepts them.
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().StringVarP(&runDest, "dest", "d", "",
			"destination directory (overrides destination_directory)")
		c.Flags().StringVar(&runFormat, "format", "",
			"archive format: gzip, xz (overrides archive_format)")
		c.Flags().BoolVar(&runNoArch, "no-archive", false,
			"keep a staged directory instead of creating an archive")
		c.Flags().BoolVar(&runNoNotify, "no-notify", false,
			"do not open the output location when done")
		c.Flags().IntVar(&runKeep, "keep", 0,
			"keep only the newest N backups after this run (overrides keep)")
	}
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Create a backup",
	Long: `Create a backup of the configured items.

Items are processed in three tiers: rsync-style items are mirrored with the
exclude patterns applied, direct-copy items are copied as-is, and privileged
items are copied with ownership preserved when elevation is available.
Crontabs, shell history, package lists, dconf settings and firewall rules are
captured afterwards. A failed item is reported and never stops the run.

Exit codes:
  0 - Backup written (individual items may have failed, see the summary)
  1 - Configuration error
  2 - Destination, staging or packaging failure, or interrupted`,
	Example: `  # Back up with the configured defaults
  dotsave run

  # Write an xz archive to an external disk and keep the last 3
  dotsave run --dest /media/usb/backups --format xz --keep 3

  See Also: dotsave list, dotsave prune`,
	Args: cobra.NoArgs,
	RunE: runBackup,
}

func runBackup(cmd *cobra.Command, _ []string) error {
	loaded, err := requireConfig()
	if err != nil {
		return err
	}
	cfg, err := applyRunOverrides(cmd, *loaded)
	if err != nil {
		return err
	}

	logger := logging.FromContext(cmd.Context())
	report, err := backup.New(cfg, backup.WithLogger(logger)).Run(cmd.Context())
	if err != nil {
		return err
	}
	if !quiet {
		printRunSummary(cmd.OutOrStdout(), report)
	}
	return nil
}

// applyRunOverrides copies cfg with the command line overrides applied.
func applyRunOverrides(cmd *cobra.Command, cfg config.Config) (*config.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("dest") {
		cfg.DestinationDirectory = runDest
	}
	if flags.Changed("format") {
		if config.ArchiveExtension(runFormat) == "" {
			return nil, dotsaveerrors.NewUserError(
				errors.Wrapf(dotsaveerrors.ErrUnsupportedFormat, "%q", runFormat),
				"Use --format gzip or --format xz")
		}
		cfg.ArchiveFormat = runFormat
	}
	if flags.Changed("no-archive") {
		cfg.CreateArchive = !runNoArch
	}
	if flags.Changed("no-notify") {
		cfg.Notify = !runNoNotify
	}
	if flags.Changed("keep") {
		if runKeep < 0 {
			return nil, dotsaveerrors.NewUserError(errors.Newf("--keep must not be negative, got %d", runKeep), "")
		}
		cfg.Keep = runKeep
	}
	return &cfg, nil
}

func printRunSummary(w io.Writer, r *backup.Report) {
	mark := color.New(color.FgGreen, color.Bold).Sprint("✓")
	if r.Succeeded() < r.Attempted {
		mark = color.New(color.FgYellow, color.Bold).Sprint("⚠")
	}
	fmt.Fprintf(w, "%s %s\n", mark, r.StatusLine())

	counts := r.ItemCounts()
	if n := counts[backup.StatusFailed]; n > 0 {
		fmt.Fprintf(w, "  %d failed:\n", n)
		for _, it := range r.Items {
			if it.Status == backup.StatusFailed {
				fmt.Fprintf(w, "    %s: %s\n", it.Source, it.Error)
			}
		}
	}
	if n := counts[backup.StatusSkippedMissing]; n > 0 {
		fmt.Fprintf(w, "  %d configured items not present\n", n)
	}
	if r.PrivilegedTier == backup.TierSkipped {
		fmt.Fprintln(w, color.YellowString("  privileged items skipped: elevation unavailable"))
	}
	for _, c := range r.Collectors {
		if c.Status == backup.StatusFailed {
			fmt.Fprintf(w, "  collector %s failed: %s\n", c.Name, c.Error)
		}
	}

	size := ""
	if r.Archive {
		size = " (" + backup.HumanSize(r.ArchiveSize) + ")"
	}
	fmt.Fprintf(w, "Backup: %s%s\n", color.CyanString(r.Output), size)
}
