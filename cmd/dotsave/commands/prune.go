package commands

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/thoreinstein/dotsave/internal/backup"
	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/logging"
	"github.com/thoreinstein/dotsave/internal/system"
)

var (
	pruneKeep   int
	pruneDryRun bool
)

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 0,
		"number of newest backups to keep (default: keep from config)")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false,
		"show what would be removed without removing")
	rootCmd.AddCommand(pruneCmd)
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old backups",
	Long: `Remove all but the newest N backups from the destination directory.

N comes from --keep, or from the keep setting when the flag is not given.
Staged directories may contain files owned by root; they are removed with
elevation when plain removal is not permitted.`,
	Example: `  # Keep the five newest backups
  dotsave prune --keep 5

  # Preview
  dotsave prune --keep 5 --dry-run

  See Also: dotsave list`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

func runPrune(cmd *cobra.Command, _ []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}

	keep := cfg.Keep
	if cmd.Flags().Changed("keep") {
		keep = pruneKeep
	}
	if keep < 1 {
		return dotsaveerrors.NewUserError(
			errors.Newf("keep must be at least 1, got %d", keep),
			"Pass --keep N or set keep in the configuration")
	}

	w := cmd.OutOrStdout()
	ctx := cmd.Context()
	var remove func(context.Context, string, bool) error
	if pruneDryRun {
		remove = func(context.Context, string, bool) error { return nil }
	} else {
		runner := system.NewExec(cfg.CommandTimeout)
		elevator := backup.NewElevator(runner, cfg.Elevation.Command, cfg.Elevation.Interactive)
		remove = backup.ElevatedRemover(runner, elevator, logging.FromContext(ctx))
	}

	removed, err := backup.Prune(ctx, cfg.DestinationDirectory, cfg.ArchiveBaseName, keep, remove)
	verb := "Removed"
	if pruneDryRun {
		verb = "Would remove"
	}
	for _, o := range removed {
		fmt.Fprintf(w, "%s %s\n", verb, o.Name)
	}
	if err != nil {
		return dotsaveerrors.NewSystemError(errors.Wrap(err, "pruning backups"), "")
	}
	if len(removed) == 0 {
		fmt.Fprintf(w, "Nothing to prune, %d or fewer backups present\n", keep)
	}
	return nil
}
