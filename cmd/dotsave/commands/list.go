package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thoreinstein/dotsave/internal/backup"
	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
)

var listJSON bool

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List previous backups",
	Long: `List the backups in the destination directory, newest first.

Archives and staged directories named {archive_base_name}-{timestamp} are
listed. Staged directories show the summary recorded in their report.`,
	Example: `  # List backups
  dotsave list

  # Output as JSON
  dotsave list --json

  See Also:
    dotsave prune - Remove old backups
    dotsave run   - Create a new backup`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	return listOutputs(cmd.OutOrStdout(), cfg.DestinationDirectory, cfg.ArchiveBaseName, listJSON)
}

func listOutputs(w io.Writer, dest, base string, asJSON bool) error {
	outputs, err := backup.List(dest, base)
	if err != nil && !errors.Is(err, backup.ErrNoOutputs) {
		return dotsaveerrors.NewSystemError(errors.Wrapf(err, "listing backups in %s", dest), "")
	}
	if outputs == nil {
		outputs = []backup.Output{}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outputs)
	}

	if len(outputs) == 0 {
		fmt.Fprintf(w, "No backups in %s\n", dest)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Create one with: dotsave run")
		return nil
	}

	bold := color.New(color.Bold).SprintFunc()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", bold("NAME"), bold("CREATED"), bold("TYPE"), bold("SIZE"), bold("STATUS"))
	for _, o := range outputs {
		kind, size := "directory", "-"
		if o.Archive {
			kind, size = "archive", backup.HumanSize(o.Size)
		}
		status := o.Status
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			color.GreenString(o.Name),
			o.Time.Format("2006-01-02 15:04:05"),
			kind, size, status)
	}
	return tw.Flush()
}
