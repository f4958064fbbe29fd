package backup

import (
	"log/slog"
	"os"

	"github.com/thoreinstein/dotsave/internal/paths"
)

// Enumerate resolves list against home and splits it into items that
// currently exist and items that do not, keeping input order. An entry that
// cannot be inspected for a reason other than absence (for example a root-only
// parent directory) counts as present so the transfer can try it.
func Enumerate(list []string, kind Kind, home string) (present, missing []Item) {
	for _, entry := range list {
		item := Item{Source: paths.ResolveItem(entry, home), Kind: kind}
		if exists(item.Source) {
			present = append(present, item)
		} else {
			missing = append(missing, item)
		}
	}
	return present, missing
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !os.IsNotExist(err)
}

func missingResults(logger *slog.Logger, items []Item) []ItemResult {
	results := make([]ItemResult, 0, len(items))
	for _, item := range items {
		logger.Info("skipping missing item", "item", item.Name(), "path", item.Source, "kind", item.Kind)
		results = append(results, ItemResult{Source: item.Source, Kind: item.Kind, Status: StatusSkippedMissing})
	}
	return results
}
