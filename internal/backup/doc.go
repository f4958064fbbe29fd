// Package backup implements a dotsave run: it copies configured user and
// system configuration into a staging directory, captures auxiliary state
// (crontabs, shell history, package lists, desktop settings, firewall rules)
// and packs the result into a single compressed archive.
//
// # Tiers
//
// A run processes three static item lists in order, then the collectors:
//
//   - rsync-style items are mirrored with the global exclude set applied
//   - direct-copy items are copied as-is
//   - privileged items are copied with attributes preserved, only when
//     elevation is available (see [Gate])
//
// Items are resolved against the invoking user's home directory and checked
// for existence with os.Lstat; missing items are skipped, not errors.
// A failed item is logged and recorded in the [Report]; it never stops the
// run. Only infrastructure failures (destination not writable, packaging
// failure, unknown archive format) end a run early, as *errors.ExitError.
//
// # Stage layout
//
//	{stage}/
//	├── home/<path relative to home>   rsync-style and direct-copy items
//	├── system/<absolute path>         privileged and non-home items
//	├── crontab/ history/ packages/ desktop/ firewall/
//	├── privileged.skipped             when elevation was unavailable
//	└── report.yaml
//
// # Finalizing
//
// With create_archive the stage is a temporary directory removed exactly once
// when the run ends, whichever way it ends. The archive is written next to
// its final name and renamed into place only when complete, so an archive
// named {base}-{timestamp}.tar.gz (or .tar.xz) is always a full run. Without
// create_archive the stage is {destination}/{base}-{timestamp} and is kept.
//
// # Retention
//
// [List] finds previous outputs by name and [Prune] removes all but the
// newest N of them.
package backup
