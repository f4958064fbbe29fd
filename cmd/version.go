// Package cmd holds the dotsave build metadata, set at link time with
// -ldflags "-X github.com/thoreinstein/dotsave/cmd.Version=...".
package cmd

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"
	// Commit is the source revision.
	Commit = "none"
	// Date is when the binary was built.
	Date = "unknown"
)
