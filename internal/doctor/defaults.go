package doctor

import (
	"os"

	"github.com/thoreinstein/dotsave/internal/backup"
	"github.com/thoreinstein/dotsave/internal/config"
	"github.com/thoreinstein/dotsave/internal/system"
)

// sbinDirs hold administrative tools missing from an unprivileged PATH.
var sbinDirs = []string{"/usr/sbin", "/sbin", "/usr/local/sbin"}

// Environment is what the default checks inspect.
type Environment struct {
	// Config is nil when loading failed; ConfigErr then says why.
	Config     *config.Config
	ConfigPath string
	ConfigErr  error
	Runner     system.Runner
	Elevator   *backup.Elevator
	Home       string
}

// DefaultChecks returns the checks for env in display order. When the
// configuration could not be loaded only the config check and the
// configuration-independent tool checks are returned.
func DefaultChecks(env Environment) []Check {
	checks := []Check{&ConfigCheck{Path: env.ConfigPath, Err: env.ConfigErr}}

	cfg := env.Config
	if cfg == nil {
		return append(checks,
			&ToolCheck{Tools: []string{"rsync"}, Purpose: "mirroring with excludes", Runner: env.Runner},
			&ToolCheck{Tools: []string{"sudo"}, Purpose: "privileged items", Runner: env.Runner},
		)
	}

	checks = append(checks,
		&ToolCheck{
			Tools:    []string{"rsync"},
			Required: cfg.TransferBackend == config.BackendRsync,
			Purpose:  "mirroring with excludes",
			Runner:   env.Runner,
		},
		&ToolCheck{
			Tools:    []string{"tar"},
			Required: cfg.CreateArchive && len(cfg.PrivilegedItems) > 0,
			Purpose:  "packing root-owned staged files",
			Runner:   env.Runner,
		},
		&ToolCheck{
			Tools:   []string{cfg.Elevation.Command},
			Purpose: "privileged items",
			Runner:  env.Runner,
		},
	)

	c := cfg.Collectors
	if c.Crontab || c.RootCrontab {
		checks = append(checks, &ToolCheck{Tools: []string{"crontab"}, Purpose: "crontab export", Runner: env.Runner})
	}
	if c.Packages {
		checks = append(checks, &ToolCheck{
			Label:   "package-manager",
			Tools:   []string{"dpkg-query", "dnf", "pacman", "zypper", "rpm"},
			Purpose: "package lists",
			Runner:  env.Runner,
		})
	}
	if c.Dconf {
		checks = append(checks, &ToolCheck{Tools: []string{"dconf"}, Purpose: "desktop settings export", Runner: env.Runner})
	}
	if c.Firewall {
		checks = append(checks, &ToolCheck{Tools: []string{"ufw"}, Purpose: "firewall rules export", Runner: env.Runner, Dirs: sbinDirs})
	}

	present, _ := backup.Enumerate(cfg.PrivilegedItems, backup.Privileged, env.Home)
	checks = append(checks,
		&ElevationCheck{
			Elevator:   env.Elevator,
			Privileged: len(present),
			Collectors: c.RootCrontab || c.Firewall,
		},
		&DirectoryCheck{Label: "destination", Path: cfg.DestinationDirectory},
	)
	if cfg.CreateArchive {
		staging := cfg.StagingParent
		if staging == "" {
			staging = os.TempDir()
		}
		checks = append(checks, &DirectoryCheck{Label: "staging", Path: staging})
	}
	checks = append(checks, &OutputPermissionCheck{
		Destination: cfg.DestinationDirectory,
		BaseName:    cfg.ArchiveBaseName,
	})
	return checks
}
