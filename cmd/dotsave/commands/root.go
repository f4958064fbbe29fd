// Package commands implements the CLI commands for dotsave.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/thoreinstein/dotsave/cmd"
	"github.com/thoreinstein/dotsave/internal/config"
	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/logging"
)

// configPath holds the value of the --config flag.
var configPath string

// verbosity holds the count of -v flags.
var verbosity int

// quiet holds the value of the -q/--quiet flag.
var quiet bool

// logFormat holds the value of the --log-format flag.
var logFormat string

// logFile holds the path to the log file.
var logFile string

// logFileHandle is closed by Execute.
var logFileHandle *os.File

// loadedConfig and configLoadErr hold the result of loading the
// configuration before any command runs.
var (
	loadedConfig  *config.Config
	configLoadErr error
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default: $XDG_CONFIG_HOME/dotsave/config.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"increase verbosity level (e.g., -v, -vv)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text",
		"log format: text, json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"also write logs to file in JSON format")

	rootCmd.Version = cmd.Version
	rootCmd.SetVersionTemplate("dotsave version {{.Version}}\n")

	// Silence errors and usage so we can control error output
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

func initConfig() {
	config.Init()
	loadedConfig, configLoadErr = config.Load(configPath)
}

var rootCmd = &cobra.Command{
	Use:   "dotsave",
	Short: "Back up Linux configuration, dotfiles and system settings",
	Long: `dotsave copies a curated set of dotfiles, user configuration and system
files into a timestamped backup, captures crontabs, shell history, package
lists, desktop settings and firewall rules, and packs the result into a
single compressed archive.

Running dotsave without a subcommand performs a backup, the same as
'dotsave run'. System files are copied only when elevation is available:
run with sudo, or allow passwordless sudo for the current user.`,
	Example: `  # Back up with the configured defaults
  dotsave

  # Back up into a staged directory instead of an archive
  dotsave run --no-archive

  # List and prune previous backups
  dotsave list
  dotsave prune --keep 5

  # Check the installation
  dotsave doctor

  See Also: dotsave config, dotsave doctor`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupLogging(cmd)
	},
	RunE: runBackup,
}

// setupLogging configures the default logger based on verbosity flags.
func setupLogging(cmd *cobra.Command) error {
	if quiet && verbosity > 0 {
		return dotsaveerrors.NewUserError(errors.New("--quiet and --verbose are mutually exclusive"),
			"Use either --quiet or --verbose")
	}
	format, err := logging.ParseFormat(logFormat)
	if err != nil {
		return dotsaveerrors.NewUserError(err, "Use --log-format text or --log-format json")
	}

	var level slog.Level
	if quiet {
		level = slog.LevelError
	} else {
		v := verbosity

		// CLI flags take precedence, but if not set, check env var
		if v == 0 {
			if val, ok := os.LookupEnv("DOTSAVE_DEBUG"); ok {
				switch val {
				case "1", "true":
					v = 1 // Debug
				case "2":
					v = 2 // Trace
				}
			}
		}
		level = logging.LevelFromVerbosity(v)
	}

	handlers := []slog.Handler{logging.NewFormatHandler(cmd.ErrOrStderr(), format, level)}

	if logFile != "" {
		if logFileHandle != nil {
			logFileHandle.Close()
			logFileHandle = nil
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return dotsaveerrors.NewUserError(errors.Wrap(err, "opening log file"), "Check the --log-file path")
		}
		logFileHandle = f
		handlers = append(handlers, logging.NewFormatHandler(f, logging.FormatJSON, level))
	}

	var handler slog.Handler
	if len(handlers) > 1 {
		handler = logging.NewMultiHandler(handlers...)
	} else {
		handler = handlers[0]
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logging.NewContext(ctx, logger))

	return nil
}

// requireConfig returns the loaded configuration or the load error as a
// configuration error.
func requireConfig() (*config.Config, error) {
	if configLoadErr != nil {
		return nil, dotsaveerrors.NewConfigError(configLoadErr)
	}
	if loadedConfig == nil {
		return nil, dotsaveerrors.NewConfigError(dotsaveerrors.ErrInvalidConfig)
	}
	return loadedConfig, nil
}

// Execute runs the root command with ctx, which is canceled on SIGINT and
// SIGTERM by main.
func Execute(ctx context.Context) error {
	defer func() {
		if logFileHandle != nil {
			logFileHandle.Close()
			logFileHandle = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

// ReportError prints err and its suggestion to w and returns the process
// exit status. An ExitError without an underlying error exits silently.
func ReportError(w io.Writer, err error) int {
	if err == nil {
		return dotsaveerrors.ExitSuccess
	}
	var exitErr *dotsaveerrors.ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return exitErr.Code
	}

	fmt.Fprintf(w, "Error: %v\n", err)
	if s := dotsaveerrors.Suggestion(err); s != "" {
		fmt.Fprintf(w, "Suggestion: %s\n", s)
	}
	for _, hint := range errors.GetAllHints(err) {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
	return dotsaveerrors.ExitCode(err)
}
