package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/thoreinstein/dotsave/internal/cli/prompt"
	"github.com/thoreinstein/dotsave/internal/config"
	"github.com/thoreinstein/dotsave/internal/editor"
	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/paths"
	"github.com/thoreinstein/dotsave/pkg/fileutil"
)

var (
	configShowFormat  string
	configInitProfile string
	configInitForce   bool
)

func init() {
	configShowCmd.Flags().StringVarP(&configShowFormat, "format", "f", "yaml",
		"output format: yaml, toml, json")
	configInitCmd.Flags().StringVar(&configInitProfile, "profile", "",
		"profile to start from: "+strings.Join(config.ProfileNames(), ", "))
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false,
		"overwrite an existing config file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage dotsave configuration",
	Long: `Manage dotsave configuration stored in ~/.config/dotsave/config.yaml.

Without a subcommand, shows the effective configuration: the file merged
with defaults, with empty item lists filled from the profile.`,
	Example: `  # Show the effective configuration
  dotsave config

  # Write a starter file for a server
  dotsave config init --profile server

  # Get a specific value
  dotsave config get destination_directory

See Also: dotsave doctor`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Show the effective configuration in YAML, TOML or JSON.`,
	Example: `  dotsave config show
  dotsave config show --format toml

See Also: dotsave config get`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a configuration file with every setting and the item lists of a
profile spelled out, ready to edit.

Without --profile, the profile is chosen interactively when stdin is a
terminal, and defaults to desktop otherwise.`,
	Example: `  # Start from the server profile
  dotsave config init --profile server

  # Replace an existing file
  dotsave config init --force

See Also: dotsave config edit`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Get a single effective configuration value by key.

Supports dot notation for nested keys. List values are printed one per line.`,
	Example: `  dotsave config get archive_format
  dotsave config get collectors.firewall
  dotsave config get privileged_items

See Also: dotsave config show`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open configuration in $EDITOR",
	Long: `Open the configuration file in your default editor and validate it
afterwards.

Uses $EDITOR, then $VISUAL, then nano or vi.`,
	Example: `  dotsave config edit
  EDITOR=nano dotsave config edit

See Also: dotsave config init`,
	Args: cobra.NoArgs,
	RunE: runConfigEdit,
}

// configMap converts cfg to the generic form the renderers share, keyed by
// the configuration file's names.
func configMap(cfg *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling config")
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "converting config")
	}
	return m, nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	return renderConfig(cmd.OutOrStdout(), cfg, configShowFormat)
}

func renderConfig(w io.Writer, cfg *config.Config, format string) error {
	var data []byte
	var err error
	switch format {
	case "yaml", "":
		data, err = yaml.Marshal(cfg)
	case "toml", "json":
		var m map[string]any
		if m, err = configMap(cfg); err != nil {
			return err
		}
		if format == "toml" {
			data, err = toml.Marshal(m)
		} else {
			data, err = json.MarshalIndent(m, "", "  ")
			data = append(data, '\n')
		}
	default:
		return dotsaveerrors.NewUserError(errors.Newf("unknown format %q", format), "Use --format yaml, toml or json")
	}
	if err != nil {
		return errors.Wrapf(err, "rendering %s", format)
	}
	_, err = w.Write(data)
	return err
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	m, err := configMap(cfg)
	if err != nil {
		return err
	}

	val, ok := lookupKey(m, args[0])
	if !ok {
		return dotsaveerrors.NewUserError(errors.Wrapf(dotsaveerrors.ErrNotFound, "config key %q", args[0]),
			"Run 'dotsave config show' to list keys")
	}

	w := cmd.OutOrStdout()
	switch v := val.(type) {
	case []any:
		// List values - print one per line
		for _, item := range v {
			fmt.Fprintln(w, item)
		}
	case map[string]any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "marshaling value")
		}
		fmt.Fprint(w, string(data))
	default:
		fmt.Fprintln(w, v)
	}
	return nil
}

// lookupKey resolves a dotted key in m.
func lookupKey(m map[string]any, key string) (any, bool) {
	var cur any = m
	for part := range strings.SplitSeq(key, ".") {
		node, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = node[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// targetConfigPath is where init writes and edit opens: --config, else the
// file that was loaded, else the default location.
func targetConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if used := config.ConfigFileUsed(); used != "" {
		return used
	}
	return paths.ConfigFile()
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := targetConfigPath()
	if _, err := os.Stat(path); err == nil && !configInitForce {
		return dotsaveerrors.NewUserError(errors.Newf("config file already exists at %s", path),
			"Use --force to overwrite, or 'dotsave config edit'")
	}

	profile := configInitProfile
	if profile == "" {
		var err error
		if profile, err = chooseProfile(prompt.NewPrompter()); err != nil {
			return err
		}
	}
	if _, ok := config.LookupProfile(profile); !ok {
		return dotsaveerrors.NewUserError(errors.Wrapf(config.ErrUnknownProfile, "%q", profile),
			"Valid profiles: "+strings.Join(config.ProfileNames(), ", "))
	}

	cfg, err := config.Default(profile)
	if err != nil {
		return dotsaveerrors.NewSystemError(err, "")
	}
	if err := writeConfigFile(path, cfg); err != nil {
		return dotsaveerrors.NewSystemError(err, "Check that the config directory is writable")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (profile %s)\n", path, profile)
	return nil
}

// chooseProfile asks for a profile when a prompter with a finder is
// available, and defaults to desktop otherwise.
func chooseProfile(p *prompt.Prompter) (string, error) {
	if p.Finder == nil {
		return config.ProfileDesktop, nil
	}
	names := config.ProfileNames()
	options := make([]prompt.Option, len(names))
	def := 0
	for i, name := range names {
		prof, _ := config.LookupProfile(name)
		options[i] = prompt.Option{Name: name, Description: prof.Description}
		if name == config.ProfileDesktop {
			def = i
		}
	}
	idx, err := p.Select("Profile", options, def)
	if err != nil {
		return "", dotsaveerrors.NewUserError(err, "Pass --profile to skip the prompt")
	}
	return names[idx], nil
}

// writeConfigFile writes cfg with the home directory folded back to "~"
// so the file stays portable between users.
func writeConfigFile(path string, cfg *config.Config) error {
	out := *cfg
	if home := paths.Home(); home != "" {
		out.DestinationDirectory = collapseHome(out.DestinationDirectory, home)
	}
	if err := paths.EnsureDir(filepath.Dir(path), paths.DefaultDirPerm); err != nil {
		return errors.Wrap(err, "creating config directory")
	}
	return fileutil.AtomicWriteYAML(path, &out)
}

func collapseHome(path, home string) string {
	if path == home {
		return "~"
	}
	if rest, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return "~/" + rest
	}
	return path
}

func runConfigEdit(cmd *cobra.Command, _ []string) error {
	path := targetConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return dotsaveerrors.NewUserError(errors.Newf("config file not found at %s", path),
			"Run 'dotsave config init' to create it")
	}

	if err := editor.Open(path); err != nil {
		return dotsaveerrors.NewSystemError(err, "Set $EDITOR to your preferred editor")
	}

	v := viper.New()
	config.SetDefaults(v)
	if _, err := config.LoadFrom(v, path); err != nil {
		return dotsaveerrors.NewConfigError(errors.Wrapf(err, "%s", path))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", path)
	return nil
}
