package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/paths"
)

var (
	genDocDir    string
	genDocFormat string
)

var genDocCmd = &cobra.Command{
	Use:     "gen-doc",
	Aliases: []string{"gendoc"},
	Short:   "Generate documentation for the CLI",
	Hidden:  true,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if genDocDir == "" {
			return dotsaveerrors.NewUserError(errors.New("output directory is required"), "Pass --dir")
		}
		if err := paths.EnsureDir(genDocDir, 0o755); err != nil {
			return errors.Wrap(err, "creating output directory")
		}

		switch genDocFormat {
		case "markdown", "md":
			if err := doc.GenMarkdownTreeCustom(rootCmd, genDocDir, filePrepender, linkHandler); err != nil {
				return errors.Wrap(err, "generating markdown")
			}
		case "man":
			header := &doc.GenManHeader{Title: "DOTSAVE", Section: "1", Source: "dotsave"}
			if err := doc.GenManTree(rootCmd, header, genDocDir); err != nil {
				return errors.Wrap(err, "generating man pages")
			}
		default:
			return dotsaveerrors.NewUserError(errors.Wrapf(dotsaveerrors.ErrUnsupportedFormat, "%q", genDocFormat),
				"Use --format markdown or --format man")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Documentation generated in %s\n", genDocDir)
		return nil
	},
}

func init() {
	genDocCmd.Flags().StringVarP(&genDocDir, "dir", "d", "", "output directory for documentation")
	genDocCmd.Flags().StringVar(&genDocFormat, "format", "markdown", "output format: markdown, man")
	rootCmd.AddCommand(genDocCmd)
}

func filePrepender(filename string) string {
	name := filepath.Base(filename)
	base := strings.TrimSuffix(name, filepath.Ext(name))
	// dotsave_config_init.md -> dotsave config init
	title := strings.ReplaceAll(base, "_", " ")

	return fmt.Sprintf(`---
title: "%s"
description: "Reference for %s command"
draft: false
toc: true
---
`, title, title)
}

func linkHandler(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return "/docs/reference/" + strings.ToLower(base) + "/"
}
