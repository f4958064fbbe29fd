package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/token"
)

var (
	tokenBytes    int
	tokenEncoding string
)

func init() {
	tokenCmd.Flags().IntVarP(&tokenBytes, "bytes", "n", token.DefaultBytes,
		"number of random bytes")
	tokenCmd.Flags().StringVarP(&tokenEncoding, "encoding", "e", token.EncodingHex,
		"output encoding: "+strings.Join(token.Encodings(), ", "))
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a random secret token",
	Long: `Print a token drawn from the system's cryptographic random source.

Useful for API keys and passwords that end up in backed-up configuration.`,
	Example: `  # 32 random bytes as hex
  dotsave token

  # 48 bytes, URL-safe base64
  dotsave token -n 48 -e base64url`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func runToken(cmd *cobra.Command, _ []string) error {
	tok, err := token.Generate(tokenBytes, tokenEncoding)
	if err != nil {
		return errors.NewUserError(err,
			fmt.Sprintf("Use --bytes between 1 and %d and --encoding %s", token.MaxBytes, strings.Join(token.Encodings(), ", ")))
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
