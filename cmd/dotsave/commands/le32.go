package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/le32"
)

var le32Format string

func init() {
	le32Cmd.Flags().StringVarP(&le32Format, "format", "f", le32.FormatEscaped,
		"output format: escaped, hex, raw")
	rootCmd.AddCommand(le32Cmd)
}

var le32Cmd = &cobra.Command{
	Use:   "le32 <value>",
	Short: "Encode a number as 32-bit little-endian bytes",
	Long: `Encode a decimal or 0x-prefixed hexadecimal number as four
little-endian bytes.

Negative values are encoded as two's complement. Put "--" before a negative
value so it is not read as a flag. The raw format writes the bytes without a
trailing newline.`,
	Example: `  dotsave le32 42
  dotsave le32 0xdeadbeef --format hex
  dotsave le32 -- -1
  dotsave le32 1000 --format raw > value.bin`,
	Args: cobra.ExactArgs(1),
	RunE: runLE32,
}

func runLE32(cmd *cobra.Command, args []string) error {
	v, err := le32.Parse(args[0])
	if err != nil {
		return errors.NewUserError(err, "Pass a value between -2147483648 and 4294967295")
	}
	out, err := le32.Format(le32.Encode(v), le32Format)
	if err != nil {
		return errors.NewUserError(err, "Use --format escaped, hex or raw")
	}

	w := cmd.OutOrStdout()
	if le32Format == le32.FormatRaw {
		_, err = w.Write(out)
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}
