package commands

import (
	"fmt"
	"os"
	"os/user"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/thoreinstein/dotsave/internal/cli/prompt"
	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/paths"
	"github.com/thoreinstein/dotsave/internal/sshkey"
)

var (
	sshkeyType         string
	sshkeyBits         int
	sshkeyComment      string
	sshkeyFile         string
	sshkeyForce        bool
	sshkeyNoPassphrase bool
)

func init() {
	sshkeyCmd.Flags().StringVarP(&sshkeyType, "type", "t", sshkey.TypeED25519,
		"key type: "+strings.Join(sshkey.Types(), ", "))
	sshkeyCmd.Flags().IntVarP(&sshkeyBits, "bits", "b", sshkey.DefaultRSABits,
		"RSA key size in bits")
	sshkeyCmd.Flags().StringVarP(&sshkeyComment, "comment", "C", "",
		"key comment (default: user@host)")
	sshkeyCmd.Flags().StringVarP(&sshkeyFile, "file", "f", "",
		"private key path (default: ~/.ssh/id_<type>)")
	sshkeyCmd.Flags().BoolVar(&sshkeyForce, "force", false,
		"overwrite an existing key pair")
	sshkeyCmd.Flags().BoolVar(&sshkeyNoPassphrase, "no-passphrase", false,
		"write the private key unencrypted without asking")
	rootCmd.AddCommand(sshkeyCmd)
}

var sshkeyCmd = &cobra.Command{
	Use:   "sshkey",
	Short: "Generate an SSH key pair",
	Long: `Generate an OpenSSH key pair, for example to replace a key on a fresh
machine before restoring a backup.

The private key is written with mode 0600 and the public key next to it with
a .pub suffix. Values not given as flags are asked for when stdin is a
terminal.`,
	Example: `  # ed25519 key at ~/.ssh/id_ed25519, asking for a passphrase
  dotsave sshkey

  # 4096-bit RSA key for a deploy account, unencrypted
  dotsave sshkey -t rsa -f ~/.ssh/deploy -C deploy@ci --no-passphrase`,
	Args: cobra.NoArgs,
	RunE: runSSHKey,
}

func runSSHKey(cmd *cobra.Command, _ []string) error {
	p := prompt.NewPrompter()
	interactive := p.ReadPassword != nil
	flags := cmd.Flags()

	if interactive && !flags.Changed("type") {
		t, err := chooseKeyType(p)
		if err != nil {
			return err
		}
		sshkeyType = t
	}

	opts := sshkey.Options{
		Type:    strings.ToLower(sshkeyType),
		Comment: sshkeyComment,
		Path:    sshkeyFile,
		Force:   sshkeyForce,
	}
	if opts.Type == sshkey.TypeRSA {
		if sshkeyBits < sshkey.MinRSABits {
			return dotsaveerrors.NewUserError(errors.Newf("rsa keys need at least %d bits, got %d", sshkey.MinRSABits, sshkeyBits),
				fmt.Sprintf("Use --bits %d", sshkey.DefaultRSABits))
		}
		opts.Bits = sshkeyBits
	}

	if !flags.Changed("comment") {
		opts.Comment = defaultKeyComment()
		if interactive {
			c, err := p.Ask("Comment", opts.Comment)
			if err != nil {
				return dotsaveerrors.NewUserError(err, "")
			}
			opts.Comment = c
		}
	}

	if opts.Path == "" {
		opts.Path = sshkey.DefaultPath(paths.Home(), opts.Type)
		if interactive {
			path, err := p.Ask("Save key to", opts.Path)
			if err != nil {
				return dotsaveerrors.NewUserError(err, "")
			}
			opts.Path = path
		}
	}
	opts.Path = paths.Expand(opts.Path, paths.Home())

	if !sshkeyNoPassphrase && interactive {
		pass, err := p.NewPassword("Passphrase (empty for none)")
		if err != nil {
			if errors.Is(err, prompt.ErrMismatch) {
				return dotsaveerrors.NewUserError(errors.New("passphrases do not match"), "Try again")
			}
			return dotsaveerrors.NewUserError(err, "")
		}
		opts.Passphrase = pass
	}

	res, err := sshkey.Generate(opts)
	if err != nil {
		if errors.Is(err, sshkey.ErrExists) {
			return dotsaveerrors.NewUserError(err, "Use --force to overwrite, or --file to choose another path")
		}
		if errors.Is(err, dotsaveerrors.ErrUnsupportedFormat) {
			return dotsaveerrors.NewUserError(err, "Use --type "+strings.Join(sshkey.Types(), " or --type "))
		}
		return dotsaveerrors.NewSystemError(err, "")
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s Private key: %s\n", color.GreenString("✓"), res.PrivatePath)
	fmt.Fprintf(w, "  Public key:  %s\n", res.PublicPath)
	fmt.Fprintf(w, "  Fingerprint: %s\n", res.Fingerprint)
	fmt.Fprintln(w)
	fmt.Fprint(w, res.AuthorizedKey)
	if !strings.HasSuffix(res.AuthorizedKey, "\n") {
		fmt.Fprintln(w)
	}
	return nil
}

func chooseKeyType(p *prompt.Prompter) (string, error) {
	options := []prompt.Option{
		{Name: sshkey.TypeED25519, Description: "Small and fast, supported by OpenSSH 6.5 and later"},
		{Name: sshkey.TypeRSA, Description: "For older servers that do not accept ed25519"},
	}
	idx, err := p.Select("Key type", options, 0)
	if err != nil {
		return "", dotsaveerrors.NewUserError(err, "Pass --type to skip the prompt")
	}
	return options[idx].Name, nil
}

// defaultKeyComment is user@host, or whichever half is known.
func defaultKeyComment() string {
	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	host, _ := os.Hostname()
	switch {
	case name != "" && host != "":
		return name + "@" + host
	case name != "":
		return name
	default:
		return host
	}
}
