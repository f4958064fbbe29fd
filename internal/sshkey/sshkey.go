// Package sshkey generates OpenSSH key pairs with golang.org/x/crypto/ssh.
package sshkey

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/ssh"

	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
	"github.com/thoreinstein/dotsave/internal/paths"
	"github.com/thoreinstein/dotsave/pkg/fileutil"
)

// Key types.
const (
	TypeED25519 = "ed25519"
	TypeRSA     = "rsa"
)

// RSA sizes.
const (
	DefaultRSABits = 4096
	MinRSABits     = 2048
)

// File modes of the written pair.
const (
	PrivateKeyPerm os.FileMode = 0o600
	PublicKeyPerm  os.FileMode = 0o644
)

// ErrExists is returned when either file of the pair exists and Force is off.
var ErrExists = errors.New("key file already exists")

// Types lists the supported key types, preferred first.
func Types() []string {
	return []string{TypeED25519, TypeRSA}
}

// Options describes the key to generate.
type Options struct {
	Type string
	// Bits applies to RSA only; zero means DefaultRSABits.
	Bits    int
	Comment string
	// Path of the private key; the public key is Path + ".pub".
	Path string
	// Passphrase encrypts the private key when non-empty.
	Passphrase []byte
	Force      bool

	// Rand is the entropy source; nil means crypto/rand.
	Rand io.Reader
}

// Result describes the written pair.
type Result struct {
	PrivatePath string
	PublicPath  string
	Fingerprint string
	// AuthorizedKey is the public key line, comment included.
	AuthorizedKey string
}

// DefaultPath returns ~/.ssh/id_<type>.
func DefaultPath(home, keyType string) string {
	return filepath.Join(home, ".ssh", "id_"+keyType)
}

// Generate creates a key pair and writes it to opts.Path and opts.Path.pub.
// The ~/.ssh style parent directory is created 0700 when missing.
func Generate(opts Options) (*Result, error) {
	if opts.Path == "" {
		return nil, errors.New("key path is required")
	}
	pubPath := opts.Path + ".pub"
	if !opts.Force {
		for _, p := range []string{opts.Path, pubPath} {
			if _, err := os.Lstat(p); err == nil {
				return nil, errors.Wrapf(ErrExists, "%s", p)
			}
		}
	}

	priv, err := newKey(opts)
	if err != nil {
		return nil, err
	}

	var block *pem.Block
	if len(opts.Passphrase) > 0 {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, opts.Comment, opts.Passphrase)
	} else {
		block, err = ssh.MarshalPrivateKey(priv, opts.Comment)
	}
	if err != nil {
		return nil, errors.Wrap(err, "encoding private key")
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "deriving public key")
	}
	pub := signer.PublicKey()
	line := strings.TrimSuffix(string(ssh.MarshalAuthorizedKey(pub)), "\n")
	if opts.Comment != "" {
		line += " " + opts.Comment
	}

	if err := paths.EnsureDir(filepath.Dir(opts.Path), paths.DefaultDirPerm); err != nil {
		return nil, errors.Wrap(err, "creating key directory")
	}
	if err := fileutil.AtomicWriteFile(opts.Path, pem.EncodeToMemory(block), PrivateKeyPerm); err != nil {
		return nil, errors.Wrap(err, "writing private key")
	}
	if err := fileutil.AtomicWriteFile(pubPath, []byte(line+"\n"), PublicKeyPerm); err != nil {
		return nil, errors.Wrap(err, "writing public key")
	}

	return &Result{
		PrivatePath:   opts.Path,
		PublicPath:    pubPath,
		Fingerprint:   ssh.FingerprintSHA256(pub),
		AuthorizedKey: line,
	}, nil
}

func newKey(opts Options) (crypto.Signer, error) {
	r := opts.Rand
	if r == nil {
		r = rand.Reader
	}
	switch opts.Type {
	case TypeED25519, "":
		_, priv, err := ed25519.GenerateKey(r)
		if err != nil {
			return nil, errors.Wrap(err, "generating ed25519 key")
		}
		return priv, nil
	case TypeRSA:
		bits := opts.Bits
		if bits == 0 {
			bits = DefaultRSABits
		}
		if bits < MinRSABits {
			return nil, errors.Newf("rsa keys need at least %d bits, got %d", MinRSABits, bits)
		}
		priv, err := rsa.GenerateKey(r, bits)
		if err != nil {
			return nil, errors.Wrap(err, "generating rsa key")
		}
		return priv, nil
	default:
		return nil, errors.Wrapf(dotsaveerrors.ErrUnsupportedFormat, "key type %q", opts.Type)
	}
}
