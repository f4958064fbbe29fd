package sshkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
)

func TestGenerate_ED25519(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ssh", "id_ed25519")

	res, err := Generate(Options{Type: TypeED25519, Comment: "me@laptop", Path: path})
	require.NoError(t, err)
	assert.Equal(t, path+".pub", res.PublicPath)

	privData, err := os.ReadFile(path)
	require.NoError(t, err)
	signer, err := ssh.ParsePrivateKey(privData)
	require.NoError(t, err)
	assert.Equal(t, ssh.KeyAlgoED25519, signer.PublicKey().Type())
	assert.Equal(t, res.Fingerprint, ssh.FingerprintSHA256(signer.PublicKey()))

	pubData, err := os.ReadFile(res.PublicPath)
	require.NoError(t, err)
	pub, comment, _, _, err := ssh.ParseAuthorizedKey(pubData)
	require.NoError(t, err)
	assert.Equal(t, "me@laptop", comment)
	assert.Equal(t, signer.PublicKey().Marshal(), pub.Marshal())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, PrivateKeyPerm, info.Mode().Perm())
	info, err = os.Stat(res.PublicPath)
	require.NoError(t, err)
	assert.Equal(t, PublicKeyPerm, info.Mode().Perm())
	info, err = os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestGenerate_Passphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_ed25519")

	_, err := Generate(Options{Path: path, Passphrase: []byte("correct horse")})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	assert.True(t, errors.As(err, &missing), "got %v", err)

	_, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte("wrong"))
	assert.Error(t, err)

	_, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte("correct horse"))
	assert.NoError(t, err)
}

func TestGenerate_RSA(t *testing.T) {
	if testing.Short() {
		t.Skip("rsa key generation is slow")
	}
	path := filepath.Join(t.TempDir(), "id_rsa")

	res, err := Generate(Options{Type: TypeRSA, Bits: MinRSABits, Path: path})
	require.NoError(t, err)
	assert.Contains(t, res.AuthorizedKey, "ssh-rsa ")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	signer, err := ssh.ParsePrivateKey(data)
	require.NoError(t, err)
	assert.Equal(t, ssh.KeyAlgoRSA, signer.PublicKey().Type())
}

func TestGenerate_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_ed25519")
	first, err := Generate(Options{Path: path})
	require.NoError(t, err)

	_, err = Generate(Options{Path: path})
	assert.True(t, errors.Is(err, ErrExists))

	// a stray .pub alone also blocks
	other := filepath.Join(filepath.Dir(path), "id_other")
	require.NoError(t, os.WriteFile(other+".pub", []byte("x"), 0o644))
	_, err = Generate(Options{Path: other})
	assert.True(t, errors.Is(err, ErrExists))

	second, err := Generate(Options{Path: path, Force: true})
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, second.Fingerprint)
}

func TestGenerate_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := Generate(Options{})
	assert.Error(t, err)

	_, err = Generate(Options{Type: "dsa", Path: filepath.Join(dir, "id_dsa")})
	assert.True(t, errors.Is(err, dotsaveerrors.ErrUnsupportedFormat))

	_, err = Generate(Options{Type: TypeRSA, Bits: 1024, Path: filepath.Join(dir, "id_rsa")})
	assert.ErrorContains(t, err, "at least 2048 bits")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "/home/me/.ssh/id_ed25519", DefaultPath("/home/me", TypeED25519))
	assert.Equal(t, "/home/me/.ssh/id_rsa", DefaultPath("/home/me", TypeRSA))
}
