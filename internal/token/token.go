// Package token generates random tokens from crypto/rand.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"io"
	"slices"

	"github.com/cockroachdb/errors"

	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
)

// Encodings.
const (
	EncodingHex       = "hex"
	EncodingBase64    = "base64"
	EncodingBase64URL = "base64url"
)

// DefaultBytes is the entropy of a token when no size is given.
const DefaultBytes = 32

// MaxBytes bounds a single token.
const MaxBytes = 4096

// Encodings lists the supported encodings for flag help.
func Encodings() []string {
	return []string{EncodingHex, EncodingBase64, EncodingBase64URL}
}

// Generate returns n random bytes from crypto/rand rendered in encoding.
func Generate(n int, encoding string) (string, error) {
	return generate(rand.Reader, n, encoding)
}

func generate(r io.Reader, n int, encoding string) (string, error) {
	if n < 1 || n > MaxBytes {
		return "", errors.Newf("token size must be between 1 and %d bytes, got %d", MaxBytes, n)
	}
	if !slices.Contains(Encodings(), encoding) {
		return "", errors.Wrapf(dotsaveerrors.ErrUnsupportedFormat, "encoding %q", encoding)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", errors.Wrap(err, "reading random bytes")
	}

	switch encoding {
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(buf), nil
	case EncodingBase64URL:
		return base64.RawURLEncoding.EncodeToString(buf), nil
	default:
		return hex.EncodeToString(buf), nil
	}
}
