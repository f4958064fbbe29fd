// Package le32 encodes 32-bit integers as four little-endian bytes.
package le32

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	dotsaveerrors "github.com/thoreinstein/dotsave/internal/errors"
)

// Output formats.
const (
	FormatEscaped = "escaped"
	FormatHex     = "hex"
	FormatRaw     = "raw"
)

// ErrOutOfRange is returned for values that fit neither int32 nor uint32.
var ErrOutOfRange = errors.New("value out of 32-bit range")

// Parse reads a decimal or 0x-prefixed hexadecimal integer, optionally
// negative, and returns its 32-bit two's complement pattern. Accepted values
// span math.MinInt32 through math.MaxUint32.
func Parse(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")

	base := 10
	if rest, ok := strings.CutPrefix(strings.ToLower(digits), "0x"); ok {
		base, digits = 16, rest
	}
	if digits == "" {
		return 0, errors.Newf("invalid integer %q", s)
	}

	mag, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, errors.Wrapf(ErrOutOfRange, "%s", s)
		}
		return 0, errors.Newf("invalid integer %q", s)
	}

	if neg {
		if mag > -math.MinInt32 {
			return 0, errors.Wrapf(ErrOutOfRange, "%s", s)
		}
		return uint32(-int64(mag)), nil
	}
	if mag > math.MaxUint32 {
		return 0, errors.Wrapf(ErrOutOfRange, "%s", s)
	}
	return uint32(mag), nil
}

// Encode returns the little-endian bytes of v.
func Encode(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

// Format renders b as "\x2a\x00\x00\x00" (escaped), "2a000000" (hex) or
// the bytes themselves (raw).
func Format(b []byte, format string) ([]byte, error) {
	switch format {
	case FormatEscaped:
		var sb strings.Builder
		for _, c := range b {
			fmt.Fprintf(&sb, `\x%02x`, c)
		}
		return []byte(sb.String()), nil
	case FormatHex:
		return fmt.Appendf(nil, "%x", b), nil
	case FormatRaw:
		return b, nil
	default:
		return nil, errors.Wrapf(dotsaveerrors.ErrUnsupportedFormat, "format %q", format)
	}
}
