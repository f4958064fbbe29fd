package fileutil

import (
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// ErrFileTooLarge indicates that a file exceeded the read limit.
var ErrFileTooLarge = errors.New("file exceeds maximum size")

// ReadFileLimit reads path, failing with ErrFileTooLarge when it holds more
// than limit bytes. The size is checked while reading as well, since staged
// files such as shell histories can grow between Stat and Read.
func ReadFileLimit(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		if !info.Mode().IsRegular() {
			return nil, errors.Newf("%s is not a regular file", path)
		}
		if info.Size() > limit {
			return nil, errors.Wrapf(ErrFileTooLarge, "%s: %d bytes", path, info.Size())
		}
	}

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}
	if int64(len(data)) > limit {
		return nil, errors.Wrapf(ErrFileTooLarge, "%s: over %d bytes", path, limit)
	}
	return data, nil
}
