package filesystem

import (
	"errors"
	"io"
)

// Path policy failures. Stores wrap these so callers can tell a refused
// name apart from an I/O error.
var (
	ErrOutsideRoot = errors.New("path escapes root directory")
	ErrInvalidName = errors.New("invalid file name")
)

// FileStore is the byte-addressable resource transfers read from and write
// to, addressed by the filename carried in a request.
type FileStore interface {
	OpenRead(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
}

type FileInfo struct {
	ID      string
	AbsPath string
	Size    uint64
}

// IsPolicyError reports whether err is a name the store refused to serve.
func IsPolicyError(err error) bool {
	return errors.Is(err, ErrOutsideRoot) || errors.Is(err, ErrInvalidName)
}
