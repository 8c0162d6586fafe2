package localfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jgoldverg/grover-tftp/backend/filesystem"
)

var (
	ErrOutsideRoot    = filesystem.ErrOutsideRoot
	ErrInvalidName    = filesystem.ErrInvalidName
	errNotRegularFile = errors.New("path is not a regular file")
)

// Root serves files from a single directory. Names are interpreted
// relative to it; a leading slash is dropped and names that resolve
// outside the directory are rejected.
type Root struct {
	dir string
}

var _ filesystem.FileStore = (*Root)(nil)

func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", abs)
	}
	return &Root{dir: abs}, nil
}

func (r *Root) Dir() string {
	return r.dir
}

// Resolve maps a request filename to an absolute path under the root.
func (r *Root) Resolve(name string) (string, error) {
	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	rel := filepath.FromSlash(strings.TrimLeft(name, "/"))
	joined := filepath.Join(r.dir, rel)
	back, err := filepath.Rel(r.dir, joined)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	if back == "." {
		return "", fmt.Errorf("%w: %q names the root directory", ErrInvalidName, name)
	}
	if back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return joined, nil
}

func (r *Root) OpenRead(name string) (io.ReadCloser, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", errNotRegularFile, name)
	}
	return f, nil
}

// Create truncates or creates name, making parent directories as needed.
func (r *Root) Create(name string) (io.WriteCloser, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != r.dir {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// List walks the root and returns every regular file under it.
func (r *Root) List() ([]filesystem.FileInfo, error) {
	var files []filesystem.FileInfo
	err := filepath.WalkDir(r.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(r.dir, path)
		if err != nil {
			return err
		}
		files = append(files, filesystem.FileInfo{
			ID:      filepath.ToSlash(rel),
			AbsPath: path,
			Size:    uint64(info.Size()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
