package localfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfinesNamesToRoot(t *testing.T) {
	root, err := NewRoot(t.TempDir())
	require.NoError(t, err)

	cases := []struct {
		name    string
		want    string
		wantErr error
	}{
		{name: "hello.txt", want: filepath.Join(root.Dir(), "hello.txt")},
		{name: "/boot/pxelinux.0", want: filepath.Join(root.Dir(), "boot", "pxelinux.0")},
		{name: "a/../b", want: filepath.Join(root.Dir(), "b")},
		{name: "../etc/passwd", wantErr: ErrOutsideRoot},
		{name: "a/../../x", wantErr: ErrOutsideRoot},
		{name: "", wantErr: ErrInvalidName},
		{name: "/", wantErr: ErrInvalidName},
		{name: "bad\x00name", wantErr: ErrInvalidName},
	}
	for _, tc := range cases {
		got, err := root.Resolve(tc.name)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Resolve(%q): expected %v, got %v (path %q)", tc.name, tc.wantErr, err, got)
			}
			continue
		}
		require.NoError(t, err, "Resolve(%q)", tc.name)
		assert.Equal(t, tc.want, got)
	}
}

func TestCreateThenOpenRead(t *testing.T) {
	root, err := NewRoot(t.TempDir())
	require.NoError(t, err)

	w, err := root.Create("nested/dir/up.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := root.OpenRead("nested/dir/up.bin")
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	files, err := root.List()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "nested/dir/up.bin", files[0].ID)
	assert.Equal(t, uint64(7), files[0].Size)
}

func TestCreateTruncatesExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("old contents"), 0o644))
	root, err := NewRoot(dir)
	require.NoError(t, err)

	w, err := root.Create("f")
	require.NoError(t, err)
	_, _ = w.Write([]byte("new"))
	require.NoError(t, w.Close())

	got, err := os.ReadFile(filepath.Join(dir, "f"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestOpenReadRejectsMissingAndDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	root, err := NewRoot(dir)
	require.NoError(t, err)

	if _, err := root.OpenRead("missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := root.OpenRead("sub"); !errors.Is(err, errNotRegularFile) {
		t.Fatalf("expected not-regular error, got %v", err)
	}
}

func TestNewRootRequiresDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	if _, err := NewRoot(file); err == nil {
		t.Fatal("expected error for non-directory root")
	}
}
