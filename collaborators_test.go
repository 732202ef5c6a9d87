package ehttp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystemRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	fsys := NewFileSystem(os.DirFS(dir))
	assert.True(t, fsys.Exists("/a.txt"))
	assert.False(t, fsys.Exists("/missing.txt"))

	n, err := fsys.Size("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	stream, err := fsys.OpenRead("/a.txt")
	require.NoError(t, err)
	defer stream.Close()
	buf := make([]byte, 16)
	n2, err := stream.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n2]))
}

func TestOSFileSystemRejectsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	fsys := NewFileSystem(os.DirFS(dir))
	assert.False(t, fsys.Exists("/sub"))
}
