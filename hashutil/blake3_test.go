package hashutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherIncremental(t *testing.T) {
	h := NewHasher()
	_, err := h.Write([]byte("hello, "))
	require.NoError(t, err)
	_, err = h.Write([]byte("world"))
	require.NoError(t, err)

	whole := NewHasher()
	_, err = whole.Write([]byte("hello, world"))
	require.NoError(t, err)

	assert.Equal(t, whole.SumHex(), h.SumHex())
	assert.Len(t, h.SumHex(), 64)
}

func TestHashFileAsync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "demo.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\n"), 0o644))

	result := <-HashFileAsync(path)
	require.NoError(t, result.Err)

	want := NewHasher()
	_, _ = want.Write([]byte("hello\n"))
	assert.Equal(t, want.SumHex(), result.Hex)
}

func TestHashFileAsyncMissingFile(t *testing.T) {
	result := <-HashFileAsync(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, result.Err)
}
