package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniquePathNoCollision(t *testing.T) {
	dir := t.TempDir()
	p, err := UniquePath(dir, "demo.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "demo.txt"), p)
}

func TestUniquePathCollision(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.txt"), []byte("x"), 0o644))

	p, err := UniquePath(dir, "demo.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "demo (1).txt"), p)
}

func TestUniquePathMultipleCollisions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "demo (1).txt"), []byte("x"), 0o644))

	p, err := UniquePath(dir, "demo.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "demo (2).txt"), p)
}

func TestValidateNameRejectsTraversal(t *testing.T) {
	_, err := ValidateName("../etc/passwd")
	assert.ErrorIs(t, err, ErrDirectoryTraversal)

	_, err = ValidateName("a/b")
	assert.ErrorIs(t, err, ErrDirectoryTraversal)

	_, err = ValidateName("")
	assert.ErrorIs(t, err, ErrDirectoryTraversal)
}

func TestPrepareDestinationAndCommit(t *testing.T) {
	dir := t.TempDir()
	dest, err := PrepareDestination(dir, "demo.txt")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(dest.Part, []byte("hello"), 0o644))
	require.NoError(t, dest.Commit())

	data, err := os.ReadFile(dest.Final)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = os.Stat(dest.Part)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupRemovesPartFile(t *testing.T) {
	dir := t.TempDir()
	dest, err := PrepareDestination(dir, "demo.txt")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(dest.Part, []byte("partial"), 0o644))
	dest.Cleanup()

	_, err = os.Stat(dest.Part)
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupIsSafeWhenNoPartFileExists(t *testing.T) {
	dir := t.TempDir()
	dest, err := PrepareDestination(dir, "demo.txt")
	require.NoError(t, err)
	dest.Cleanup() // no panic, no error surfaced
}

func TestConcurrentReceivesProduceDistinctNames(t *testing.T) {
	dir := t.TempDir()

	first, err := PrepareDestination(dir, "demo.txt")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first.Part, []byte("a"), 0o644))
	require.NoError(t, first.Commit())

	second, err := PrepareDestination(dir, "demo.txt")
	require.NoError(t, err)
	assert.NotEqual(t, first.Final, second.Final)
	assert.Equal(t, filepath.Join(dir, "demo (1).txt"), second.Final)
}
