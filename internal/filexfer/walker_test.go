package filexfer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestWalkNonRecursiveMatchesOnlyTopLevel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.csv"), "1")
	writeFile(t, filepath.Join(root, "sub", "b.csv"), "2")
	writeFile(t, filepath.Join(root, "a.txt"), "3")

	entries, err := Walk(root, "*.csv", false)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.csv", entries[0].RelPath)
}

func TestWalkRecursiveDescendsSubdirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.csv"), "1")
	writeFile(t, filepath.Join(root, "sub", "b.csv"), "2")

	entries, err := Walk(root, "*.csv", true)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWalkMultiplePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.csv"), "1")
	writeFile(t, filepath.Join(root, "b.txt"), "2")
	writeFile(t, filepath.Join(root, "c.dat"), "3")

	entries, err := Walk(root, "*.csv,*.txt", false)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWalkEmptyMatchSpecDefaultsToAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.bin"), "1")

	entries, err := Walk(root, "", false)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
