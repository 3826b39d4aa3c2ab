package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.json"),
		[]byte(`{"id": "one", "nodes": ["a"]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.json"),
		[]byte(`{"id": "two", "nodes": ["b"]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte(`ignored`), 0o644))

	c := NewCatalog()
	defs, err := c.LoadDirectory(dir)
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	_, ok := c.Get("one")
	assert.True(t, ok)
	_, ok = c.Get("two")
	assert.True(t, ok)
}

func TestLoadDirectoryRejectsBadDocument(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"),
		[]byte(`{"nodes": [["oops"]]}`), 0o644))

	c := NewCatalog()
	_, err := c.LoadDirectory(dir)
	assert.Error(t, err)
}

func TestLoadDirectoryMissingDir(t *testing.T) {
	c := NewCatalog()
	_, err := c.LoadDirectory("/definitely/not/here")
	assert.Error(t, err)
}
