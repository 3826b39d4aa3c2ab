package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
	"id": "sample",
	"name": "Sample",
	"initialState": {"x": 1},
	"nodes": ["stepOne"]
}`

func TestCatalogRegisterAndGet(t *testing.T) {
	c := NewCatalog()

	def, err := c.Register([]byte(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, "sample", def.ID)

	got, ok := c.Get("sample")
	require.True(t, ok)
	assert.Equal(t, def, got)

	assert.Len(t, c.List(), 1)

	// Duplicates are rejected
	_, err = c.Register([]byte(sampleDoc))
	assert.Error(t, err)

	// Invalid documents are rejected
	_, err = c.Register([]byte(`{"nodes": "nope"}`))
	assert.Error(t, err)
}

func TestCatalogRemove(t *testing.T) {
	c := NewCatalog()

	_, err := c.Register([]byte(sampleDoc))
	require.NoError(t, err)

	c.Remove("sample")
	_, ok := c.Get("sample")
	assert.False(t, ok)

	c.Remove("never-there")
}

func TestCatalogPatch(t *testing.T) {
	c := NewCatalog()

	_, err := c.Register([]byte(sampleDoc))
	require.NoError(t, err)

	patch := []byte(`[
		{"op": "replace", "path": "/name", "value": "Renamed"},
		{"op": "add", "path": "/nodes/-", "value": "stepTwo"}
	]`)

	def, err := c.Patch("sample", patch)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", def.Name)
	require.Len(t, def.Nodes, 2)
	assert.Equal(t, "stepTwo", def.Nodes[1].Name)
}

func TestCatalogPatchRejectsInvalid(t *testing.T) {
	c := NewCatalog()

	_, err := c.Register([]byte(sampleDoc))
	require.NoError(t, err)

	// Unknown workflow
	_, err = c.Patch("missing", []byte(`[]`))
	assert.Error(t, err)

	// Malformed patch document
	_, err = c.Patch("sample", []byte(`{"not": "a patch"}`))
	assert.Error(t, err)

	// Patch that produces an invalid workflow
	_, err = c.Patch("sample", []byte(`[
		{"op": "replace", "path": "/nodes/0", "value": 42}
	]`))
	assert.Error(t, err)

	// Patch must not change the id
	_, err = c.Patch("sample", []byte(`[
		{"op": "replace", "path": "/id", "value": "other"}
	]`))
	assert.Error(t, err)

	// The stored definition is unchanged after failed patches
	def, ok := c.Get("sample")
	require.True(t, ok)
	assert.Equal(t, "Sample", def.Name)
	assert.Len(t, def.Nodes, 1)
}
