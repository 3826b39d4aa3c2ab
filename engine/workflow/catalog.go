package workflow

import (
	"fmt"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Catalog is a process-wide registry of workflow definitions. It keeps the
// raw JSON alongside the parsed form so definitions can be patched and
// revalidated.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*Definition
	raw  map[string][]byte
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		defs: make(map[string]*Definition),
		raw:  make(map[string][]byte),
	}
}

// Register parses, validates, and stores a workflow document. Duplicate IDs
// are rejected.
func (c *Catalog) Register(data []byte) (*Definition, error) {
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[def.ID]; exists {
		return nil, fmt.Errorf("workflow %s already registered", def.ID)
	}
	c.defs[def.ID] = def
	c.raw[def.ID] = append([]byte(nil), data...)
	return def, nil
}

// Get returns a definition by ID.
func (c *Catalog) Get(id string) (*Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[id]
	return def, ok
}

// List returns all registered definitions.
func (c *Catalog) List() []*Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Definition, 0, len(c.defs))
	for _, def := range c.defs {
		out = append(out, def)
	}
	return out
}

// Remove deletes a definition. Unknown IDs are a no-op.
func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.defs, id)
	delete(c.raw, id)
}

// Patch applies an RFC 6902 JSON patch to the stored document, revalidates
// the result, and replaces the definition. The workflow ID must not change.
func (c *Catalog) Patch(id string, patchJSON []byte) (*Definition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, ok := c.raw[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s not found", id)
	}

	patch, err := jsonpatch.DecodePatch(patchJSON)
	if err != nil {
		return nil, fmt.Errorf("invalid patch: %w", err)
	}

	patched, err := patch.Apply(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to apply patch: %w", err)
	}

	def, err := ParseDefinition(patched)
	if err != nil {
		return nil, fmt.Errorf("patched workflow is invalid: %w", err)
	}
	if def.ID != id {
		return nil, fmt.Errorf("patch must not change the workflow id")
	}

	c.defs[id] = def
	c.raw[id] = patched
	return def, nil
}
