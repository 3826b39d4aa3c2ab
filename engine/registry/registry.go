// Package registry maps node names to factories and metadata.
package registry

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/flowscript/flowscript/engine/node"
)

type entry struct {
	factory node.Factory
	meta    node.Metadata
}

// Registry is a process-wide, read-mostly map of node implementations. It
// tolerates concurrent Create calls.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	byType  map[string][]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]entry),
		byType:  make(map[string][]string),
	}
}

var defaultRegistry = New()

// Default returns the shared process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register adds a node factory under its metadata name. Duplicate names are
// rejected.
func (r *Registry) Register(meta node.Metadata, factory node.Factory) error {
	if meta.Name == "" {
		return fmt.Errorf("node metadata missing name")
	}
	if factory == nil {
		return fmt.Errorf("node %q: nil factory", meta.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[meta.Name]; exists {
		return fmt.Errorf("node %q already registered", meta.Name)
	}
	r.entries[meta.Name] = entry{factory: factory, meta: meta}
	r.byType[meta.Type] = append(r.byType[meta.Type], meta.Name)
	return nil
}

// RegisterInstance registers a stateless node instance, reusing it for every
// Create call.
func (r *Registry) RegisterInstance(n node.Node) error {
	return r.Register(n.Metadata(), func() node.Node { return n })
}

// Unregister removes a node. Unknown names are a no-op.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		return
	}
	delete(r.entries, name)

	names := r.byType[e.meta.Type]
	for i, n := range names {
		if n == name {
			r.byType[e.meta.Type] = append(names[:i], names[i+1:]...)
			break
		}
	}
}

// Has reports whether a node name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Create returns the node produced by the registered factory: a new instance
// for Register, and the same shared instance on every call for
// RegisterInstance.
func (r *Registry) Create(name string) (node.Node, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown node: %s", name)
	}
	return e.factory(), nil
}

// Metadata returns the metadata registered under name.
func (r *Registry) Metadata(name string) (node.Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return node.Metadata{}, fmt.Errorf("unknown node: %s", name)
	}
	return e.meta, nil
}

// Filter narrows Search results. Zero-valued fields match everything.
type Filter struct {
	Type          string
	ExpectedEdges []string
	NamePattern   string
}

// Search returns metadata for every node matching the filter.
func (r *Registry) Search(f Filter) []node.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pattern *regexp.Regexp
	if f.NamePattern != "" {
		if p, err := regexp.Compile(f.NamePattern); err == nil {
			pattern = p
		}
	}

	var out []node.Metadata
	for _, e := range r.entries {
		if f.Type != "" && e.meta.Type != f.Type {
			continue
		}
		if pattern != nil && !pattern.MatchString(e.meta.Name) {
			continue
		}
		if !containsAll(e.meta.ExpectedEdges, f.ExpectedEdges) {
			continue
		}
		out = append(out, e.meta)
	}
	return out
}

// List returns metadata for every registered node.
func (r *Registry) List() []node.Metadata {
	return r.Search(Filter{})
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
