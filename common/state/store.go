package state

import (
	"sync"
)

// Hooks receive notifications around every mutating operation. They are
// invoked with deep copies, so a hook can never alias the internal document.
// Hooks run outside the store lock and may call back into the store.
type Hooks struct {
	BeforeUpdate func(path string, oldValue, newValue any)
	AfterUpdate  func(path string, newValue any)
}

// Store is a path-addressed JSON-like document owned by a single execution.
// All values crossing the Store boundary are deep-copied in both directions.
type Store struct {
	mu    sync.RWMutex
	root  map[string]any
	hooks *Hooks
}

// New creates a store seeded with a deep copy of initial. A nil initial
// document yields an empty one.
func New(initial map[string]any) *Store {
	root, _ := deepCopy(initial).(map[string]any)
	if root == nil {
		root = make(map[string]any)
	}
	return &Store{root: root}
}

// SetHooks installs the mutation hooks. At most one set of hooks is active.
func (s *Store) SetHooks(h *Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = h
}

func (s *Store) currentHooks() *Hooks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks
}

// Get returns a deep copy of the value at path. ok is false when the path is
// absent; a stored null returns (nil, true).
func (s *Store) Get(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	segs := parsePath(path)
	if len(segs) == 0 {
		return deepCopy(s.root), true
	}
	v, ok := lookup(s.root, segs)
	if !ok {
		return nil, false
	}
	return deepCopy(v), true
}

// Has reports whether a value exists at path.
func (s *Store) Has(path string) bool {
	_, ok := s.Get(path)
	return ok
}

// Set replaces or creates the value at path, creating intermediate
// containers as needed: a sequence when the next segment is all digits,
// otherwise a map. Setting the root path replaces the whole document when
// the value is a map.
func (s *Store) Set(path string, value any) {
	segs := parsePath(path)
	copied := deepCopy(value)

	hooks := s.currentHooks()
	if hooks != nil && hooks.BeforeUpdate != nil {
		old, _ := s.Get(path)
		hooks.BeforeUpdate(path, old, deepCopy(copied))
	}

	s.mu.Lock()
	if len(segs) == 0 {
		if m, ok := copied.(map[string]any); ok {
			s.root = m
		}
	} else {
		s.root = setIn(s.root, segs, copied)
	}
	s.mu.Unlock()

	if hooks != nil && hooks.AfterUpdate != nil {
		hooks.AfterUpdate(path, deepCopy(copied))
	}
}

// Update deep-merges partial into the root document. Maps merge
// recursively; sequences, primitives, and dates replace. Hooks fire once
// for the whole call, not per merged key.
func (s *Store) Update(partial map[string]any) {
	copied, _ := deepCopy(partial).(map[string]any)

	hooks := s.currentHooks()
	if hooks != nil && hooks.BeforeUpdate != nil {
		hooks.BeforeUpdate("$", s.Snapshot(), deepCopy(copied))
	}

	s.mu.Lock()
	s.root = merge(s.root, copied)
	after, _ := deepCopy(s.root).(map[string]any)
	s.mu.Unlock()

	if hooks != nil && hooks.AfterUpdate != nil {
		hooks.AfterUpdate("$", after)
	}
}

// Delete removes the value at path. Sequence elements are removed and the
// remainder shifts down; map keys are deleted. A missing path is a no-op.
func (s *Store) Delete(path string) {
	segs := parsePath(path)
	if len(segs) == 0 {
		return
	}

	old, existed := s.Get(path)
	if !existed {
		return
	}

	hooks := s.currentHooks()
	if hooks != nil && hooks.BeforeUpdate != nil {
		hooks.BeforeUpdate(path, old, nil)
	}

	s.mu.Lock()
	deleteIn(s.root, segs)
	s.mu.Unlock()

	if hooks != nil && hooks.AfterUpdate != nil {
		hooks.AfterUpdate(path, nil)
	}
}

// Snapshot returns a deep copy of the whole document.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, _ := deepCopy(s.root).(map[string]any)
	return out
}

// lookup walks segments down the document without copying.
func lookup(cur any, segs []string) (any, bool) {
	for _, seg := range segs {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, ok := isIndex(seg)
			if !ok || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// setIn writes value at segs under root, creating containers on the way.
func setIn(root map[string]any, segs []string, value any) map[string]any {
	if m, ok := setInValue(root, segs, value).(map[string]any); ok {
		return m
	}
	return root
}

func setInValue(cur any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}
	seg := segs[0]

	if idx, ok := isIndex(seg); ok {
		seq, isSeq := cur.([]any)
		if !isSeq {
			seq = nil
		}
		for len(seq) <= idx {
			seq = append(seq, nil)
		}
		seq[idx] = setInValue(seq[idx], segs[1:], value)
		return seq
	}

	m, isMap := cur.(map[string]any)
	if !isMap {
		m = make(map[string]any)
	}
	m[seg] = setInValue(m[seg], segs[1:], value)
	return m
}

// deleteIn removes the leaf addressed by segs. The parent of a sequence
// element is rewritten because removal shifts the slice.
func deleteIn(root map[string]any, segs []string) {
	parentSegs := segs[:len(segs)-1]
	last := segs[len(segs)-1]

	parent, ok := lookup(root, parentSegs)
	if !ok {
		return
	}

	switch p := parent.(type) {
	case map[string]any:
		delete(p, last)
	case []any:
		idx, isIdx := isIndex(last)
		if !isIdx || idx >= len(p) {
			return
		}
		shifted := append(append([]any{}, p[:idx]...), p[idx+1:]...)
		replaceContainer(root, parentSegs, shifted)
	}
}

// replaceContainer swaps the container at segs for value.
func replaceContainer(root map[string]any, segs []string, value any) {
	if len(segs) == 0 {
		return
	}
	parent, ok := lookup(root, segs[:len(segs)-1])
	if !ok {
		return
	}
	last := segs[len(segs)-1]
	switch p := parent.(type) {
	case map[string]any:
		p[last] = value
	case []any:
		if idx, isIdx := isIndex(last); isIdx && idx < len(p) {
			p[idx] = value
		}
	}
}

// merge implements the deep-merge rule: recurse only when both sides are
// plain maps, otherwise the right side wins.
func merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for k, sv := range src {
		if dv, ok := dst[k].(map[string]any); ok {
			if sm, ok := sv.(map[string]any); ok {
				dst[k] = merge(dv, sm)
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}
