package blocks

import (
	"fmt"
	"sync"
)

// Registry holds the configured blocks in display order together with their
// runtime status. It is safe for concurrent use; block order is fixed at
// registration and never changes afterwards.
type Registry struct {
	mu       sync.RWMutex
	blocks   []Block
	index    map[string]int
	statuses []*Status
}

// NewRegistry returns an empty registry ready for block registration.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]int),
	}
}

// Register appends a block at the next display position. It returns an
// error if a block with the same name is already registered.
func (r *Registry) Register(b Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := b.Name()
	if name == "" {
		return fmt.Errorf("block has empty name")
	}
	if _, exists := r.index[name]; exists {
		return fmt.Errorf("block %q already registered", name)
	}

	idx := len(r.blocks)
	r.blocks = append(r.blocks, b)
	r.index[name] = idx
	r.statuses = append(r.statuses, &Status{
		Name:    name,
		Index:   idx,
		Cadence: b.Cadence().String(),
		Healthy: true,
	})
	return nil
}

// Len returns the number of registered blocks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blocks)
}

// Get returns the block with the given name, or false if not found.
func (r *Registry) Get(name string) (Block, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.blocks[i], true
}

// IndexOf returns the display index of the named block.
func (r *Registry) IndexOf(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[name]
	return i, ok
}

// Blocks returns the registered blocks in display order.
func (r *Registry) Blocks() []Block {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Block, len(r.blocks))
	copy(out, r.blocks)
	return out
}

// Names returns block names in display order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.blocks))
	for i, b := range r.blocks {
		names[i] = b.Name()
	}
	return names
}

// Status returns a copy of the runtime status for the named block, or false
// if the block is not registered.
func (r *Registry) Status(name string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[name]
	if !ok {
		return Status{}, false
	}
	return *r.statuses[i], true
}

// AllStatus returns a copy of all block statuses in display order.
func (r *Registry) AllStatus() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Status, len(r.statuses))
	for i, s := range r.statuses {
		result[i] = *s
	}
	return result
}

// UpdateStatus applies fn to the status entry at index. Caller must NOT hold
// the lock; this method acquires it.
func (r *Registry) UpdateStatus(index int, fn func(s *Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if index >= 0 && index < len(r.statuses) {
		fn(r.statuses[index])
	}
}
